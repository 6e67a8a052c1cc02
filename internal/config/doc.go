// Package config handles configuration loading for zapgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	webhook:
//	  url: "${ZAPGATE_WEBHOOK_URL}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	webhook:
//	  timeout: "10s"
//	  retry_delay: "5s"
//	  retry_timeout: "20s"
//	dedupe:
//	  window: "60s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Webhook sink (url is required; the retry policy below is the default):
//
//	webhook:
//	  url: "http://localhost:3000/whatsapp/events"
//	  timeout: "10s"
//	  retry_delay: "5s"
//	  retry_timeout: "20s"
//
// Event deduplication:
//
//	dedupe:
//	  window: "60s"
//	  max_entries: 100000
//
// Messaging client:
//
//	sessions:
//	  driver: "stub"
//	  headless: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
