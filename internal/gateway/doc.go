// Package gateway composes the event pipeline and serves the HTTP API.
// Normalized events flow from session pipelines into Consume, which appends
// to the ledger, fans out to live subscribers, applies the dedupe window and
// forwards survivors to the webhook dispatcher.
package gateway
