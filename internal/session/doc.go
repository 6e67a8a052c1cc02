// Package session maintains the registry of named messaging sessions. Each
// session owns exactly one client handle, an explicit lifecycle, the most
// recent QR artifact and a single-writer pipeline goroutine that normalizes
// raw client callbacks in emission order before handing them to the sink.
package session
