// Package waclient defines the boundary with the underlying messaging-client
// library. zapgate does not perform the protocol handshake or transport work
// itself; it consumes a Client handle created by a Factory and reacts to the
// callbacks the client emits (messages, acks, state changes, calls, QR codes).
//
// The package ships one implementation, Stub, an in-process scriptable client
// used by tests and by the "stub" driver in development deployments. A real
// driver implements the same Client interface.
package waclient
