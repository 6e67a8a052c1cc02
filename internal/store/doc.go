// Package store provides the append-only event ledger backing GET /events.
// The ledger is a secondary record of everything published to the hub, not a
// replacement for the live stream. The SQLite implementation runs against an
// in-memory database by default: nothing survives a process restart.
package store
