// Package hub multiplexes normalized events to live stream subscribers.
// Subscribers attach to one of two scopes, message events only or all event
// types merged, and receive events over a bounded channel; slow subscribers
// have events dropped rather than blocking the publisher. There is no
// replay or backlog.
package hub
