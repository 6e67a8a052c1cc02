// Package dedupe provides event deduplication using a time-based cache,
// collapsing repeated deliveries of the same (session, event type) key
// within a trailing window. The coarse key granularity is intentional:
// distinct messages of the same type to the same session inside the window
// are collapsed too, trading event completeness for sink load reduction.
package dedupe
