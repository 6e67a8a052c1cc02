// Package webhook delivers normalized events to an external HTTP sink with
// a strict retry budget: transient failures (timeout or connection reset)
// get exactly one retry after a fixed delay with an extended timeout, and a
// second failure is logged and dropped. There is no dead-letter queue; the
// guarantee is at-least-once on transient failure, best effort overall.
package webhook
