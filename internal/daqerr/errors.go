// Package daqerr holds the sentinel errors shared across the ingestion,
// framing, and event-assembly packages, so callers can use errors.Is
// regardless of which component raised them.
package daqerr

import "errors"

var (
	// ErrOverflow is returned when a bounded queue or store is full.
	// The overflow callback, if any, has already fired by the time this
	// is returned.
	ErrOverflow = errors.New("overflow")

	// ErrInvalidArgument is returned for nil/zero-length input
	// (ingress.Queue.Append). Mutating calls that take an index, such as
	// event.Store.RemoveBeforeIndex, clamp it instead of returning this.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned by read accessors given a bad index or
	// an empty collection.
	ErrOutOfRange = errors.New("out of range")

	// ErrPacketOverflow is a fatal condition: a packet was appended to
	// an event already at its max-packets limit.
	ErrPacketOverflow = errors.New("packet overflow")
)
