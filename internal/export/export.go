// Package export concurrently serializes completed events to wire
// format. Serialization is pure CPU work (encoding/binary into a
// freshly sized buffer per event) so a bounded worker pool turns a
// cycle's worth of completed events into wire bytes without making
// the orchestrator's pull cycle any less responsive to the next
// datagram.
package export

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"

	"github.com/scopelabs/daqpipe/internal/event"
	"github.com/scopelabs/daqpipe/internal/wire"
)

const defaultPoolSize = 8

// Result pairs a serialized event with the index it was built from,
// since the pool does not guarantee completion order.
type Result struct {
	Index uint32
	Bytes []byte
}

// Exporter owns the worker pool used to serialize events concurrently.
type Exporter struct {
	pool pond.ResultPool[Result]
}

// New constructs an Exporter with the given worker pool size. A
// non-positive size falls back to defaultPoolSize.
func New(poolSize int) *Exporter {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	return &Exporter{
		pool: pond.NewResultPool[Result](poolSize),
	}
}

// ExportEvents serializes every given event to wire format
// concurrently, returning one Result per event. A serialization
// failure for any single event fails the whole batch. MarshalEvent
// fails only on a too-small buffer, and each buffer here is sized by
// EventWireSize; the packet count is not checked against
// MaxPacketsPerEvent.
func (e *Exporter) ExportEvents(ctx context.Context, events []*event.Event) ([]Result, error) {
	group := e.pool.NewGroupContext(ctx)

	for _, ev := range events {
		ev := ev
		group.SubmitErr(func() (Result, error) {
			buf := make([]byte, wire.EventWireSize(ev))
			if err := wire.MarshalEvent(ev, buf); err != nil {
				return Result{}, fmt.Errorf("export: marshal event %d: %w", ev.Index, err)
			}
			return Result{Index: ev.Index, Bytes: buf}, nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return results, nil
}

// StopAndWait releases the worker pool's goroutines, waiting for any
// in-flight submissions to finish.
func (e *Exporter) StopAndWait() {
	e.pool.StopAndWait()
}
