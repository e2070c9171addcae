package event

import (
	"log/slog"
	"time"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/framer"
	"github.com/scopelabs/daqpipe/internal/timediff"
)

// Context tracks the per-run state ingest_packet needs across calls:
// whether the assembler is inside a newly-opened event's safety zone,
// how many packets have arrived since that event opened, and the next
// event index to assign.
type Context struct {
	InSafetyZone     bool
	PostEventCounter int
	EventIndex       uint32
}

// Assembler coalesces SamplePackets into Events by trigger-time
// proximity, using a bounded lookback window guarded by the safety
// zone (spec's generalized max_lookback, not the original's hardcoded
// depth of 2 — see DESIGN.md).
type Assembler struct {
	log   *slog.Logger
	cfg   config.AssemblerConfig
	diff  timediff.Comparator
	store *Store

	packetSize uint16
	now        func() time.Time
}

// New constructs an Assembler bound to the given store. packetSize is
// the framer's configured packet_size, carried into every Event's
// PacketSize field.
func New(log *slog.Logger, cfg config.AssemblerConfig, packetSize uint16, store *Store) *Assembler {
	return &Assembler{
		log:        log,
		cfg:        cfg,
		diff:       timediff.New(cfg.MaxTriggerTime, cfg.TimeThreshold),
		store:      store,
		packetSize: packetSize,
		now:        time.Now,
	}
}

// IngestPacket attaches p to an existing event within the lookback
// window, or opens a new one, per spec.md section 4.4.
func (a *Assembler) IngestPacket(p framer.SamplePacket, ctx *Context) error {
	n := a.store.Len()

	lookback := 1
	if ctx.InSafetyZone {
		if a.cfg.MaxLookback < n {
			lookback = a.cfg.MaxLookback
		} else {
			lookback = n
		}
	}

	matched := -1
	for k := 0; k < lookback; k++ {
		i := n - 1 - k
		if i < 0 {
			break
		}
		candidate, err := a.store.At(i)
		if err != nil {
			break
		}
		if a.diff.WithinThreshold(p.TriggerTime, candidate.ReferenceTime) {
			matched = i
			break
		}
	}

	if matched >= 0 {
		e, err := a.store.At(matched)
		if err != nil {
			return err
		}
		if err := a.attach(e, p); err != nil {
			return err
		}
		a.advanceSafetyBuffer(ctx)
		return nil
	}

	e := newEvent(ctx.EventIndex, p, a.cfg, a.packetSize, a.now())
	ctx.EventIndex++
	if err := a.attach(e, p); err != nil {
		return err
	}
	if err := a.store.Push(e); err != nil {
		return err
	}

	ctx.InSafetyZone = true
	ctx.PostEventCounter = 0
	a.advanceSafetyBuffer(ctx)
	return nil
}

func (a *Assembler) attach(e *Event, p framer.SamplePacket) error {
	if err := e.AddPacket(p); err != nil {
		a.log.Error("event packet overflow", "event_index", e.Index, "max_packets", e.maxPackets)
		return err
	}
	return nil
}

// advanceSafetyBuffer increments the post-event counter while inside
// the safety zone and clears the zone once the configured threshold is
// reached. It must run once per ingested packet, matched or not.
func (a *Assembler) advanceSafetyBuffer(ctx *Context) {
	if !ctx.InSafetyZone {
		return
	}
	ctx.PostEventCounter++
	if ctx.PostEventCounter >= a.cfg.SafetyBufferCounterMax() {
		ctx.InSafetyZone = false
		ctx.PostEventCounter = 0
	}
}
