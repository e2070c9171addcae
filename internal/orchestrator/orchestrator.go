// Package orchestrator drives the pull cycle that ties the rest of the
// pipeline together: drain the ingress queue, frame the resulting
// bytes into SamplePackets, feed them to the event assembler, and
// track rolling-average timing statistics for the cycle. It mirrors
// NaluEventCollector's collect()/collectionLoop split: Collect runs one
// cycle, Run repeats it on a sleep interval until cancelled.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/event"
	"github.com/scopelabs/daqpipe/internal/export"
	"github.com/scopelabs/daqpipe/internal/framer"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/scopelabs/daqpipe/internal/metrics"
)

// TimingData snapshots one cycle's measurements and the rolling
// averages accumulated since startup, matching NaluCollectorTimingData.
type TimingData struct {
	CycleIndex         uint64
	CycleTimestampNs   int64
	UDPTimeS           float64
	ParseTimeS         float64
	EventTimeS         float64
	TotalTimeS         float64
	DataProcessedBytes uint64
	DataRateMiBS       float64

	AvgUDPTimeS           float64
	AvgParseTimeS         float64
	AvgEventTimeS         float64
	AvgTotalTimeS         float64
	AvgDataProcessedBytes float64
	AvgDataRateMiBS       float64

	// ReceiverBytesReceived and ReceiverArrivalLagS are populated only
	// when a ReceiverStats has been wired in via SetReceiverStats.
	// ReceiverArrivalLagS is the gap between the cycle's start and the
	// kernel (or wall-clock fallback) arrival timestamp the receiver
	// stamped on the most recently received datagram.
	ReceiverBytesReceived uint64
	ReceiverArrivalLagS   float64
}

// ReceiverStats is the subset of internal/receiver.Receiver's
// cumulative counters the orchestrator folds into its timing
// snapshot, so the arrival timestamp the receiver stamps on every
// datagram (spec.md §5) actually reaches a consumer.
type ReceiverStats interface {
	BytesReceived() uint64
	LastArrival() time.Time
}

// Orchestrator owns the framer and assembler and coordinates a single
// pull cycle (or a repeating loop of them in background mode).
type Orchestrator struct {
	log *slog.Logger
	cfg config.OrchestratorConfig

	queue     *ingress.Queue
	framer    *framer.Framer
	assembler *event.Assembler
	store     *event.Store
	exporter  *export.Exporter
	asmCtx    *event.Context

	mu           sync.Mutex
	timing       TimingData
	cycleCount   uint64
	lastEventIdx int
	recv         ReceiverStats
}

// New constructs an Orchestrator wired to the given queue, framer,
// assembler, and store. The exporter's worker pool size comes from
// cfg.ExportPoolSize.
func New(log *slog.Logger, cfg config.OrchestratorConfig, queue *ingress.Queue, fr *framer.Framer, asm *event.Assembler, store *event.Store) *Orchestrator {
	return &Orchestrator{
		log:       log,
		cfg:       cfg,
		queue:     queue,
		framer:    fr,
		assembler: asm,
		store:     store,
		exporter:  export.New(cfg.ExportPoolSize),
		asmCtx:    &event.Context{},
	}
}

// SetReceiverStats wires the UDP receiver's cumulative counters into
// the orchestrator's timing snapshot. Optional; until called (or if
// passed nil), ReceiverBytesReceived/ReceiverArrivalLagS stay zero.
func (o *Orchestrator) SetReceiverStats(r ReceiverStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recv = r
}

// Collect runs a single pull cycle: drain whatever has accumulated in
// the ingress queue, frame it, and feed every resulting SamplePacket
// to the assembler, recording timing statistics. It never blocks
// waiting for data; an empty queue is a no-op cycle, matching
// collect()'s "no data received from receiver" branch.
func (o *Orchestrator) Collect(ctx context.Context) error {
	cycleStart := time.Now()

	udpStart := time.Now()
	packets := o.queue.Drain()
	udpTime := time.Since(udpStart)
	metrics.IngressQueueDepth.Set(float64(o.queue.Len()))

	if len(packets) == 0 {
		o.log.Debug("no data received from ingress queue")
		return nil
	}

	dataSize := 0
	for _, p := range packets {
		dataSize += len(p.Payload)
	}

	parseStart := time.Now()
	samples := o.framer.Process(packets)
	parseTime := time.Since(parseStart)

	if len(samples) == 0 {
		return nil
	}

	eventStart := time.Now()
	for _, s := range samples {
		if err := o.assembler.IngestPacket(s, o.asmCtx); err != nil {
			o.log.Error("failed to ingest sample packet", "error", err)
		}
	}
	eventTime := time.Since(eventStart)

	totalTime := time.Since(cycleStart)
	dataRateMiBS := (float64(dataSize) / (1024.0 * 1024.0)) / totalTime.Seconds()

	snapshot := o.recordCycle(cycleStart, udpTime, parseTime, eventTime, totalTime, uint64(dataSize), dataRateMiBS)

	metrics.BytesReceived.Add(float64(dataSize))
	metrics.EventStoreLen.Set(float64(o.store.Len()))
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(totalTime.Seconds())
	metrics.DataRateMiBS.Set(snapshot.AvgDataRateMiBS)
	metrics.ReceiverArrivalLagSeconds.Set(snapshot.ReceiverArrivalLagS)

	return nil
}

// recordCycle updates the rolling averages using the same
// avg += (val - avg) / cycle_count update NaluEventCollector::collect
// uses, so the averages converge identically regardless of how many
// cycles have run. It returns a copy of the updated snapshot so
// Collect can report it through metrics without a second lock round
// trip through TimingSnapshot.
func (o *Orchestrator) recordCycle(start time.Time, udpTime, parseTime, eventTime, totalTime time.Duration, dataSize uint64, dataRateMiBS float64) TimingData {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cycleCount++
	n := float64(o.cycleCount)

	o.timing.CycleIndex = o.cycleCount - 1
	o.timing.CycleTimestampNs = start.UnixNano()
	o.timing.UDPTimeS = udpTime.Seconds()
	o.timing.ParseTimeS = parseTime.Seconds()
	o.timing.EventTimeS = eventTime.Seconds()
	o.timing.TotalTimeS = totalTime.Seconds()
	o.timing.DataProcessedBytes = dataSize
	o.timing.DataRateMiBS = dataRateMiBS

	o.timing.AvgUDPTimeS += (o.timing.UDPTimeS - o.timing.AvgUDPTimeS) / n
	o.timing.AvgParseTimeS += (o.timing.ParseTimeS - o.timing.AvgParseTimeS) / n
	o.timing.AvgEventTimeS += (o.timing.EventTimeS - o.timing.AvgEventTimeS) / n
	o.timing.AvgTotalTimeS += (o.timing.TotalTimeS - o.timing.AvgTotalTimeS) / n
	o.timing.AvgDataProcessedBytes += (float64(dataSize) - o.timing.AvgDataProcessedBytes) / n
	o.timing.AvgDataRateMiBS += (dataRateMiBS - o.timing.AvgDataRateMiBS) / n

	if o.recv != nil {
		o.timing.ReceiverBytesReceived = o.recv.BytesReceived()
		if last := o.recv.LastArrival(); !last.IsZero() {
			o.timing.ReceiverArrivalLagS = start.Sub(last).Seconds()
		}
	}

	return o.timing
}

// TimingSnapshot returns a copy of the latest cycle's timing data and
// its rolling averages.
func (o *Orchestrator) TimingSnapshot() TimingData {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timing
}

// CompleteEvents returns every complete Event created since the last
// call to CompleteEvents, mirroring get_data()'s
// get_events_after_index_inclusive plus is_event_complete filter and
// last_event_index advance.
func (o *Orchestrator) CompleteEvents() []*event.Event {
	o.mu.Lock()
	seed := o.lastEventIdx
	o.mu.Unlock()

	candidates := o.store.EventsFromIndex(seed)
	complete := make([]*event.Event, 0, len(candidates))
	for _, e := range candidates {
		if e.IsComplete() {
			complete = append(complete, e)
		}
	}

	o.mu.Lock()
	o.lastEventIdx += len(complete)
	o.mu.Unlock()

	return complete
}

// ClearEvents drops every event before the last consumed index,
// mirroring clear_events().
func (o *Orchestrator) ClearEvents() {
	o.mu.Lock()
	idx := o.lastEventIdx
	o.mu.Unlock()

	if idx <= 0 {
		return
	}
	removed := o.store.RemoveBeforeIndex(idx)

	o.mu.Lock()
	o.lastEventIdx -= removed
	o.mu.Unlock()
}

// Export serializes the given events concurrently to wire format.
func (o *Orchestrator) Export(ctx context.Context, events []*event.Event) ([]export.Result, error) {
	return o.exporter.ExportEvents(ctx, events)
}

// Run repeats Collect on the configured sleep interval until ctx is
// cancelled, matching collectionLoop's running-flag loop with a
// configurable sleep_time_us.
func (o *Orchestrator) Run(ctx context.Context) error {
	sleep := time.Duration(o.cfg.SleepMicros) * time.Microsecond

	for {
		select {
		case <-ctx.Done():
			o.exporter.StopAndWait()
			return nil
		default:
		}

		if err := o.Collect(ctx); err != nil {
			o.log.Error("collect cycle failed", "error", err)
		}

		if sleep > 0 {
			select {
			case <-ctx.Done():
				o.exporter.StopAndWait()
				return nil
			case <-time.After(sleep):
			}
		}
	}
}
