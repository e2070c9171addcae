// Package metrics declares the prometheus instrumentation surface for
// the pipeline: queue depth and overflow counts, per-packet framing
// outcomes, event-store occupancy, and the rolling-average timing
// fields produced by each pull cycle. Every other package increments
// or sets these directly rather than taking a metrics dependency as a
// constructor argument, matching the teacher's package-level
// promauto registration style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricNameBuildInfo           = "daqpipe_build_info"
	MetricNameIngressQueueDepth   = "daqpipe_ingress_queue_depth"
	MetricNameIngressOverflows    = "daqpipe_ingress_overflows_total"
	MetricNameFramingOutcomes     = "daqpipe_framing_outcomes_total"
	MetricNameEventStoreLen       = "daqpipe_event_store_length"
	MetricNameEventStoreOverflows = "daqpipe_event_store_overflows_total"
	MetricNameBytesReceived       = "daqpipe_bytes_received_total"
	MetricNameCycleDuration       = "daqpipe_cycle_duration_seconds"
	MetricNameDataRateMiBS        = "daqpipe_data_rate_mib_per_second"
	MetricNameCyclesTotal         = "daqpipe_cycles_total"
	MetricNameReceiverArrivalLag  = "daqpipe_receiver_arrival_lag_seconds"

	LabelVersion = "version"
	LabelCommit  = "commit"
	LabelDate    = "date"

	LabelOutcome       = "outcome"
	OutcomeClean       = "clean"
	OutcomeStartMissed = "start_marker_missing"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBuildInfo,
			Help: "Build information of the daqpipe binary",
		},
		[]string{LabelVersion, LabelCommit, LabelDate},
	)

	IngressQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameIngressQueueDepth,
			Help: "Current number of packets buffered in the ingress queue",
		},
	)

	IngressOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameIngressOverflows,
			Help: "Number of packets dropped because the ingress queue was full",
		},
	)

	FramingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameFramingOutcomes,
			Help: "Count of framer outcomes per processed sample packet, by outcome",
		},
		[]string{LabelOutcome},
	)

	EventStoreLen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameEventStoreLen,
			Help: "Current number of events held in the event store",
		},
	)

	EventStoreOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameEventStoreOverflows,
			Help: "Number of events rejected because the event store was full",
		},
	)

	BytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameBytesReceived,
			Help: "Cumulative payload bytes received over UDP",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    MetricNameCycleDuration,
			Help:    "Wall-clock duration of a single pull cycle (drain, parse, assemble)",
			Buckets: prometheus.DefBuckets,
		},
	)

	DataRateMiBS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameDataRateMiBS,
			Help: "Rolling-average data rate observed over the most recent cycles, in MiB/s",
		},
	)

	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameCyclesTotal,
			Help: "Number of pull cycles completed since startup",
		},
	)

	ReceiverArrivalLagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameReceiverArrivalLag,
			Help: "Time between the current cycle's start and the kernel-stamped arrival time of the last datagram received",
		},
	)
)
