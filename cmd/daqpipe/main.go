// Command daqpipe receives the reference acquisition board's UDP
// stream, reassembles SamplePackets into Events, and either drives a
// fixed number of pull cycles (--cycles, default 10) or runs unattended
// in the background,
// reproducing the original collector's -b/-h flag contract.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/event"
	"github.com/scopelabs/daqpipe/internal/framer"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/scopelabs/daqpipe/internal/metrics"
	"github.com/scopelabs/daqpipe/internal/orchestrator"
	"github.com/scopelabs/daqpipe/internal/receiver"
)

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

var (
	// Set by LDFLAGS.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type options struct {
	address string
	port    uint16

	background   bool
	cycles       int
	cycleSleepMs int

	verbose     bool
	logFile     string
	metricsOn   bool
	metricsAddr string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "daqpipe",
		Short: "Reassembles a UDP sample-packet stream into complete events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}

	bindFlags(rootCmd, opts)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func bindFlags(cmd *cobra.Command, opts *options) {
	recvDefaults := config.DefaultReceiverConfig()

	cmd.Flags().StringVar(&opts.address, "address", recvDefaults.Address, "UDP address to bind")
	cmd.Flags().Uint16Var(&opts.port, "port", recvDefaults.Port, "UDP port to bind")
	cmd.Flags().BoolVarP(&opts.background, "background", "b", false, "run the collector loop unattended instead of single-stepped")
	cmd.Flags().IntVar(&opts.cycles, "cycles", 10, "number of manual pull cycles to run when not in background mode")
	cmd.Flags().IntVar(&opts.cycleSleepMs, "cycle-sleep-ms", 10, "sleep between pull cycles, in milliseconds (manual and background mode)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "also write logs to this file, in addition to the console")
	cmd.Flags().BoolVar(&opts.metricsOn, "metrics-enable", false, "enable the prometheus metrics endpoint")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "address to listen on for prometheus metrics")
}

func runPipeline(ctx context.Context, opts *options) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log, closeLog, err := newLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	if opts.metricsOn {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go serveMetrics(log, opts.metricsAddr)
	}

	rcfg := config.DefaultReceiverConfig()
	rcfg.Address = opts.address
	rcfg.Port = opts.port
	config.ApplyReceiverEnvOverrides(&rcfg)

	icfg := config.DefaultIngressConfig()
	fcfg := config.DefaultFramerConfig()
	acfg := config.DefaultAssemblerConfig()
	ocfg := config.DefaultOrchestratorConfig()
	if opts.background {
		ocfg.SleepMicros = int64(opts.cycleSleepMs) * 1000
	}

	queue := ingress.New(log.With("component", "ingress"), icfg.Capacity)
	queue.SetOverflowCallback(func() { metrics.IngressOverflows.Inc() })

	store := event.NewStore(log.With("component", "event_store"), acfg.MaxEvents)
	store.SetOverflowCallback(func() { metrics.EventStoreOverflows.Inc() })

	fr := framer.New(log.With("component", "framer"), fcfg)
	asm := event.New(log.With("component", "assembler"), acfg, uint16(fcfg.PacketSize), store)
	orch := orchestrator.New(log.With("component", "orchestrator"), ocfg, queue, fr, asm, store)

	recv, err := receiver.New(ctx, log.With("component", "receiver"), rcfg, queue)
	if err != nil {
		return fmt.Errorf("failed to start receiver: %w", err)
	}
	defer recv.Close()
	orch.SetReceiverStats(recv)

	recvErrCh := make(chan error, 1)
	go func() { recvErrCh <- recv.Run(ctx) }()

	if opts.background {
		return runBackground(ctx, log, orch, recvErrCh)
	}
	return runManual(ctx, log, orch, opts.cycles, time.Duration(opts.cycleSleepMs)*time.Millisecond)
}

// runBackground launches the orchestrator's own pull loop and waits for
// cancellation or a receiver failure, mirroring main.cpp's
// collector.start()/sleep/collector.stop() background branch.
func runBackground(ctx context.Context, log *slog.Logger, orch *orchestrator.Orchestrator, recvErrCh <-chan error) error {
	orchErrCh := make(chan error, 1)
	go func() { orchErrCh <- orch.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-recvErrCh:
		if err != nil {
			log.Error("receiver exited", "error", err)
			return err
		}
	case err := <-orchErrCh:
		if err != nil {
			log.Error("orchestrator exited", "error", err)
			return err
		}
	}
	return nil
}

// runManual drives a fixed number of pull cycles, printing a summary
// after each one, mirroring main.cpp's manual for-loop branch.
func runManual(ctx context.Context, log *slog.Logger, orch *orchestrator.Orchestrator, cycles int, sleep time.Duration) error {
	for i := 0; i < cycles; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}

		if err := orch.Collect(ctx); err != nil {
			log.Error("collect cycle failed", "error", err)
			continue
		}

		events := orch.CompleteEvents()
		snapshot := orch.TimingSnapshot()
		fmt.Printf("\nRolling Average (cycle %d):\n", snapshot.CycleIndex)
		fmt.Printf("  avg data rate:  %.6f MiB/s\n", snapshot.AvgDataRateMiBS)
		fmt.Printf("  avg parse time: %.6f us\n", snapshot.AvgParseTimeS*1e6)
		fmt.Printf("  avg event time: %.6f us\n", snapshot.AvgEventTimeS*1e6)
		fmt.Printf("  avg udp time:   %.6f us\n", snapshot.AvgUDPTimeS*1e6)
		fmt.Printf("  avg total time: %.6f us\n", snapshot.AvgTotalTimeS*1e6)
		fmt.Printf("  receiver lag:   %.6f us\n", snapshot.ReceiverArrivalLagS*1e6)
		fmt.Printf("  receiver bytes: %d\n", snapshot.ReceiverBytesReceived)
		fmt.Println("Summary of events received:")
		fmt.Printf("  total events: %d\n", len(events))
		fmt.Println("-------------------------------------------")

		orch.ClearEvents()
	}
	return nil
}

func serveMetrics(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics listener", "error", err)
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil {
		log.Error("prometheus metrics server stopped", "error", err)
	}
}

// newLogger builds the console handler (tint, colorized) and, when
// --log-file is set, fans the same logger out to a plain text file
// handler too, never dropping the console sink (supplements
// NaluEventCollectorLogger's optional file+console logging).
func newLogger(opts *options) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	consoleHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})

	closeFn := func() {}

	if opts.logFile == "" {
		return slog.New(consoleHandler), closeFn, nil
	}

	f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	log := slog.New(newFanoutHandler(consoleHandler, fileHandler))
	return log, func() { _ = f.Close() }, nil
}

// fanoutHandler duplicates every log record to each wrapped handler.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
