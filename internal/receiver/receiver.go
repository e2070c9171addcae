// Package receiver implements the socket-facing actor of the pipeline:
// the thread that blocks on the UDP read, strips the wire prelude, and
// writes the resulting payload into the ingress queue. It is the
// single writer to that queue.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/daqerr"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/scopelabs/daqpipe/internal/udpconn"
	"github.com/scopelabs/daqpipe/internal/wire"
)

// Receiver owns the listening socket and feeds datagram payloads into
// an ingress.Queue. Not safe for concurrent use beyond Run, Stop, Close,
// BytesReceived and LastArrival.
type Receiver struct {
	log   *slog.Logger
	cfg   config.ReceiverConfig
	queue *ingress.Queue

	conn   *net.UDPConn
	reader udpconn.TimestampedReader
	once   sync.Once

	running atomic.Bool

	bytesReceived atomic.Uint64
	lastArrival   atomic.Int64 // unix nanos
}

// New binds the receiver's UDP socket, retrying the initial bind with
// bounded exponential backoff before surfacing a Fatal error (spec.md
// §7's Fatal kind: socket bind/create failure propagates out of
// start and the receiver is unusable).
func New(ctx context.Context, log *slog.Logger, cfg config.ReceiverConfig, queue *ingress.Queue) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("receiver config: %w", err)
	}

	type bound struct {
		conn   *net.UDPConn
		reader udpconn.TimestampedReader
	}

	b, err := backoff.Retry(ctx, func() (bound, error) {
		conn, reader, err := udpconn.Listen(log, cfg.Address, cfg.Port)
		if err != nil {
			return bound{}, err
		}
		return bound{conn: conn, reader: reader}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return nil, fmt.Errorf("receiver: bind failed after retries: %w", err)
	}

	r := &Receiver{
		log:    log,
		cfg:    cfg,
		queue:  queue,
		conn:   b.conn,
		reader: b.reader,
	}
	r.running.Store(true)
	return r, nil
}

// Run blocks in the receive loop until the context is cancelled or
// Close is called. It observes the atomic running flag and closes the
// socket on cancellation to unblock a pending read (spec.md §5
// cancellation contract).
func (r *Receiver) Run(ctx context.Context) error {
	r.log.Info("receiver listening", "address", r.conn.LocalAddr())

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	buf := make([]byte, r.cfg.MaxPacketSize)
	timeout := time.Duration(r.cfg.ReadTimeoutSec) * time.Second

	for r.running.Load() {
		readCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		n, arrival, err := r.reader.Read(readCtx, buf)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if !r.running.Load() {
				return nil
			}
			if readCtx.Err() != nil && ctx.Err() == nil {
				r.log.Debug("udp read timeout", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("udp read error", "error", err)
			continue
		}

		r.lastArrival.Store(arrival.UnixNano())

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		_, payload, err := wire.SplitDatagram(datagram)
		if err != nil {
			r.log.Warn("dropping malformed datagram", "error", err, "length", n)
			continue
		}

		if _, err := r.queue.Append(payload); err != nil {
			if errors.Is(err, daqerr.ErrOverflow) {
				r.log.Error("ingress queue overflow, dropping datagram")
				continue
			}
			r.log.Warn("rejected datagram", "error", err)
			continue
		}

		r.bytesReceived.Add(uint64(len(payload)))
	}

	return nil
}

// Stop clears the running flag and closes the socket, unblocking any
// pending read.
func (r *Receiver) Stop() {
	r.running.Store(false)
	r.Close()
}

// Close closes the listening socket. Safe to call more than once.
func (r *Receiver) Close() error {
	var err error
	r.once.Do(func() {
		r.running.Store(false)
		err = r.conn.Close()
	})
	return err
}

// Conn returns the underlying UDP socket, for callers that need its
// bound local address.
func (r *Receiver) Conn() *net.UDPConn {
	return r.conn
}

// BytesReceived returns the cumulative payload bytes appended to the
// ingress queue.
func (r *Receiver) BytesReceived() uint64 {
	return r.bytesReceived.Load()
}

// LastArrival returns the arrival time of the most recently received
// datagram.
func (r *Receiver) LastArrival() time.Time {
	ns := r.lastArrival.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
