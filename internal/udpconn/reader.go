// Package udpconn provides the receiver's UDP listening socket with
// kernel-timestamped reads where the platform supports it, falling
// back to a wall-clock timestamp otherwise. Adapted from
// tools/twamp/pkg/udp, which does the same for TWAMP's dial side; here
// the socket listens rather than dials, since the receiver is the
// passive end of the pipeline.
package udpconn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// TimestampedReader reads UDP packets from a bound socket and reports
// the kernel (or wall-clock, on fallback) arrival time of each one.
// The arrival timestamp feeds the orchestrator's receiver arrival-lag
// statistic.
type TimestampedReader interface {
	// Now returns the current time, on the same clock as Read's
	// timestamps.
	Now() time.Time

	// Read reads one datagram into buf, returning its length and
	// arrival timestamp.
	Read(ctx context.Context, buf []byte) (n int, t time.Time, err error)
}

// Listen binds a UDP socket at address:port and wraps it with the best
// available TimestampedReader.
func Listen(log *slog.Logger, address string, port uint16) (*net.UDPConn, TimestampedReader, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(address), Port: int(port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen udp %s:%d: %w", address, port, err)
	}

	reader := NewTimestampedReader(log, conn)
	return conn, reader, nil
}

// NewTimestampedReader wraps conn with a kernel-timestamped reader when
// the platform supports SO_TIMESTAMPNS, falling back to wall-clock
// timestamps otherwise.
func NewTimestampedReader(log *slog.Logger, conn *net.UDPConn) TimestampedReader {
	kt, err := NewKernelTimestampedReader(log, conn)
	if err == nil {
		log.Debug("using kernel-timestamped udp reader")
		return kt
	}
	log.Debug("falling back to wall-clock udp reader", "error", err)
	return NewWallclockTimestampedReader(conn)
}
