//go:build !linux
// +build !linux

package udpconn

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// ErrPlatformNotSupported is returned by NewKernelTimestampedReader on
// platforms without SO_TIMESTAMPNS support.
var ErrPlatformNotSupported = errors.New("kernel timestamping not supported on this platform")

func NewKernelTimestampedReader(_ *slog.Logger, _ *net.UDPConn) (*KernelTimestampedReader, error) {
	return nil, ErrPlatformNotSupported
}

type KernelTimestampedReader struct{}

func (c *KernelTimestampedReader) Now() time.Time { return time.Time{} }

func (c *KernelTimestampedReader) Read(ctx context.Context, buf []byte) (int, time.Time, error) {
	return 0, time.Time{}, ErrPlatformNotSupported
}
