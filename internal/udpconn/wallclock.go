package udpconn

import (
	"context"
	"fmt"
	"net"
	"time"
)

// WallclockTimestampedReader stamps each read with time.Now() taken
// immediately after the syscall returns. Used wherever kernel
// timestamping is unavailable.
type WallclockTimestampedReader struct {
	conn *net.UDPConn
}

func NewWallclockTimestampedReader(conn *net.UDPConn) *WallclockTimestampedReader {
	return &WallclockTimestampedReader{conn: conn}
}

func (c *WallclockTimestampedReader) Now() time.Time {
	return time.Now()
}

func (c *WallclockTimestampedReader) Read(ctx context.Context, buf []byte) (int, time.Time, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return 0, time.Time{}, fmt.Errorf("set read deadline: %w", err)
		}
	}
	n, err := c.conn.Read(buf)
	return n, time.Now(), err
}
