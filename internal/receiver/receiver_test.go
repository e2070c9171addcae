package receiver_test

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/scopelabs/daqpipe/internal/receiver"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildDatagram(payload []byte) []byte {
	prelude := make([]byte, 16)
	binary.BigEndian.PutUint16(prelude[0:2], uint16(len(payload)))
	return append(prelude, payload...)
}

func TestReceiver_ReceivesAndEnqueues(t *testing.T) {
	cfg := config.DefaultReceiverConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeoutSec = 1

	queue := ingress.New(discardLogger(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := receiver.New(ctx, discardLogger(), cfg, queue)
	require.NoError(t, err)
	defer r.Stop()

	addr := r.Conn().LocalAddr().(*net.UDPAddr)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	payload := []byte{1, 2, 3, 4, 5}
	_, err = client.Write(buildDatagram(payload))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return queue.Len() == 1
	}, time.Second, 10*time.Millisecond)

	packets := queue.Drain()
	require.Len(t, packets, 1)
	require.Equal(t, payload, packets[0].Payload)
	require.EqualValues(t, 0, packets[0].Index)

	require.EqualValues(t, len(payload), r.BytesReceived())
	require.False(t, r.LastArrival().IsZero())
	require.WithinDuration(t, time.Now(), r.LastArrival(), time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop after context cancellation")
	}
}

func TestReceiver_DropsMalformedDatagram(t *testing.T) {
	cfg := config.DefaultReceiverConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeoutSec = 1

	queue := ingress.New(discardLogger(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := receiver.New(ctx, discardLogger(), cfg, queue)
	require.NoError(t, err)
	defer r.Stop()

	addr := r.Conn().LocalAddr().(*net.UDPAddr)

	go r.Run(ctx)

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, queue.Len())
}
