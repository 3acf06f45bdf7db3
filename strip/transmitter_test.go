package strip

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender keeps every packet, optionally failing each send
type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (r *recordingSender) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	r.packets = append(r.packets, cp)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func (r *recordingSender) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.packets) == 0 {
		return nil
	}
	return r.packets[len(r.packets)-1]
}

func TestTransmitter_SendFrame(t *testing.T) {
	store := NewStore()
	store.Set(2, Color{R: 7, G: 8, B: 9}, 10)
	sender := &recordingSender{}

	tx := NewTransmitter(store, sender, 4, 60, 0)
	require.NoError(t, tx.SendFrame())

	require.Equal(t, 1, sender.count())
	p := sender.last()
	assert.Equal(t, []byte{0x41, 0, 0, 0, 0, 0, 0, 0, 0, 12}, p[:HeaderSize])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 7, 8, 9, 0, 0, 0}, p[HeaderSize:])
	assert.Equal(t, TransmitStats{Frames: 1}, tx.Stats())
}

func TestTransmitter_SendFailureCounted(t *testing.T) {
	sender := &recordingSender{err: errors.New("connection refused")}
	tx := NewTransmitter(NewStore(), sender, 4, 60, 0)

	err := tx.SendFrame()
	assert.Error(t, err)
	assert.Equal(t, TransmitStats{Frames: 1, SendErrors: 1}, tx.Stats())
}

func TestTransmitter_RunKeepsGoingAfterFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("unreachable")}
	tx := NewTransmitter(NewStore(), sender, 4, 200, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, tx.Run(ctx))

	assert.Greater(t, sender.count(), 3, "loop continues after failed sends")
	assert.Equal(t, tx.Stats().Frames, tx.Stats().SendErrors)
}

func TestTransmitter_SplitsLargeStrips(t *testing.T) {
	sender := &recordingSender{}
	tx := NewTransmitter(NewStore(), sender, 1000, 60, 1440)
	require.NoError(t, tx.SendFrame())
	assert.Equal(t, 3, sender.count())
}

func TestUDPSender_Localhost(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()
	port := listener.LocalAddr().(*net.UDPAddr).Port

	sender, err := DialUDP("127.0.0.1", port, 100*time.Millisecond)
	require.NoError(t, err)
	defer sender.Close()

	store := NewStore()
	store.Set(0, Color{R: 255, G: 0, B: 100}, 5)
	tx := NewTransmitter(store, sender, 3, 60, 0)
	require.NoError(t, tx.SendFrame())

	buf := make([]byte, 2048)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	assert.Equal(t, HeaderSize+9, n)
	h, err := ParseHeader(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(9), h.Length)
	assert.Equal(t, []byte{255, 0, 100, 0, 0, 0, 0, 0, 0}, buf[HeaderSize:n])
}

func TestDialUDP_BadPort(t *testing.T) {
	_, err := DialUDP("127.0.0.1", 99999, 0)
	assert.Error(t, err)
}
