package strip

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// Sender delivers one datagram to the lighting device
type Sender interface {
	Send(packet []byte) error
}

// UDPSender sends packets over a connected UDP socket
type UDPSender struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// DialUDP opens a UDP socket to host:port. A positive timeout bounds each write.
func DialUDP(host string, port int, timeout time.Duration) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolving device address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("opening UDP socket: %w", err)
	}
	return &UDPSender{conn: conn, timeout: timeout}, nil
}

// Send writes one packet
func (u *UDPSender) Send(packet []byte) error {
	if u.timeout > 0 {
		if err := u.conn.SetWriteDeadline(time.Now().Add(u.timeout)); err != nil {
			return err
		}
	}
	_, err := u.conn.Write(packet)
	return err
}

// RemoteAddr returns the device address
func (u *UDPSender) RemoteAddr() string {
	return u.conn.RemoteAddr().String()
}

// Close releases the socket
func (u *UDPSender) Close() error {
	return u.conn.Close()
}

// TransmitStats counts frames sent and failed
type TransmitStats struct {
	Frames     uint64 `json:"frames"`
	SendErrors uint64 `json:"sendErrors"`
}

// Transmitter snapshots the store at a fixed frame rate and sends it as DDP
type Transmitter struct {
	store      *Store
	sender     Sender
	numLEDs    int
	fps        int
	maxPayload int

	frames     atomic.Uint64
	sendErrors atomic.Uint64
}

// NewTransmitter creates a transmitter for a strip of numLEDs
func NewTransmitter(store *Store, sender Sender, numLEDs, fps, maxPayload int) *Transmitter {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Transmitter{
		store:      store,
		sender:     sender,
		numLEDs:    numLEDs,
		fps:        fps,
		maxPayload: maxPayload,
	}
}

// SendFrame sends the current store contents. Every packet of the frame is
// attempted; the first error is returned.
func (t *Transmitter) SendFrame() error {
	packets, err := EncodeFrame(t.store.Snapshot(), t.numLEDs, t.maxPayload)
	if err != nil {
		return err
	}

	var firstErr error
	for _, p := range packets {
		if err := t.sender.Send(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	t.frames.Add(1)
	if firstErr != nil {
		t.sendErrors.Add(1)
		return fmt.Errorf("sending DDP frame: %w", firstErr)
	}
	return nil
}

// Run sends one frame per tick until ctx is cancelled. Send failures are
// logged and skipped; the next tick sends a fresh frame.
func (t *Transmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(t.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.SendFrame(); err != nil {
				// every 100th failure to keep an unplugged device from flooding the log
				if n := t.sendErrors.Load(); n == 1 || n%100 == 0 {
					log.Printf("Warning: %v (%d failed frames)", err, n)
				}
			}
		}
	}
}

// Stats returns frame counters
func (t *Transmitter) Stats() TransmitStats {
	return TransmitStats{
		Frames:     t.frames.Load(),
		SendErrors: t.sendErrors.Load(),
	}
}
