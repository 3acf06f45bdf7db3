package strip

import (
	"encoding/binary"
	"fmt"
)

// DDP wire constants
const (
	HeaderSize        = 10
	FlagVersion1      = 0x40
	FlagPush          = 0x01
	DefaultFlags      = FlagVersion1 | FlagPush
	DefaultMaxPayload = 1440 // 480 pixels
	// MaxPayloadLimit is the largest multiple of 3 that fits one UDP datagram
	// (65507 bytes) together with the header
	MaxPayloadLimit   = 65496
	maxOffset         = 0xFFFF
)

// Header is a DDP packet header
type Header struct {
	Flags  byte
	Offset uint16 // byte offset of the payload within the frame
	AppID  uint32
	Length uint16
}

// AppendHeader encodes h onto dst
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, h.Flags, 0)
	dst = binary.BigEndian.AppendUint16(dst, h.Offset)
	dst = binary.BigEndian.AppendUint32(dst, h.AppID)
	dst = binary.BigEndian.AppendUint16(dst, h.Length)
	return dst
}

// ParseHeader decodes the header of a packet
func ParseHeader(packet []byte) (Header, error) {
	if len(packet) < HeaderSize {
		return Header{}, fmt.Errorf("DDP packet too short: %d bytes", len(packet))
	}
	return Header{
		Flags:  packet[0],
		Offset: binary.BigEndian.Uint16(packet[2:4]),
		AppID:  binary.BigEndian.Uint32(packet[4:8]),
		Length: binary.BigEndian.Uint16(packet[8:10]),
	}, nil
}

// EncodePixels flattens a store snapshot into numLEDs RGB triples.
// Unlit LEDs and entries outside the strip are written as black.
func EncodePixels(snapshot map[int]LedState, numLEDs int) []byte {
	pixels := make([]byte, 3*numLEDs)
	for i, st := range snapshot {
		if i < 0 || i >= numLEDs {
			continue
		}
		pixels[3*i] = st.Color.R
		pixels[3*i+1] = st.Color.G
		pixels[3*i+2] = st.Color.B
	}
	return pixels
}

// BuildPackets splits a frame into DDP packets of at most maxPayload
// pixel bytes. Only the last packet carries the push flag.
func BuildPackets(pixels []byte, maxPayload int) ([][]byte, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if maxPayload > MaxPayloadLimit {
		return nil, fmt.Errorf("DDP payload of %d bytes exceeds the %d byte limit", maxPayload, MaxPayloadLimit)
	}
	if len(pixels) == 0 {
		return [][]byte{AppendHeader(make([]byte, 0, HeaderSize), Header{Flags: DefaultFlags})}, nil
	}

	packets := make([][]byte, 0, (len(pixels)+maxPayload-1)/maxPayload)
	for offset := 0; offset < len(pixels); offset += maxPayload {
		if offset > maxOffset {
			return nil, fmt.Errorf("frame of %d bytes exceeds DDP offset range", len(pixels))
		}
		end := min(offset+maxPayload, len(pixels))
		flags := byte(FlagVersion1)
		if end == len(pixels) {
			flags = DefaultFlags
		}
		chunk := pixels[offset:end]
		packet := make([]byte, 0, HeaderSize+len(chunk))
		packet = AppendHeader(packet, Header{
			Flags:  flags,
			Offset: uint16(offset),
			Length: uint16(len(chunk)),
		})
		packets = append(packets, append(packet, chunk...))
	}
	return packets, nil
}

// EncodeFrame builds the packets for one frame of the strip
func EncodeFrame(snapshot map[int]LedState, numLEDs, maxPayload int) ([][]byte, error) {
	return BuildPackets(EncodePixels(snapshot, numLEDs), maxPayload)
}
