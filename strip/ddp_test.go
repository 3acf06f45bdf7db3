package strip

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendHeader_Layout(t *testing.T) {
	h := AppendHeader(nil, Header{Flags: DefaultFlags, Offset: 0x0102, AppID: 0x03040506, Length: 0x0708})
	assert.Equal(t, []byte{0x41, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, h)

	parsed, err := ParseHeader(h)
	require.NoError(t, err)
	assert.Equal(t, Header{Flags: 0x41, Offset: 0x0102, AppID: 0x03040506, Length: 0x0708}, parsed)
}

func TestParseHeader_Short(t *testing.T) {
	_, err := ParseHeader([]byte{0x41, 0})
	assert.Error(t, err)
}

func TestEncodePixels(t *testing.T) {
	snap := map[int]LedState{
		0:  {Color: Color{R: 1, G: 2, B: 3}},
		4:  {Color: Color{R: 250, G: 251, B: 252}, FadeRemaining: 3},
		10: {Color: Color{R: 9, G: 9, B: 9}}, // off the end of the strip
		-1: {Color: Color{R: 9, G: 9, B: 9}},
	}
	px := EncodePixels(snap, 5)
	assert.Equal(t, []byte{
		1, 2, 3,
		0, 0, 0,
		0, 0, 0,
		0, 0, 0,
		250, 251, 252,
	}, px)
}

func TestEncodeFrame_LengthIndependentOfLitCount(t *testing.T) {
	const n = 358
	for _, lit := range []int{0, 1, 50, n} {
		snap := make(map[int]LedState, lit)
		for i := 0; i < lit; i++ {
			snap[i] = LedState{Color: Color{R: 255}}
		}

		packets, err := EncodeFrame(snap, n, DefaultMaxPayload)
		require.NoError(t, err)
		require.Len(t, packets, 1, "358 LEDs fit in one datagram")

		h, err := ParseHeader(packets[0])
		require.NoError(t, err)
		assert.Equal(t, uint16(3*n), h.Length, "lit=%d", lit)
		assert.Len(t, packets[0], HeaderSize+3*n)
		assert.Equal(t, byte(DefaultFlags), h.Flags)
		assert.Zero(t, h.Offset)
		assert.Zero(t, h.AppID)
	}
}

func TestBuildPackets_Split(t *testing.T) {
	pixels := make([]byte, 3*1000)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	packets, err := BuildPackets(pixels, 1440)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	var reassembled []byte
	for i, p := range packets {
		h, err := ParseHeader(p)
		require.NoError(t, err)
		assert.Equal(t, uint16(len(reassembled)), h.Offset, "packet %d", i)
		assert.Equal(t, int(h.Length), len(p)-HeaderSize)
		if i == len(packets)-1 {
			assert.Equal(t, byte(FlagVersion1|FlagPush), h.Flags, "last packet pushes")
		} else {
			assert.Equal(t, byte(FlagVersion1), h.Flags)
		}
		reassembled = append(reassembled, p[HeaderSize:]...)
	}
	assert.True(t, bytes.Equal(pixels, reassembled))
	assert.Equal(t, uint16(2880), binary.BigEndian.Uint16(packets[2][2:4]))
}

func TestBuildPackets_Empty(t *testing.T) {
	packets, err := BuildPackets(nil, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Len(t, packets[0], HeaderSize)
}

func TestBuildPackets_OffsetOverflow(t *testing.T) {
	_, err := BuildPackets(make([]byte, 70000), 1440)
	assert.Error(t, err)
}

func TestBuildPackets_PayloadLimit(t *testing.T) {
	_, err := BuildPackets(make([]byte, 70002), 70002)
	assert.Error(t, err, "a length field cannot describe a 70002 byte payload")

	pixels := make([]byte, MaxPayloadLimit)
	packets, err := BuildPackets(pixels, MaxPayloadLimit)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	h, err := ParseHeader(packets[0])
	require.NoError(t, err)
	assert.Equal(t, len(pixels), int(h.Length))
	assert.Len(t, packets[0], HeaderSize+MaxPayloadLimit)
}
