package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, seq uint8, cmdID uint32, args ...uint32) []byte {
	t.Helper()
	out := NewScratchOutput()
	err := EncodeFrame(out, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, cmdID)
		for _, a := range args {
			EncodeVLQUint(output, a)
		}
	})
	require.NoError(t, err)
	return append([]byte(nil), out.Result()...)
}

func TestEncodeFrameLayout(t *testing.T) {
	out := NewScratchOutput()
	require.NoError(t, EncodeFrame(out, MessageDest, nil))
	assert.Equal(t, []byte{5, MessageDest, 0x9E, 0x81, MessageValueSync}, out.Result())

	frame := buildFrame(t, 0x13, 4, 1, 2)
	assert.Equal(t, byte(len(frame)), frame[MessagePositionLen])
	assert.Equal(t, byte(0x13), frame[MessagePositionSeq])
	assert.Equal(t, byte(MessageValueSync), frame[len(frame)-1])
}

func TestEncodeFrameTooLong(t *testing.T) {
	out := NewScratchOutput()
	err := EncodeFrame(out, MessageDest, func(output OutputBuffer) {
		output.Output(make([]byte, MessagePayloadMax+1))
	})
	assert.Equal(t, ErrFrameTooLong, err)
	assert.Equal(t, 0, out.CurPosition())

	err = EncodeFrame(out, MessageDest, func(output OutputBuffer) {
		output.Output(make([]byte, MessagePayloadMax))
	})
	require.NoError(t, err)
	assert.Equal(t, MessageLengthMax, out.CurPosition())
}

func TestFrameScannerRoundTrip(t *testing.T) {
	data := append(buildFrame(t, 0x10, 7, 300), buildFrame(t, 0x11, 2)...)

	var s FrameScanner
	frame, n, ok := s.Next(data)
	require.True(t, ok)
	assert.Equal(t, uint8(0x10), frame.Sequence)
	payload := frame.Payload
	id, _ := DecodeVLQUint(&payload)
	arg, _ := DecodeVLQUint(&payload)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, uint32(300), arg)

	frame, m, ok := s.Next(data[n:])
	require.True(t, ok)
	assert.Equal(t, uint8(0x11), frame.Sequence)
	assert.Equal(t, len(data), n+m)

	_, m, ok = s.Next(data[n+m:])
	assert.False(t, ok)
	assert.Equal(t, 0, m)
}

func TestFrameScannerPartial(t *testing.T) {
	frame := buildFrame(t, 0x10, 9, 1, 2, 3)

	var s FrameScanner
	for cut := 0; cut < len(frame); cut++ {
		_, n, ok := s.Next(frame[:cut])
		assert.False(t, ok, "cut %d", cut)
		assert.Equal(t, 0, n, "cut %d", cut)
	}
	_, n, ok := s.Next(frame)
	assert.True(t, ok)
	assert.Equal(t, len(frame), n)
	assert.True(t, s.Synchronized())
}

func TestFrameScannerSkipsSyncBytes(t *testing.T) {
	frame := buildFrame(t, 0x10, 1)
	data := append([]byte{MessageValueSync, MessageValueSync}, frame...)

	var s FrameScanner
	_, n, ok := s.Next(data)
	assert.True(t, ok)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint32(0), s.Resyncs)
}

func TestFrameScannerResync(t *testing.T) {
	good := buildFrame(t, 0x10, 1)

	bad := buildFrame(t, 0x10, 1)
	bad[2] ^= 0xFF // corrupt the payload so the CRC fails

	data := append([]byte{}, bad...)
	data = append(data, good...)

	var s FrameScanner
	frame, n, ok := s.Next(data)
	require.True(t, ok)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint8(0x10), frame.Sequence)
	assert.Equal(t, uint32(1), s.Resyncs)
}

func TestFrameScannerGarbage(t *testing.T) {
	var s FrameScanner
	_, n, ok := s.Next([]byte{0x01, 0x02, 0x03})
	assert.False(t, ok)
	assert.Equal(t, 3, n)
	assert.False(t, s.Synchronized())

	// the hunt continues into the next chunk
	data := append([]byte{0x55, MessageValueSync}, buildFrame(t, 0x12, 3)...)
	frame, n, ok := s.Next(data)
	require.True(t, ok)
	assert.Equal(t, len(data), n)
	assert.Equal(t, uint8(0x12), frame.Sequence)
	assert.True(t, s.Synchronized())
}

func TestFrameScannerShortGarbage(t *testing.T) {
	// a bad length byte is rejected before a full header has arrived
	var s FrameScanner
	_, n, ok := s.Next([]byte{0x02})
	assert.False(t, ok)
	assert.Equal(t, 1, n)
	assert.False(t, s.Synchronized())

	frame := buildFrame(t, 0x10, 1)
	_, n, ok = s.Next(append([]byte{MessageValueSync}, frame[:1]...))
	assert.False(t, ok)
	assert.Equal(t, 1, n)
	assert.True(t, s.Synchronized())
}

func TestFrameScannerBadDest(t *testing.T) {
	frame := buildFrame(t, 0x10, 1)
	frame[MessagePositionSeq] = 0x20

	var s FrameScanner
	_, _, ok := s.Next(frame)
	assert.False(t, ok)
	assert.Equal(t, uint32(1), s.Resyncs)
}

func TestNextSequence(t *testing.T) {
	assert.Equal(t, uint8(0x11), NextSequence(0x10))
	assert.Equal(t, uint8(0x10), NextSequence(0x1F))
}
