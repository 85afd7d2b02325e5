package protocol

import (
	"bytes"
	"errors"
)

var ErrFrameTooLong = errors.New("frame payload too long")

// Frame is one decoded message block.
type Frame struct {
	Sequence uint8
	Payload  []byte // VLQ command id followed by its arguments
}

// EncodeFrame writes a complete frame carrying body to output.
func EncodeFrame(output OutputBuffer, seq uint8, body func(output OutputBuffer)) error {
	var scratch ScratchOutput
	if body != nil {
		body(&scratch)
	}
	payload := scratch.Result()
	if len(payload) > MessagePayloadMax {
		return ErrFrameTooLong
	}

	start := output.CurPosition()
	output.Output([]byte{byte(len(payload) + MessageLengthMin), seq})
	output.Output(payload)
	crc := CRC16(output.DataSince(start))
	output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
	return nil
}

// FrameScanner finds frames in a byte stream, dropping garbage and
// resynchronising on the sync byte after any malformed frame.
type FrameScanner struct {
	desynced bool

	// Resyncs counts how often the scanner had to hunt for a sync byte.
	Resyncs uint32
}

// Synchronized reports whether the scanner is aligned on a frame boundary.
func (s *FrameScanner) Synchronized() bool {
	return !s.desynced
}

// Reset forces the scanner back into the synchronized state.
func (s *FrameScanner) Reset() {
	s.desynced = false
}

// Next looks for the first complete frame in data. It returns the frame, how
// many bytes of data were consumed (including any discarded), and whether a
// frame was found. With ok false the unconsumed tail must be kept and offered
// again with more data. The frame payload aliases data.
func (s *FrameScanner) Next(data []byte) (frame Frame, consumed int, ok bool) {
	for consumed < len(data) {
		d := data[consumed:]

		if s.desynced {
			i := bytes.IndexByte(d, MessageValueSync)
			if i < 0 {
				return Frame{}, len(data), false
			}
			consumed += i + 1
			s.desynced = false
			s.Resyncs++
			continue
		}

		if d[0] == MessageValueSync {
			consumed++
			continue
		}
		// Header bytes are checked as soon as they arrive so garbage is
		// rejected without waiting for a full frame's worth of data.
		n := int(d[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			s.desynced = true
			continue
		}
		if len(d) <= MessagePositionSeq {
			break
		}
		seq := d[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			s.desynced = true
			continue
		}
		if len(d) < n {
			break
		}
		if d[n-MessageTrailerSync] != MessageValueSync {
			s.desynced = true
			continue
		}
		crc := uint16(d[n-MessageTrailerCRC])<<8 | uint16(d[n-MessageTrailerCRC+1])
		if crc != CRC16(d[:n-MessageTrailerSize]) {
			s.desynced = true
			continue
		}

		frame = Frame{Sequence: seq, Payload: d[MessageHeaderSize : n-MessageTrailerSize]}
		return frame, consumed + n, true
	}
	return Frame{}, consumed, false
}
