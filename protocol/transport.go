package protocol

import (
	"bytes"
	"sync/atomic"
)

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it parses host frames,
// dispatches their commands, acknowledges them and frames responses.
type Transport struct {
	scanner      FrameScanner
	nextSequence uint32 // atomic; next sequence expected from the host
	output       OutputBuffer
	handler      CommandHandler

	// Payload of the last accepted frame that carried MessageDest.
	first    [MessagePayloadMax]byte
	firstLen int // -1 when no such frame has been accepted

	resetCallback func() // host restarted its sequence numbering
	flushCallback func() // push an ACK out immediately

	// HandlerErrors counts commands whose handler failed.
	HandlerErrors uint32
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		nextSequence: MessageDest,
		firstLen:     -1,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes every complete frame in input.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	total := 0
	for {
		resyncs := t.scanner.Resyncs
		frame, n, ok := t.scanner.Next(data[total:])
		total += n
		if t.scanner.Resyncs != resyncs {
			t.encodeAck()
		}
		if !ok {
			break
		}
		t.receiveFrame(frame)
	}
	input.Pop(total)
}

func (t *Transport) receiveFrame(frame Frame) {
	expected := uint8(atomic.LoadUint32(&t.nextSequence))
	if frame.Sequence == MessageDest && expected != MessageDest {
		// A host whose ACK for its first frame was lost resends that
		// frame unchanged. Only a different payload, or a session that
		// has already moved past its first frame, counts as a restart.
		if expected == NextSequence(MessageDest) && t.isFirstFrame(frame.Payload) {
			t.encodeAck()
			return
		}
		expected = MessageDest
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	if frame.Sequence == expected {
		if expected == MessageDest {
			t.firstLen = copy(t.first[:], frame.Payload)
		}
		atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(expected)))
		t.dispatch(frame.Payload)
	}
	// ACK on a match, NAK (carrying the expected sequence) otherwise.
	t.encodeAck()
}

func (t *Transport) isFirstFrame(payload []byte) bool {
	return t.firstLen >= 0 && bytes.Equal(t.first[:t.firstLen], payload)
}

// dispatch runs every command in a frame payload.
func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.HandlerErrors++
			t.scanner.desynced = true
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.scanner.desynced = true
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			// arguments of the failed command are unknown, drop the rest
			t.HandlerErrors++
			return
		}
	}
}

func (t *Transport) encodeAck() {
	_ = EncodeFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand frames a message with the current sequence. Messages too long
// for a frame are dropped.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	_ = EncodeFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.scanner.Reset()
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	t.firstLen = -1
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback to immediately flush ACK messages
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
