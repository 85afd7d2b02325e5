//go:build !tinygo

package protocol

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ResponseHandler receives every non-empty frame from the firmware with its
// command id already decoded.
type ResponseHandler func(cmdID uint16, data *[]byte)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSequence        = errors.New("unexpected ack sequence")
)

// DefaultAckTimeout bounds the wait for an ACK when the caller's context has
// no deadline.
const DefaultAckTimeout = 2 * time.Second

// HostTransport is the host side of the link. It frames commands, waits for
// their ACK and retransmits on NAK, and fans responses out to a handler and a
// channel.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic; sequence of the next command

	writeMutex sync.Mutex // one command in flight at a time
	scanner    FrameScanner
	input      *FifoBuffer

	ackChan      chan uint8
	responseChan chan Frame

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	// Retries is how many times a NAKed command is retransmitted.
	Retries int

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
	readErr   error
}

// NewHostTransport wraps port and starts the background reader.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		input:        NewFifoBuffer(MessageMax),
		ackChan:      make(chan uint8, 1),
		responseChan: make(chan Frame, 16),
		Retries:      3,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits until the firmware acknowledges it.
func (t *HostTransport) SendCommand(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultAckTimeout)
		defer cancel()
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	var out ScratchOutput
	err := EncodeFrame(&out, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "command %d", cmdID)
	}

	for attempt := 0; ; attempt++ {
		if err := t.write(out.Result()); err != nil {
			return err
		}
		ack, err := t.waitForAck(ctx)
		if err != nil {
			return errors.Wrapf(err, "command %d seq 0x%02x", cmdID, seq)
		}
		switch {
		case ack == NextSequence(seq):
			atomic.StoreUint32(&t.currentSeq, uint32(ack))
			return nil
		case ack == seq && attempt < t.Retries:
			// NAK, resend
		default:
			return errors.Wrapf(ErrSequence, "sent 0x%02x, got 0x%02x", seq, ack)
		}
	}
}

func (t *HostTransport) write(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return errors.Wrap(err, "write")
	}
	if n != len(msg) {
		return errors.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

func (t *HostTransport) waitForAck(ctx context.Context) (uint8, error) {
	select {
	case seq := <-t.ackChan:
		return seq, nil
	case <-ctx.Done():
		return 0, errors.Wrap(ctx.Err(), "waiting for ack")
	case <-t.stopChan:
		return 0, ErrTransportClosed
	case <-t.doneChan:
		return 0, t.readError()
	}
}

// ReceiveResponse returns the next response frame.
func (t *HostTransport) ReceiveResponse(ctx context.Context) (Frame, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-ctx.Done():
		return Frame{}, errors.Wrap(ctx.Err(), "waiting for response")
	case <-t.stopChan:
		return Frame{}, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback run on the reader goroutine for
// every response. Responses still go to ReceiveResponse as well.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.feed(buffer[:n])
		}
		if err != nil {
			t.readErr = errors.Wrap(err, "read")
			return
		}
	}
}

// feed buffers received bytes and dispatches every complete frame.
func (t *HostTransport) feed(data []byte) {
	for len(data) > 0 {
		n := t.input.Write(data)
		data = data[n:]

		buf := t.input.Data()
		total := 0
		for {
			frame, used, ok := t.scanner.Next(buf[total:])
			total += used
			if !ok {
				break
			}
			t.dispatch(frame)
		}
		t.input.Pop(total)

		if n == 0 && total == 0 {
			// full of bytes that never form a frame
			t.input.Reset()
			t.scanner.desynced = true
		}
	}
}

func (t *HostTransport) dispatch(frame Frame) {
	if len(frame.Payload) == 0 {
		select {
		case t.ackChan <- frame.Sequence:
		default:
			// stale ack nobody is waiting for
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- frame.Sequence
		}
		return
	}

	payload := append([]byte(nil), frame.Payload...)
	frame.Payload = payload

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		data := append([]byte(nil), payload...)
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			handler(uint16(cmdID), &data)
		}
	}

	select {
	case t.responseChan <- frame:
	default:
		// drop the oldest
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- frame
	}
}

func (t *HostTransport) readError() error {
	if t.readErr != nil {
		return t.readErr
	}
	return ErrTransportClosed
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restarts sequence numbering and drops anything queued. The firmware
// treats the next command, sent with the initial sequence, as a host restart.
func (t *HostTransport) Reset() {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	atomic.StoreUint32(&t.currentSeq, MessageDest)
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
}

// CurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
