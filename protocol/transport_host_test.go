//go:build !tinygo

package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMCU runs a firmware Transport on the far end of a pipe.
type fakeMCU struct {
	conn     net.Conn
	tr       *Transport
	out      *ScratchOutput
	commands chan uint16
	nakFirst bool
	silent   bool
}

func newHostPair(t *testing.T, setup func(m *fakeMCU)) (*HostTransport, *fakeMCU) {
	t.Helper()
	hostEnd, mcuEnd := net.Pipe()
	m := &fakeMCU{
		conn:     mcuEnd,
		out:      NewScratchOutput(),
		commands: make(chan uint16, 16),
	}
	m.tr = NewTransport(m.out, func(cmdID uint16, data *[]byte) error {
		m.commands <- cmdID
		if cmdID == 2 {
			// echo request
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			m.tr.SendCommand(3, func(output OutputBuffer) {
				EncodeVLQUint(output, v+1)
			})
		}
		return nil
	})
	if setup != nil {
		setup(m)
	}
	go m.run()

	h := NewHostTransport(hostEnd)
	t.Cleanup(func() {
		h.Close()
		mcuEnd.Close()
	})
	return h, m
}

func (m *fakeMCU) run() {
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := m.conn.Read(buf)
		if err != nil {
			return
		}
		if m.silent {
			continue
		}
		if m.nakFirst {
			m.nakFirst = false
			_ = EncodeFrame(m.out, MessageDest, nil)
		} else {
			pending = append(pending, buf[:n]...)
			in := NewSliceInputBuffer(pending)
			m.tr.Receive(in)
			pending = append([]byte(nil), in.Data()...)
		}
		if _, err := m.conn.Write(m.out.Result()); err != nil {
			return
		}
		m.out.Reset()
	}
}

func TestHostSendCommand(t *testing.T) {
	h, m := newHostPair(t, nil)
	ctx := context.Background()

	require.NoError(t, h.SendCommand(ctx, 1, nil))
	assert.Equal(t, uint16(1), <-m.commands)
	assert.Equal(t, uint8(0x11), h.CurrentSequence())

	require.NoError(t, h.SendCommand(ctx, 5, nil))
	assert.Equal(t, uint16(5), <-m.commands)
	assert.Equal(t, uint8(0x12), h.CurrentSequence())
}

func TestHostResponse(t *testing.T) {
	h, _ := newHostPair(t, nil)

	handled := make(chan uint32, 1)
	h.SetResponseHandler(func(cmdID uint16, data *[]byte) {
		v, _ := DecodeVLQUint(data)
		handled <- uint32(cmdID)<<16 | v
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.SendCommand(ctx, 2, func(output OutputBuffer) {
		EncodeVLQUint(output, 41)
	}))

	resp, err := h.ReceiveResponse(ctx)
	require.NoError(t, err)
	payload := resp.Payload
	id, _ := DecodeVLQUint(&payload)
	v, _ := DecodeVLQUint(&payload)
	assert.Equal(t, uint32(3), id)
	assert.Equal(t, uint32(42), v)

	assert.Equal(t, uint32(3)<<16|42, <-handled)
}

func TestHostRetransmitOnNak(t *testing.T) {
	h, m := newHostPair(t, func(m *fakeMCU) { m.nakFirst = true })

	require.NoError(t, h.SendCommand(context.Background(), 7, nil))
	assert.Equal(t, uint16(7), <-m.commands)
	assert.Empty(t, m.commands, "command ran once")
	assert.Equal(t, uint8(0x11), h.CurrentSequence())
}

func TestHostAckTimeout(t *testing.T) {
	h, _ := newHostPair(t, func(m *fakeMCU) { m.silent = true })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.SendCommand(ctx, 1, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, uint8(0x10), h.CurrentSequence(), "sequence only advances on ack")
}

func TestHostFrameTooLong(t *testing.T) {
	h, _ := newHostPair(t, nil)
	err := h.SendCommand(context.Background(), 1, func(output OutputBuffer) {
		output.Output(make([]byte, MessagePayloadMax))
	})
	assert.True(t, errors.Is(err, ErrFrameTooLong))
}

func TestHostClose(t *testing.T) {
	h, _ := newHostPair(t, nil)
	require.NoError(t, h.Close())
	assert.NoError(t, h.Close(), "second close is a no-op")

	_, err := h.ReceiveResponse(context.Background())
	assert.Equal(t, ErrTransportClosed, err)
	assert.Error(t, h.SendCommand(context.Background(), 1, nil))
}

func TestHostReset(t *testing.T) {
	resets := make(chan struct{}, 1)
	h, m := newHostPair(t, func(m *fakeMCU) {
		m.tr.SetResetCallback(func() { resets <- struct{}{} })
	})

	require.NoError(t, h.SendCommand(context.Background(), 1, nil))
	<-m.commands
	h.Reset()
	assert.Equal(t, uint8(0x10), h.CurrentSequence())

	require.NoError(t, h.SendCommand(context.Background(), 4, nil))
	assert.Equal(t, uint16(4), <-m.commands)
	<-resets
}
