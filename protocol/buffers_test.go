package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, 5, buf.Available())

	buf.Pop(2)
	assert.Equal(t, 3, buf.Available())
	assert.Equal(t, []byte{3, 4, 5}, buf.Data())

	buf.Pop(10)
	assert.Equal(t, 0, buf.Available())
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	assert.Equal(t, 3, scratch.CurPosition())

	scratch.Output([]byte{4, 5})
	assert.Equal(t, 5, scratch.CurPosition())

	scratch.Update(0, 99)
	scratch.Update(7, 99) // past the end, ignored
	assert.Equal(t, []byte{99, 2, 3, 4, 5}, scratch.Result())

	assert.Equal(t, []byte{3, 4, 5}, scratch.DataSince(2))
	assert.Nil(t, scratch.DataSince(6))

	scratch.Reset()
	assert.Equal(t, 0, scratch.CurPosition())
	assert.Empty(t, scratch.Result())
}

func TestScratchOutputTruncates(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax+10))
	assert.Equal(t, MessageMax, scratch.CurPosition())
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)
	assert.True(t, fifo.IsEmpty())
	assert.Equal(t, 0, fifo.Available())
	assert.Equal(t, 9, fifo.Free())

	assert.Equal(t, 5, fifo.Write([]byte{1, 2, 3, 4, 5}))
	assert.Equal(t, 5, fifo.Available())

	readBuf := make([]byte, 3)
	assert.Equal(t, 3, fifo.Read(readBuf))
	assert.Equal(t, []byte{1, 2, 3}, readBuf)
	assert.Equal(t, 2, fifo.Available())

	fifo.Pop(1)
	assert.Equal(t, 1, fifo.Available())

	// one slot stays free
	fifo.Reset()
	assert.Equal(t, 9, fifo.Write(make([]byte, 12)))
	assert.Equal(t, 0, fifo.Free())
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Read(make([]byte, 2))

	assert.Equal(t, 2, fifo.Write([]byte{5, 6}))
	assert.Equal(t, []byte{3, 4, 5, 6}, fifo.Data())

	allData := make([]byte, 4)
	assert.Equal(t, 4, fifo.Read(allData))
	assert.Equal(t, []byte{3, 4, 5, 6}, allData)
	assert.True(t, fifo.IsEmpty())
}
