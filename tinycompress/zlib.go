// Package tinycompress writes zlib streams without the compress/flate
// machinery, which does not fit small targets. Data is stored, not
// compressed; any zlib reader accepts the output.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest DEFLATE stored block.
const maxStoredBlock = 0xFFFF

var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written and emits the zlib stream on Close.
type Writer struct {
	output   io.Writer
	inputBuf []byte
	closed   bool
}

// NewWriter creates a new zlib Writer compatible with io.WriteCloser
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output:   w,
		inputBuf: make([]byte, 0, 2048),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.inputBuf = append(w.inputBuf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.output.Write(Compress(w.inputBuf))
	return err
}

// Compress returns input wrapped as a zlib stream.
func Compress(input []byte) []byte {
	blocks := (len(input) + maxStoredBlock - 1) / maxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, 2+5*blocks+len(input)+4)

	// CMF/FLG: deflate, 32K window, no dictionary
	out = append(out, 0x78, 0x01)

	rest := input
	for {
		n := len(rest)
		final := byte(1)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0
		}
		length := uint16(n)
		nlength := ^length
		out = append(out, final, byte(length), byte(length>>8), byte(nlength), byte(nlength>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	checksum := adler32.Checksum(input)
	return append(out, byte(checksum>>24), byte(checksum>>16), byte(checksum>>8), byte(checksum))
}
