package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return out
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.Write([]byte(`{"version":`))
	require.NoError(t, err)
	_, err = w.Write([]byte(`"scanadc"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, `{"version":"scanadc"}`, string(inflate(t, buf.Bytes())))

	_, err = w.Write([]byte("late"))
	assert.Equal(t, ErrClosed, err)
	assert.NoError(t, w.Close())
}

func TestCompressSizes(t *testing.T) {
	for _, n := range []int{0, 1, 1000, maxStoredBlock, maxStoredBlock + 1, 3*maxStoredBlock + 7} {
		input := make([]byte, n)
		for i := range input {
			input[i] = byte(i * 7)
		}
		out := inflate(t, Compress(input))
		assert.Equal(t, n, len(out))
		assert.True(t, bytes.Equal(input, out), "size %d", n)
	}
}
