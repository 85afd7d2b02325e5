package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{[]byte{}, 0xFFFF},
		{[]byte("123456789"), 0x6F91},
		{[]byte{5, MessageDest}, 0x9E81},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, CRC16(tc.data), "CRC16(%v)", tc.data)
	}
}

func TestCRC16Sensitivity(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	crc := CRC16(data)
	assert.Equal(t, crc, CRC16(data))

	for i := range data {
		corrupt := append([]byte(nil), data...)
		corrupt[i] ^= 0x01
		assert.NotEqual(t, crc, CRC16(corrupt), "bit flip at %d undetected", i)
	}
}
