package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// vlqRanges are the value ranges that fit in 1, 2, 3 and 4 bytes; anything
// outside the last needs the full 5. Matches Klipper's encode_vlq_int.
var vlqRanges = [4]int32{1 << 5, 1 << 12, 1 << 19, 1 << 26}

// EncodeVLQInt appends v in Klipper's variable-length encoding: 7 bits per
// byte, most significant first, high bit set on all but the last byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 1
	for _, r := range vlqRanges {
		if -r <= v && v < 3*r {
			break
		}
		n++
	}
	for i := 0; i < n; i++ {
		shift := uint(7 * (n - 1 - i))
		b := byte(v>>shift) & 0x7F
		if i < n-1 {
			b |= 0x80
		}
		buf[i] = b
	}
	output.Output(buf[:n])
}

// EncodeVLQUint encodes an unsigned integer to VLQ format
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes one value from the front of *data and advances it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	d := *data
	if len(d) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(d[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// negative: sign extend from bit 5
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(d) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(d[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = d[i:]
	return int32(v), nil
}

// DecodeVLQUint decodes a VLQ unsigned integer from the data slice
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes encodes a byte array with length prefix
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes decodes a length-prefixed byte array. The result aliases *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	d := *data
	length, err := DecodeVLQUint(&d)
	if err != nil {
		return nil, err
	}
	if uint32(len(d)) < length {
		return nil, ErrBufferTooSmall
	}
	*data = d[length:]
	return d[:length], nil
}
