package codec

import "fmt"

// AppendUleb128 appends the unsigned LEB128 encoding of v to dst.
func AppendUleb128(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Uleb128 decodes an unsigned LEB128 number from the head of data and
// returns the value together with the number of bytes consumed.
func Uleb128(data []byte) (uint64, int, error) {
	var res uint64
	for i, b := range data {
		if i > 9 || i == 9 && b > 1 {
			return 0, 0, fmt.Errorf("%w: LEB128 number exceeds 64 bits", ErrDecode)
		}
		res |= uint64(b&0x7F) << (7 * i)
		if b < 0x80 {
			return res, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated LEB128 number", ErrDecode)
}
