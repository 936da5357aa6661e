package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pavel-mukhanov/exonum/common"
)

// BytesCodec encodes raw byte strings; the encoding is the identity.
type BytesCodec struct{}

func (BytesCodec) Size(key []byte) int {
	return len(key)
}
func (BytesCodec) Write(key []byte, buf []byte) int {
	return copy(buf, key)
}
func (BytesCodec) ToBytes(key []byte) []byte {
	res := make([]byte, len(key))
	copy(res, key)
	return res
}
func (BytesCodec) Read(data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}
func (c BytesCodec) AppendTo(dst []byte, value []byte) []byte {
	return append(dst, value...)
}
func (BytesCodec) FromBytes(data []byte) ([]byte, error) {
	res := make([]byte, len(data))
	copy(res, data)
	return res, nil
}

// StringCodec encodes strings as their UTF-8 bytes.
type StringCodec struct{}

func (StringCodec) Size(key string) int {
	return len(key)
}
func (StringCodec) Write(key string, buf []byte) int {
	return copy(buf, key)
}
func (StringCodec) ToBytes(key string) []byte {
	return []byte(key)
}
func (StringCodec) Read(data []byte) (string, error) {
	return string(data), nil
}
func (StringCodec) AppendTo(dst []byte, value string) []byte {
	return append(dst, value...)
}
func (StringCodec) FromBytes(data []byte) (string, error) {
	return string(data), nil
}

// Uint64KeyCodec encodes uint64 keys big-endian so that the
// byte-lexicographic order of encodings equals the numeric order.
type Uint64KeyCodec struct{}

func (Uint64KeyCodec) Size(uint64) int {
	return 8
}
func (Uint64KeyCodec) Write(key uint64, buf []byte) int {
	binary.BigEndian.PutUint64(buf, key)
	return 8
}
func (c Uint64KeyCodec) ToBytes(key uint64) []byte {
	buf := make([]byte, 8)
	c.Write(key, buf)
	return buf
}
func (Uint64KeyCodec) Read(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: uint64 key needs 8 bytes, got %d", ErrDecode, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Uint32KeyCodec encodes uint32 keys big-endian, ordered numerically.
type Uint32KeyCodec struct{}

func (Uint32KeyCodec) Size(uint32) int {
	return 4
}
func (Uint32KeyCodec) Write(key uint32, buf []byte) int {
	binary.BigEndian.PutUint32(buf, key)
	return 4
}
func (c Uint32KeyCodec) ToBytes(key uint32) []byte {
	buf := make([]byte, 4)
	c.Write(key, buf)
	return buf
}
func (Uint32KeyCodec) Read(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("%w: uint32 key needs 4 bytes, got %d", ErrDecode, len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

// Uint64ValueCodec encodes uint64 values little-endian.
type Uint64ValueCodec struct{}

func (Uint64ValueCodec) ToBytes(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
func (Uint64ValueCodec) AppendTo(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}
func (Uint64ValueCodec) FromBytes(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: uint64 value needs 8 bytes, got %d", ErrDecode, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// Uint32ValueCodec encodes uint32 values little-endian.
type Uint32ValueCodec struct{}

func (Uint32ValueCodec) ToBytes(value uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return buf
}
func (Uint32ValueCodec) AppendTo(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}
func (Uint32ValueCodec) FromBytes(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("%w: uint32 value needs 4 bytes, got %d", ErrDecode, len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// HashCodec encodes common.Hash keys and values as their 32 raw bytes.
type HashCodec struct{}

func (HashCodec) Size(common.Hash) int {
	return common.HashSize
}
func (HashCodec) Write(key common.Hash, buf []byte) int {
	return copy(buf, key[:])
}
func (HashCodec) ToBytes(key common.Hash) []byte {
	return key.ToBytes()
}
func (HashCodec) Read(data []byte) (common.Hash, error) {
	var h common.Hash
	if !h.SetBytes(data) {
		return h, fmt.Errorf("%w: digest needs %d bytes, got %d", ErrDecode, common.HashSize, len(data))
	}
	return h, nil
}
func (HashCodec) AppendTo(dst []byte, value common.Hash) []byte {
	return append(dst, value[:]...)
}
func (HashCodec) FromBytes(data []byte) (common.Hash, error) {
	var h common.Hash
	if !h.SetBytes(data) {
		return h, fmt.Errorf("%w: digest needs %d bytes, got %d", ErrDecode, common.HashSize, len(data))
	}
	return h, nil
}
