// Package hash implements the extendible hash table itself: directory
// and bucket pages wired together with hashing, key encoding, and
// two-level latching. See pkg/storage/page for the on-disk layouts
// this package drives.
package hash

import (
	"bytes"
	"encoding/binary"

	"xhash/pkg/rid"
	"xhash/pkg/storage/page"
)

// GenericKey is a fixed-width byte buffer standing in for a tuple's
// indexed columns. Go generics can't take an integer as a type
// parameter the way a template can, so instead of GenericKey<N> the
// width is a runtime property carried by GenericKeyCodec and shared
// by every GenericKey a given table produces.
type GenericKey struct {
	data []byte
}

// NewGenericKey copies src into a GenericKey padded/truncated to width.
func NewGenericKey(src []byte, width int32) GenericKey {
	buf := make([]byte, width)
	copy(buf, src)
	return GenericKey{data: buf}
}

// Bytes returns the key's raw backing bytes.
func (k GenericKey) Bytes() []byte {
	return k.data
}

// GenericKeyCodec encodes/decodes fixed-width GenericKey values.
type GenericKeyCodec struct {
	Width int32
}

func (c GenericKeyCodec) Size() int32 { return c.Width }

func (c GenericKeyCodec) Encode(buf []byte, v GenericKey) {
	copy(buf, v.data)
}

func (c GenericKeyCodec) Decode(buf []byte) GenericKey {
	return NewGenericKey(buf, c.Width)
}

// GenericKeyComparator orders GenericKey values lexicographically by
// their raw bytes.
func GenericKeyComparator(a, b GenericKey) int {
	return bytes.Compare(a.data, b.data)
}

// IntComparator orders int32 keys numerically.
func IntComparator(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Int32Codec is the fixed-width Codec for int32 keys/values.
type Int32Codec struct{}

func (Int32Codec) Size() int32 { return 4 }

func (Int32Codec) Encode(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}

func (Int32Codec) Decode(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf))
}

// RIDCodec is the fixed-width Codec for rid.RID values.
type RIDCodec struct{}

func (RIDCodec) Size() int32 { return 8 }

func (RIDCodec) Encode(buf []byte, v rid.RID) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(v.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(v.SlotID))
}

func (RIDCodec) Decode(buf []byte) rid.RID {
	return rid.RID{
		PageID: int32(binary.LittleEndian.Uint32(buf[0:4])),
		SlotID: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
}

var (
	_ page.Codec[int32]       = Int32Codec{}
	_ page.Codec[rid.RID]     = RIDCodec{}
	_ page.Codec[GenericKey]  = GenericKeyCodec{}
)
