package page

// Codec encodes and decodes a fixed-width value of type T. BucketPage
// relies on every encoding taking exactly Size() bytes so that entries
// can be addressed by plain offset arithmetic.
type Codec[T any] interface {
	Size() int32
	Encode(buf []byte, v T)
	Decode(buf []byte) T
}

// Comparator orders two keys, returning a negative number if a < b,
// zero if they're equal, and a positive number if a > b. Supplied by
// the caller rather than required of K itself, since K need not be
// Go-comparable (e.g. GenericKey compares by content up to a
// configured length).
type Comparator[K any] func(a, b K) int
