package utils

import "math/rand"

// KeyValuePair is a pair of key and value int32s.
type KeyValuePair struct {
	Key int32
	Val int32
}

// GenerateRandomKeyValuePairs generates n random key-value pairs with
// unique keys. Returns the n pairs generated in a slice and a map
// that maps the generated keys to the generated values.
func GenerateRandomKeyValuePairs(n int32) ([]KeyValuePair, map[int32]int32) {
	entries := make([]KeyValuePair, n)
	answerKey := make(map[int32]int32, n)
	for i := int32(0); i < n; i++ {
	genKey:
		key := rand.Int31()
		if _, ok := answerKey[key]; ok {
			goto genKey
		}
		val := rand.Int31()
		answerKey[key] = val
		entries[i] = KeyValuePair{Key: key, Val: val}
	}
	return entries, answerKey
}
