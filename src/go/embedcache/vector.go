// Package embedcache implements the two-tier embedding cache of §4.4: a
// persistent SQLite-backed keyed store plus an in-memory LRU-with-TTL
// layer in front of it.
package embedcache

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a float32 slice to a little-endian byte slice,
// matching the embeddings table's vector blob format (§6).
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes a little-endian byte slice back into a
// float32 slice.
func DecodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
