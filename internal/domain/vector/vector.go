// Package vector packs fixed-length float32 vectors into the binary blob
// format shared by every persisted row (dimension × 4 bytes, little-endian
// IEEE-754, no header) and scores them by cosine similarity.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kailas-cloud/semdex/internal/domain"
)

// Encode serializes a vector to its binary blob. Round-trips through Decode
// bit-for-bit.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes a blob of exactly dim elements. A blob whose length is
// not a multiple of 4, or that does not match dim, indicates corrupt stored
// data or a model mismatch.
func Decode(blob []byte, dim int) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4: %w", len(blob), domain.ErrCodec)
	}
	if len(blob)/4 != dim {
		return nil, fmt.Errorf("blob holds %d elements, want %d: %w", len(blob)/4, dim, domain.ErrCodec)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths or a zero-norm operand score 0.0, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp float drift so scores stay within the documented bounds.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}
