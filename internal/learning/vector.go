package learning

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when a stored embedding does not decode to
// the expected number of dimensions. Stored vectors are never silently
// truncated or padded; a mismatch means the row was written by an incompatible
// embedding configuration and must be surfaced.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EncodeVector packs a float32 vector into little-endian bytes for storage.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a stored embedding and validates its dimensionality.
func DecodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != dim*4 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDimensionMismatch, len(b), dim*4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Normalize scales v to unit L2 norm. A zero vector is returned unchanged
// rather than dividing by zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine computes the cosine similarity of two vectors in [-1, 1]. Mismatched
// lengths and zero-magnitude vectors score 0 rather than erroring, so a single
// corrupt row can never block matching.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
