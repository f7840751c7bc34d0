package rag

import (
	"errors"
	"fmt"

	"github.com/viterin/vek/vek32"
)

var (
	// ErrEmptyVector is returned when a similarity input has no components.
	ErrEmptyVector = errors.New("rag: empty vector")

	// ErrZeroMagnitude is returned when a similarity input is the zero vector.
	ErrZeroMagnitude = errors.New("rag: zero-magnitude vector")
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Vectors of different dimension, empty vectors and zero vectors are
// errors rather than a score.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("rag: dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, ErrEmptyVector
	}
	na, nb := vek32.Norm(a), vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 0, ErrZeroMagnitude
	}
	return float64(vek32.Dot(a, b)) / (float64(na) * float64(nb)), nil
}
