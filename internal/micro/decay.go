package micro

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Decay model:
//   - factor = 2^(-λ·Δt), Δt in ticks
//   - weight and every per-dimension sum are scaled by the same factor
//   - applied lazily, on touch, for the whole elapsed interval at once
//   - Δt < 0 means the caller fed ticks out of order; that is never tolerated

// ErrInvalidTimestamp is returned when a tick lies before a cluster's last edit.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// DecayFactor returns 2^(-lambda*dt).
func DecayFactor(lambda float64, dt uint64) float64 {
	if dt == 0 {
		return 1
	}
	return math.Exp2(-lambda * float64(dt))
}

// Decay scales weight and sums in place for the interval [from, to] and
// returns the decayed weight.
func Decay(weight float64, sums [][]float64, lambda float64, from, to uint64) (float64, error) {
	if to < from {
		return weight, fmt.Errorf("decay from %d to %d: %w", from, to, ErrInvalidTimestamp)
	}
	if to == from {
		return weight, nil
	}
	f := DecayFactor(lambda, to-from)
	for _, s := range sums {
		floats.Scale(f, s)
	}
	return weight * f, nil
}
