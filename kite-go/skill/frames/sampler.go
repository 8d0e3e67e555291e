// Package frames samples frame positions from videos and decodes them into RGB tensors.
package frames

import (
	"fmt"
	"math/rand"
)

// Sampler draws frame index sets. A Sampler is not safe for concurrent use;
// give each worker its own.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler seeded with seed.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample draws clipLen indices from a video of segLen frames, covering a window of
// clipLen*sampleRate frames ending at a random position.
func (s *Sampler) Sample(clipLen, sampleRate, segLen int) ([]int, error) {
	return SampleIndices(s.rng, clipLen, sampleRate, segLen)
}

// SampleIndices draws clipLen non-decreasing indices in [0, segLen-1].
//
// The window ends at a uniform position in [clipLen*sampleRate, segLen) when the video is
// long enough, otherwise at segLen-1. Positions are evenly spaced over [start, end]
// inclusive, clamped to [start, end-1] and floored.
func SampleIndices(rng *rand.Rand, clipLen, sampleRate, segLen int) ([]int, error) {
	switch {
	case clipLen < 1:
		return nil, fmt.Errorf("clip length must be positive, got %d", clipLen)
	case sampleRate < 1:
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	case segLen < 1:
		return nil, fmt.Errorf("segment length must be positive, got %d", segLen)
	}

	converted := clipLen * sampleRate
	end := segLen - 1
	if segLen > converted {
		end = converted + rng.Intn(segLen-converted)
	}
	start := end - converted
	if start < 0 {
		start = 0
	}

	hi := float64(end - 1)
	if hi < float64(start) {
		// single-frame videos
		hi = float64(start)
	}

	indices := make([]int, clipLen)
	for i, pos := range linspace(float64(start), float64(end), clipLen) {
		if pos > hi {
			pos = hi
		}
		if pos < float64(start) {
			pos = float64(start)
		}
		indices[i] = int(pos)
	}
	return indices, nil
}

// linspace returns n evenly spaced values over [start, stop]; a single value is start.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
