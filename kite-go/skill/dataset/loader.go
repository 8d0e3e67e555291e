package dataset

import (
	"context"
	"math/rand"

	"github.com/kiteco/skillview/kite-go/skill/frames"
	"github.com/kiteco/skillview/kite-golib/workerpool"
)

// Loader fetches the samples of a batch in parallel and collates them.
type Loader struct {
	Assembler *Assembler
	Collator  Collator
	Workers   int

	rng *rand.Rand
}

// NewLoader returns a loader whose frame sampling is driven by seed.
func NewLoader(a *Assembler, c Collator, workers int, seed int64) *Loader {
	return &Loader{
		Assembler: a,
		Collator:  c,
		Workers:   workers,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Fetch fetches samples concurrently. Every fetch gets its own sampler, so workers share
// no mutable state. Results are in input order.
func (l *Loader) Fetch(ctx context.Context, samples []Sample) []Result {
	results := make([]Result, len(samples))
	jobs := make([]workerpool.Job, len(samples))
	for i := range samples {
		i := i
		sampler := frames.NewSampler(l.rng.Int63())
		jobs[i] = func() error {
			results[i] = l.Assembler.Fetch(ctx, sampler, samples[i])
			return nil
		}
	}

	pool := workerpool.New(l.Workers)
	pool.Add(jobs)
	pool.Close()
	return results
}

// Load fetches and collates one batch.
func (l *Loader) Load(ctx context.Context, samples []Sample) (*Batch, error) {
	return l.Collator.Collate(l.Fetch(ctx, samples))
}

// Batches splits n sample indices into consecutive batches of at most size,
// shuffled first when rng is not nil.
func Batches(n, size int, rng *rand.Rand) [][]int {
	if size < 1 {
		size = 1
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	var out [][]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, order[start:end])
	}
	return out
}

// Select returns the samples at the given indices.
func Select(samples []Sample, idx []int) []Sample {
	out := make([]Sample, len(idx))
	for i, j := range idx {
		out[i] = samples[j]
	}
	return out
}
