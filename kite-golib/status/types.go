package status

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Counter is a monotonic count, safe for concurrent use.
type Counter struct {
	Value int64
}

// Add adds delta.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.Value, delta)
}

// Set overwrites the count.
func (c *Counter) Set(val int64) {
	atomic.StoreInt64(&c.Value, val)
}

// GetValue ...
func (c *Counter) GetValue() int64 {
	return atomic.LoadInt64(&c.Value)
}

// Ratio tracks how often an event succeeds, e.g. views decoded out of views attempted.
type Ratio struct {
	Hits  Counter
	Total Counter
}

// Record counts one event.
func (r *Ratio) Record(hit bool) {
	if hit {
		r.Hits.Add(1)
	}
	r.Total.Add(1)
}

// Value is the hit percentage, 0 before any event.
func (r *Ratio) Value() float64 {
	return percent(r.Hits.GetValue(), r.Total.GetValue())
}

// Breakdown counts occurrences per category and reports each as a share of the total.
type Breakdown struct {
	m      sync.Mutex
	counts map[string]*Counter
	total  Counter
}

// AddCategories registers categories so they are reported before their first hit.
func (b *Breakdown) AddCategories(names ...string) {
	b.m.Lock()
	defer b.m.Unlock()
	for _, name := range names {
		b.counterLocked(name)
	}
}

// HitAndAdd counts one occurrence of name, registering it if needed.
func (b *Breakdown) HitAndAdd(name string) {
	b.m.Lock()
	c := b.counterLocked(name)
	b.m.Unlock()

	c.Add(1)
	b.total.Add(1)
}

func (b *Breakdown) counterLocked(name string) *Counter {
	if b.counts == nil {
		b.counts = make(map[string]*Counter)
	}
	c, ok := b.counts[name]
	if !ok {
		c = new(Counter)
		b.counts[name] = c
	}
	return c
}

// Value maps each category to its percentage of all hits.
func (b *Breakdown) Value() map[string]float64 {
	b.m.Lock()
	defer b.m.Unlock()

	total := b.total.GetValue()
	values := make(map[string]float64, len(b.counts))
	for name, c := range b.counts {
		values[name] = percent(c.GetValue(), total)
	}
	return values
}

// MarshalJSON reports the percentages along with the total.
func (b *Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total  int64              `json:"total"`
		Shares map[string]float64 `json:"shares"`
	}{b.total.GetValue(), b.Value()})
}

func percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return 100 * float64(num) / float64(den)
}
