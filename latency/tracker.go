// Package latency keeps one-way latency samples per symbol and summarises them.
package latency

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// DefaultWindow is the number of newest samples kept per symbol.
const DefaultWindow = 1 << 16

var (
	ErrNoData = errors.New("latency: no samples")
	// ErrEventTime rejects event times that do not fit a signed millisecond clock.
	ErrEventTime = errors.New("latency: event time out of range")
)

// Clock supplies the local receive time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Summary describes the samples currently held for one symbol, in milliseconds.
type Summary struct {
	Symbol string  `json:"symbol"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	clock  Clock
	window int
	series map[string]*ring
}

func NewTracker(window int, clock Clock) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Tracker{
		clock:  clock,
		window: window,
		series: make(map[string]*ring),
	}
}

// Observe records now - eventTimeMs for symbol and returns the sample.
// The sample is negative when the local clock is behind the exchange.
// Event times above math.MaxInt64 are not recorded.
func (t *Tracker) Observe(symbol string, eventTimeMs uint64) (float64, error) {
	if eventTimeMs > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s %d", ErrEventTime, symbol, eventTimeMs)
	}
	sample := float64(t.clock.Now().UnixMilli() - int64(eventTimeMs))

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[symbol]
	if !ok {
		s = newRing(t.window)
		t.series[symbol] = s
	}
	s.push(sample)
	return sample, nil
}

// Summary computes statistics over the samples currently held for symbol.
func (t *Tracker) Summary(symbol string) (Summary, error) {
	t.mu.Lock()
	s, ok := t.series[symbol]
	var samples []float64
	if ok && s.len() > 0 {
		samples = s.values()
	}
	t.mu.Unlock()

	if len(samples) == 0 {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return summarize(symbol, samples), nil
}

// Summaries returns a summary for every symbol with samples, sorted by symbol.
func (t *Tracker) Summaries() []Summary {
	syms := t.Symbols()
	out := make([]Summary, 0, len(syms))
	for _, sym := range syms {
		if s, err := t.Summary(sym); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Symbols lists the symbols observed so far, sorted.
func (t *Tracker) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.series))
	for sym := range t.series {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Reset drops every sample of symbol.
func (t *Tracker) Reset(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.series, symbol)
}

func summarize(symbol string, samples []float64) Summary {
	slices.Sort(samples)

	var sum float64
	for _, v := range samples {
		sum += v
	}
	n := float64(len(samples))
	mean := sum / n

	var variance float64
	for _, v := range samples {
		variance += (v - mean) * (v - mean)
	}

	return Summary{
		Symbol: symbol,
		Count:  len(samples),
		Mean:   mean,
		Median: percentile(samples, 50),
		StdDev: math.Sqrt(variance / n),
		P95:    percentile(samples, 95),
		P99:    percentile(samples, 99),
		Min:    samples[0],
		Max:    samples[len(samples)-1],
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	i := int(rank)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}
