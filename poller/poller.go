// Package poller drives a reader at a caller-chosen cadence and feeds fresh
// trades into a latency tracker.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"jotacomputing/trade-shm/codec"
	"jotacomputing/trade-shm/metrics"
	"jotacomputing/trade-shm/structs"
)

// Source is satisfied by *reader.Reader.
type Source interface {
	Poll(symbol string) (structs.TradeRecord, bool, error)
}

// Observer is satisfied by *latency.Tracker.
type Observer interface {
	Observe(symbol string, eventTimeMs uint64) (float64, error)
}

type Poller struct {
	src      Source
	obs      Observer
	symbols  []string
	interval time.Duration
	log      *zap.Logger

	mu     sync.RWMutex
	latest map[string]structs.TradeRecord
}

// New returns a poller over symbols. interval 0 polls in a tight loop.
func New(src Source, obs Observer, symbols []string, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		src:      src,
		obs:      obs,
		symbols:  append([]string(nil), symbols...),
		interval: interval,
		log:      log,
		latest:   make(map[string]structs.TradeRecord, len(symbols)),
	}
}

// PollOnce polls every symbol once. Torn reads are counted and skipped so the
// next pass can retry them; any other error stops the pass.
func (p *Poller) PollOnce() error {
	start := time.Now()
	defer func() { metrics.ObservePoll(time.Since(start)) }()

	for _, sym := range p.symbols {
		rec, fresh, err := p.src.Poll(sym)
		if err != nil {
			if errors.Is(err, codec.ErrTornRead) {
				metrics.TornReadsTotal.WithLabelValues(sym).Inc()
				p.log.Debug("torn read, retrying next poll", zap.String("symbol", sym), zap.Error(err))
				continue
			}
			metrics.ReadErrorsTotal.WithLabelValues(sym).Inc()
			return fmt.Errorf("poll %s: %w", sym, err)
		}
		if !fresh {
			continue
		}

		p.mu.Lock()
		p.latest[sym] = rec
		p.mu.Unlock()

		lat, err := p.obs.Observe(sym, rec.EventTime)
		if err != nil {
			p.log.Warn("skipping latency sample", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		metrics.ObserveFresh(sym, lat)
	}
	return nil
}

// Run polls until ctx is cancelled or a non-retryable error occurs.
// Cancellation is checked between passes, never inside one.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started",
		zap.Strings("symbols", p.symbols),
		zap.Duration("interval", p.interval))

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if err := p.PollOnce(); err != nil {
			p.log.Error("poller stopped", zap.Error(err))
			return err
		}

		if tick == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

// Latest returns the newest fresh record the loop has seen for symbol.
func (p *Poller) Latest(symbol string) (structs.TradeRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.latest[symbol]
	return rec, ok
}
