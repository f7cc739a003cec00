// Package reader polls trade slots in a shared region and detects fresh updates.
//
// A Reader never blocks, sleeps or retries: every Poll copies whatever is in
// memory right now. Polling cadence, cancellation and retry on ErrTornRead
// belong to the caller.
package reader

import (
	"errors"
	"fmt"

	"jotacomputing/trade-shm/codec"
	"jotacomputing/trade-shm/shm"
	"jotacomputing/trade-shm/slots"
	"jotacomputing/trade-shm/structs"
)

// Errors a Poll can return, re-exported so callers only need this package.
var (
	ErrRegionNotFound = shm.ErrRegionNotFound
	ErrOutOfBounds    = shm.ErrOutOfBounds
	ErrHandleClosed   = shm.ErrHandleClosed
	ErrUnknownSymbol  = slots.ErrUnknownSymbol
	ErrTornRead       = codec.ErrTornRead

	// ErrSlotMismatch means the slot holds a different symbol than the directory
	// expects, i.e. reader and writer were configured with different symbol lists.
	ErrSlotMismatch = errors.New("reader: slot holds a different symbol")
)

// Region is the part of shm.Region the reader needs.
type Region interface {
	LoadWords(dst []byte, offset int) error
	LoadUint64(offset int) (uint64, error)
	Close() error
}

// FreshnessKey selects the field compared between polls.
type FreshnessKey int

const (
	KeyTradeID FreshnessKey = iota
	KeyEventTime
)

// FreshFunc receives every record whose freshness key changed since the previous poll.
type FreshFunc func(rec structs.TradeRecord)

type Option func(*Reader)

func WithFreshFunc(fn FreshFunc) Option {
	return func(r *Reader) { r.onFresh = fn }
}

func WithFreshnessKey(k FreshnessKey) Option {
	return func(r *Reader) { r.key = k }
}

// Reader is not safe for concurrent use; run one polling loop per Reader.
type Reader struct {
	region  Region
	dir     *slots.Directory
	key     FreshnessKey
	onFresh FreshFunc

	buf  [codec.RecordSize]byte
	last map[int]uint64 // slot index -> last freshness key
}

// Open attaches to the region at path, which must hold one slot per symbol.
func Open(path string, symbols []string, opts ...Option) (*Reader, error) {
	dir, err := slots.New(symbols)
	if err != nil {
		return nil, err
	}
	region, err := shm.Open(path, dir.RegionSize())
	if err != nil {
		return nil, err
	}
	return New(region, dir, opts...), nil
}

// New builds a reader over an already attached region. The reader takes
// ownership of region and closes it in Close.
func New(region Region, dir *slots.Directory, opts ...Option) *Reader {
	r := &Reader{
		region: region,
		dir:    dir,
		last:   make(map[int]uint64, dir.Len()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the current record for symbol.
func (r *Reader) Read(symbol string) (structs.TradeRecord, error) {
	rec, _, err := r.Poll(symbol)
	return rec, err
}

// Poll returns the current record for symbol and whether it changed since the
// previous poll of that symbol. An unchanged slot is a valid read. A slot that
// was never written returns the zero record and is never fresh.
func (r *Reader) Poll(symbol string) (structs.TradeRecord, bool, error) {
	idx, err := r.dir.Lookup(symbol)
	if err != nil {
		return structs.TradeRecord{}, false, err
	}
	off := r.dir.Offset(idx)

	rec, err := r.readSlot(off)
	if err != nil {
		return structs.TradeRecord{}, false, fmt.Errorf("%s: %w", symbol, err)
	}
	if !rec.IsZero() && rec.Symbol != symbol {
		return structs.TradeRecord{}, false, fmt.Errorf("%w: slot %d want %s got %s", ErrSlotMismatch, idx, symbol, rec.Symbol)
	}

	k := r.keyOf(rec)
	prev, seen := r.last[idx]
	r.last[idx] = k

	fresh := !rec.IsZero() && (!seen || prev != k)
	if fresh && r.onFresh != nil {
		r.onFresh(rec)
	}
	return rec, fresh, nil
}

// Symbols returns the configured symbols in slot order.
func (r *Reader) Symbols() []string {
	return r.dir.Symbols()
}

// Close detaches from the region.
func (r *Reader) Close() error {
	return r.region.Close()
}

// readSlot copies one slot word by word between two loads of its sequence
// word. An odd or changed sequence means the writer was mid-update.
func (r *Reader) readSlot(off int) (structs.TradeRecord, error) {
	before, err := r.region.LoadUint64(off + codec.SeqOffset)
	if err != nil {
		return structs.TradeRecord{}, err
	}
	if before&1 == 1 {
		return structs.TradeRecord{}, fmt.Errorf("%w: sequence %d is odd", codec.ErrTornRead, before)
	}

	if err := r.region.LoadWords(r.buf[:], off); err != nil {
		return structs.TradeRecord{}, err
	}

	after, err := r.region.LoadUint64(off + codec.SeqOffset)
	if err != nil {
		return structs.TradeRecord{}, err
	}
	if after != before {
		return structs.TradeRecord{}, fmt.Errorf("%w: sequence moved %d -> %d", codec.ErrTornRead, before, after)
	}

	return codec.Decode(r.buf[:])
}

func (r *Reader) keyOf(rec structs.TradeRecord) uint64 {
	if r.key == KeyEventTime {
		return rec.EventTime
	}
	return rec.TradeID
}
