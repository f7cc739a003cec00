// Package slots maps symbols to their fixed slot in the shared region.
package slots

import (
	"errors"
	"fmt"

	"jotacomputing/trade-shm/codec"
)

var (
	ErrUnknownSymbol   = errors.New("slots: unknown symbol")
	ErrDuplicateSymbol = errors.New("slots: duplicate symbol")
	ErrNoSymbols       = errors.New("slots: empty symbol list")
)

// Directory assigns slot i to the i-th configured symbol. It must be built
// from the same ordered list on the writer and on every reader; nothing in the
// region can detect a mismatch.
type Directory struct {
	symbols []string
	index   map[string]int
}

func New(symbols []string) (*Directory, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		if s == "" {
			return nil, fmt.Errorf("slots: empty symbol at position %d", i)
		}
		if len(s) > codec.TextSize {
			return nil, fmt.Errorf("%w: symbol %q", codec.ErrFieldTooLong, s)
		}
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, s)
		}
		index[s] = i
	}

	return &Directory{
		symbols: append([]string(nil), symbols...),
		index:   index,
	}, nil
}

// Lookup returns the slot index of symbol.
func (d *Directory) Lookup(symbol string) (int, error) {
	i, ok := d.index[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return i, nil
}

// Offset returns the byte offset of slot i.
func (d *Directory) Offset(i int) int {
	return i * codec.RecordSize
}

func (d *Directory) Len() int {
	return len(d.symbols)
}

// RegionSize is the number of bytes a region needs to hold every slot.
func (d *Directory) RegionSize() int {
	return len(d.symbols) * codec.RecordSize
}

func (d *Directory) Symbols() []string {
	return append([]string(nil), d.symbols...)
}
