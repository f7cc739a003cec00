// Package writer publishes trades into the shared region. It is the reference
// implementation of the writer contract readers rely on: fixed slot order,
// monotonic trade ids, and a sequence word bumped around every update.
package writer

import (
	"sync"

	"jotacomputing/trade-shm/codec"
	"jotacomputing/trade-shm/shm"
	"jotacomputing/trade-shm/slots"
	"jotacomputing/trade-shm/structs"
)

type Writer struct {
	mu     sync.Mutex
	region *shm.Region
	dir    *slots.Directory
	buf    [codec.RecordSize]byte
}

// Create creates (or resizes) the backing file at path with one slot per symbol.
func Create(path string, symbols []string) (*Writer, error) {
	dir, err := slots.New(symbols)
	if err != nil {
		return nil, err
	}
	region, err := shm.Create(path, dir.RegionSize())
	if err != nil {
		return nil, err
	}
	return &Writer{region: region, dir: dir}, nil
}

// Publish overwrites the slot of rec.Symbol with rec.
func (w *Writer) Publish(rec structs.TradeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.dir.Lookup(rec.Symbol)
	if err != nil {
		return err
	}
	if err := codec.EncodeInto(w.buf[:], rec); err != nil {
		return err
	}

	off := w.dir.Offset(idx)
	return w.region.SeqWrite(off+codec.SeqOffset, w.buf[:codec.PayloadSize], off)
}

func (w *Writer) Symbols() []string {
	return w.dir.Symbols()
}

func (w *Writer) Close() error {
	_ = w.region.Flush()
	return w.region.Close()
}
