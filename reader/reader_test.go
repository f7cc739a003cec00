package reader_test

import (
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotacomputing/trade-shm/codec"
	"jotacomputing/trade-shm/reader"
	"jotacomputing/trade-shm/shm"
	"jotacomputing/trade-shm/slots"
	"jotacomputing/trade-shm/structs"
	"jotacomputing/trade-shm/writer"
)

var symbols = []string{"BTCUSDT", "ETHUSDT"}

func btc(id, eventTime uint64) structs.TradeRecord {
	return structs.TradeRecord{
		Symbol:    "BTCUSDT",
		Price:     "67321.1",
		Quantity:  "0.0015",
		EventTime: eventTime,
		TradeTime: eventTime - 2,
		TradeID:   id,
	}
}

func setup(t *testing.T, opts ...reader.Option) (*writer.Writer, *reader.Reader, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "binance_trades")

	w, err := writer.Create(path, symbols)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	r, err := reader.Open(path, symbols, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return w, r, path
}

func TestReader_EndToEnd(t *testing.T) {
	var events []structs.TradeRecord
	w, r, _ := setup(t, reader.WithFreshFunc(func(rec structs.TradeRecord) {
		events = append(events, rec)
	}))

	want := btc(5, 1000)
	require.NoError(t, w.Publish(want))

	got, err := r.Read("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.Len(t, events, 1)
	assert.Equal(t, want, events[0])

	got, err = r.Read("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, events, 1, "unchanged slot must not fire again")
}

func TestReader_Freshness(t *testing.T) {
	w, r, _ := setup(t)

	// never written
	rec, fresh, err := r.Poll("ETHUSDT")
	require.NoError(t, err)
	assert.True(t, rec.IsZero())
	assert.False(t, fresh)

	require.NoError(t, w.Publish(btc(1, 1000)))
	_, fresh, err = r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)

	_, fresh, err = r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, fresh)

	// same id, newer event time: still the same trade by default
	require.NoError(t, w.Publish(btc(1, 1001)))
	_, fresh, err = r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, w.Publish(btc(2, 1002)))
	rec, fresh, err = r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, uint64(2), rec.TradeID)
}

func TestReader_FreshnessByEventTime(t *testing.T) {
	w, r, _ := setup(t, reader.WithFreshnessKey(reader.KeyEventTime))

	require.NoError(t, w.Publish(btc(1, 1000)))
	_, fresh, err := r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, w.Publish(btc(1, 1001)))
	_, fresh, err = r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReader_IndependentReaders(t *testing.T) {
	w, r1, path := setup(t)
	r2, err := reader.Open(path, symbols)
	require.NoError(t, err)
	defer r2.Close()

	require.NoError(t, w.Publish(btc(9, 1000)))

	_, fresh, err := r1.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)

	// r2 keeps its own cache
	_, fresh, err = r2.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestReader_OpenMissingRegion(t *testing.T) {
	_, err := reader.Open(filepath.Join(t.TempDir(), "missing"), symbols)
	assert.ErrorIs(t, err, reader.ErrRegionNotFound)
}

func TestReader_RegionSmallerThanSymbolList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades")
	w, err := writer.Create(path, []string{"BTCUSDT"})
	require.NoError(t, err)
	defer w.Close()

	_, err = reader.Open(path, symbols)
	assert.ErrorIs(t, err, shm.ErrRegionTooSmall)
}

func TestReader_TornReadOddSequence(t *testing.T) {
	w, r, path := setup(t)
	require.NoError(t, w.Publish(btc(1, 1000)))

	raw, err := shm.Open(path, 2*codec.RecordSize)
	require.NoError(t, err)
	defer raw.Close()

	seq, err := raw.LoadUint64(codec.SeqOffset)
	require.NoError(t, err)
	require.NoError(t, raw.StoreUint64(codec.SeqOffset, seq+1))

	_, _, err = r.Poll("BTCUSDT")
	assert.ErrorIs(t, err, reader.ErrTornRead)

	// writer finishes; next poll succeeds
	require.NoError(t, raw.StoreUint64(codec.SeqOffset, seq+2))
	rec, fresh, err := r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, uint64(1), rec.TradeID)
}

func TestReader_TornReadGarbage(t *testing.T) {
	_, r, path := setup(t)

	raw, err := shm.Open(path, 2*codec.RecordSize)
	require.NoError(t, err)
	defer raw.Close()

	// a writer without sequence words, caught halfway through the price
	b, err := codec.Encode(btc(3, 1000))
	require.NoError(t, err)
	copy(b[codec.PriceOffset:], "67\xff")
	require.NoError(t, raw.WriteAt(b, 0))

	_, fresh, err := r.Poll("BTCUSDT")
	assert.ErrorIs(t, err, reader.ErrTornRead)
	assert.False(t, fresh)
}

// scriptedRegion serves a fixed slot and a queue of sequence values.
type scriptedRegion struct {
	slot []byte
	seqs []uint64
}

func (s *scriptedRegion) LoadWords(dst []byte, offset int) error {
	copy(dst, s.slot)
	return nil
}

func (s *scriptedRegion) LoadUint64(offset int) (uint64, error) {
	v := s.seqs[0]
	s.seqs = s.seqs[1:]
	return v, nil
}

func (s *scriptedRegion) Close() error { return nil }

func TestReader_TornReadSequenceMoved(t *testing.T) {
	slot, err := codec.Encode(btc(7, 1000))
	require.NoError(t, err)
	dir, err := slots.New(symbols)
	require.NoError(t, err)

	// writer completed a whole update while the slot was being copied
	region := &scriptedRegion{slot: slot, seqs: []uint64{2, 4}}
	r := reader.New(region, dir)

	_, fresh, err := r.Poll("BTCUSDT")
	assert.ErrorIs(t, err, reader.ErrTornRead)
	assert.False(t, fresh)

	region.seqs = []uint64{4, 4}
	rec, fresh, err := r.Poll("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, uint64(7), rec.TradeID)
}

// tradeFor derives every field from id so a mixed record is detectable.
func tradeFor(id uint64) structs.TradeRecord {
	n := strconv.FormatUint(id, 10)
	return structs.TradeRecord{
		Symbol:    "BTCUSDT",
		Price:     n + ".25",
		Quantity:  "0." + n,
		EventTime: 1_700_000_000_000 + id,
		TradeTime: 1_700_000_000_000 + id - 1,
		TradeID:   id,
		IsMaker:   id%2 == 0,
	}
}

func TestReader_ConcurrentPublishNeverTears(t *testing.T) {
	w, r, _ := setup(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := uint64(1); ; id++ {
			select {
			case <-done:
				return
			default:
			}
			if err := w.Publish(tradeFor(id)); err != nil {
				t.Errorf("publish %d: %v", id, err)
				return
			}
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	var ok, torn int
	deadline := time.Now().Add(5 * time.Second)
	for ok+torn < 200_000 || (torn == 0 && time.Now().Before(deadline)) {
		rec, err := r.Read("BTCUSDT")
		if err != nil {
			require.ErrorIs(t, err, reader.ErrTornRead)
			torn++
			continue
		}
		ok++
		if rec.IsZero() {
			continue
		}
		require.Equal(t, tradeFor(rec.TradeID), rec, "read mixed two updates")
	}

	assert.Positive(t, ok)
	assert.Positive(t, torn, "reader never caught the writer mid-update")
}

func TestReader_SlotMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades")
	w, err := writer.Create(path, []string{"ETHUSDT", "BTCUSDT"})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Publish(btc(1, 1000)))

	r, err := reader.Open(path, symbols)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Read("ETHUSDT")
	assert.ErrorIs(t, err, reader.ErrSlotMismatch)
}

func TestReader_ClosedHandle(t *testing.T) {
	_, r, _ := setup(t)
	require.NoError(t, r.Close())

	_, err := r.Read("BTCUSDT")
	assert.ErrorIs(t, err, reader.ErrHandleClosed)
}

type countingRegion struct {
	reads int
	loads int
}

func (c *countingRegion) LoadWords(dst []byte, offset int) error {
	c.reads++
	clear(dst)
	return nil
}

func (c *countingRegion) LoadUint64(offset int) (uint64, error) {
	c.loads++
	return 0, nil
}

func (c *countingRegion) Close() error { return nil }

func TestReader_UnknownSymbolTouchesNoMemory(t *testing.T) {
	dir, err := slots.New(symbols)
	require.NoError(t, err)
	region := &countingRegion{}
	r := reader.New(region, dir)

	_, err = r.Read("NOTALISTEDSYMBOL")
	assert.ErrorIs(t, err, reader.ErrUnknownSymbol)
	assert.Zero(t, region.reads)
	assert.Zero(t, region.loads)

	_, err = r.Read("ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, region.reads)
	assert.Equal(t, 2, region.loads)
}

func TestReader_OutOfBoundsRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades")
	w, err := writer.Create(path, symbols)
	require.NoError(t, err)
	defer w.Close()

	region, err := shm.Open(path, codec.RecordSize)
	require.NoError(t, err)

	// directory claims a third slot the region does not have
	dir, err := slots.New(append(append([]string(nil), symbols...), "SOLUSDT"))
	require.NoError(t, err)
	r := reader.New(region, dir)
	defer r.Close()

	_, err = r.Read("SOLUSDT")
	assert.ErrorIs(t, err, reader.ErrOutOfBounds)
}
