// Package codec converts trade records to and from their fixed 256-byte slot layout.
//
// Slot layout (offsets relative to slot start, integers little-endian):
//
//	symbol      0   32  zero padded text
//	price      32   32  zero padded text
//	quantity   64   32  zero padded text
//	event_time 96    8  uint64
//	trade_time 104   8  uint64
//	trade_id   112   8  uint64
//	is_maker   120   1  non-zero = true
//	reserved   121 135  zero, except the sequence word at 128
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"jotacomputing/trade-shm/structs"
)

const (
	RecordSize = 256
	TextSize   = 32

	SymbolOffset    = 0
	PriceOffset     = 32
	QuantityOffset  = 64
	EventTimeOffset = 96
	TradeTimeOffset = 104
	TradeIDOffset   = 112
	IsMakerOffset   = 120
	ReservedOffset  = 121

	// SeqOffset holds an optional native-endian sequence counter inside the
	// reserved area. Odd while the writer is mid-update. The payload must be
	// stored and loaded with 8-byte atomics on both sides; plain copies may be
	// reordered around the counter on weakly ordered CPUs such as arm64, and
	// tearing then only shows up as a decode failure.
	SeqOffset = 128
	SeqSize   = 8

	// PayloadSize is the prefix a writer copies between sequence bumps.
	PayloadSize = SeqOffset
)

var (
	// ErrTornRead marks a slot that did not decode, most likely because it was
	// read while the writer was updating it. Retry on the next poll.
	ErrTornRead     = errors.New("codec: torn read")
	ErrFieldTooLong = errors.New("codec: text field too long")
)

// Encode returns the slot bytes for rec.
func Encode(rec structs.TradeRecord) ([]byte, error) {
	b := make([]byte, RecordSize)
	if err := EncodeInto(b, rec); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeInto writes rec into dst, which must be exactly RecordSize bytes.
// Reserved bytes, including the sequence word, are zeroed.
func EncodeInto(dst []byte, rec structs.TradeRecord) error {
	mustRecordSize(dst)

	if err := putText(dst, SymbolOffset, "symbol", rec.Symbol); err != nil {
		return err
	}
	if err := putText(dst, PriceOffset, "price", rec.Price); err != nil {
		return err
	}
	if err := putText(dst, QuantityOffset, "quantity", rec.Quantity); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(dst[EventTimeOffset:], rec.EventTime)
	binary.LittleEndian.PutUint64(dst[TradeTimeOffset:], rec.TradeTime)
	binary.LittleEndian.PutUint64(dst[TradeIDOffset:], rec.TradeID)
	if rec.IsMaker {
		dst[IsMakerOffset] = 1
	} else {
		dst[IsMakerOffset] = 0
	}
	clear(dst[ReservedOffset:])
	return nil
}

// Decode parses one slot. b must be exactly RecordSize bytes; anything else is
// a programming error and panics. Slots that do not parse return ErrTornRead.
func Decode(b []byte) (structs.TradeRecord, error) {
	mustRecordSize(b)

	var rec structs.TradeRecord
	var err error
	if rec.Symbol, err = getText(b, SymbolOffset, "symbol"); err != nil {
		return structs.TradeRecord{}, err
	}
	if rec.Price, err = getText(b, PriceOffset, "price"); err != nil {
		return structs.TradeRecord{}, err
	}
	if rec.Quantity, err = getText(b, QuantityOffset, "quantity"); err != nil {
		return structs.TradeRecord{}, err
	}
	rec.EventTime = binary.LittleEndian.Uint64(b[EventTimeOffset:])
	rec.TradeTime = binary.LittleEndian.Uint64(b[TradeTimeOffset:])
	rec.TradeID = binary.LittleEndian.Uint64(b[TradeIDOffset:])
	rec.IsMaker = b[IsMakerOffset] != 0

	if isEmptySlot(rec) {
		return structs.TradeRecord{}, nil
	}

	if rec.Symbol == "" {
		return structs.TradeRecord{}, fmt.Errorf("%w: empty symbol", ErrTornRead)
	}
	if err := checkDecimal("price", rec.Price); err != nil {
		return structs.TradeRecord{}, err
	}
	if err := checkDecimal("quantity", rec.Quantity); err != nil {
		return structs.TradeRecord{}, err
	}
	return rec, nil
}

func mustRecordSize(b []byte) {
	if len(b) != RecordSize {
		panic(fmt.Sprintf("codec: record buffer is %d bytes, want %d", len(b), RecordSize))
	}
}

func putText(dst []byte, off int, name, s string) error {
	if len(s) > TextSize {
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrFieldTooLong, name, len(s), TextSize)
	}
	field := dst[off : off+TextSize]
	n := copy(field, s)
	clear(field[n:])
	return nil
}

func getText(b []byte, off int, name string) (string, error) {
	field := b[off : off+TextSize]
	end := bytes.IndexByte(field, 0)
	if end < 0 {
		end = TextSize
	} else if !allZero(field[end:]) {
		// padding must be zero all the way to the end of the field
		return "", fmt.Errorf("%w: %s has bytes after padding", ErrTornRead, name)
	}
	text := field[:end]
	if !utf8.Valid(text) {
		return "", fmt.Errorf("%w: %s is not valid utf-8", ErrTornRead, name)
	}
	return string(text), nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func checkDecimal(name, s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty %s", ErrTornRead, name)
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return fmt.Errorf("%w: %s %q is not a decimal", ErrTornRead, name, s)
	}
	return nil
}

func isEmptySlot(rec structs.TradeRecord) bool {
	return rec.IsZero()
}
