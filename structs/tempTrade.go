package structs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// max bytes of any text field in a slot
const maxTextLen = 32

// TempTrade is the request body accepted by the publisher API.
type TempTrade struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	EventTime uint64 `json:"event_time"`
	TradeTime uint64 `json:"trade_time"`
	TradeID   uint64 `json:"trade_id"`
	IsMaker   bool   `json:"is_maker"`
}

func (t *TempTrade) Validate() error {
	if t.Symbol == "" {
		return errors.New("symbol must be specified")
	}
	if len(t.Symbol) > maxTextLen {
		return fmt.Errorf("symbol longer than %d bytes", maxTextLen)
	}

	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return fmt.Errorf("price must be a decimal, got %q", t.Price)
	}
	if !price.IsPositive() {
		return errors.New("price must be > 0")
	}
	if len(t.Price) > maxTextLen {
		return fmt.Errorf("price longer than %d bytes", maxTextLen)
	}

	qty, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		return fmt.Errorf("quantity must be a decimal, got %q", t.Quantity)
	}
	if !qty.IsPositive() {
		return errors.New("quantity must be > 0")
	}
	if len(t.Quantity) > maxTextLen {
		return fmt.Errorf("quantity longer than %d bytes", maxTextLen)
	}

	// trade_id 0 is reserved for slots that were never written
	if t.TradeID == 0 {
		return errors.New("trade_id must be non-zero")
	}
	if t.EventTime == 0 {
		return errors.New("event_time must be non-zero")
	}
	return nil
}

// Record converts the validated request into the slot value.
func (t *TempTrade) Record() TradeRecord {
	return TradeRecord{
		Symbol:    t.Symbol,
		Price:     t.Price,
		Quantity:  t.Quantity,
		EventTime: t.EventTime,
		TradeTime: t.TradeTime,
		TradeID:   t.TradeID,
		IsMaker:   t.IsMaker,
	}
}
