package structs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTempTrade() TempTrade {
	return TempTrade{
		Symbol:    "BTCUSDT",
		Price:     "67321.10",
		Quantity:  "0.00150",
		EventTime: 1700000000123,
		TradeTime: 1700000000120,
		TradeID:   42,
		IsMaker:   true,
	}
}

func TestTempTradeValidate(t *testing.T) {
	tt := validTempTrade()
	require.NoError(t, tt.Validate())

	cases := []struct {
		name   string
		mutate func(*TempTrade)
		want   string
	}{
		{"empty symbol", func(t *TempTrade) { t.Symbol = "" }, "symbol must be specified"},
		{"long symbol", func(t *TempTrade) { t.Symbol = strings.Repeat("X", 33) }, "symbol longer"},
		{"bad price", func(t *TempTrade) { t.Price = "abc" }, "price must be a decimal"},
		{"zero price", func(t *TempTrade) { t.Price = "0.000" }, "price must be > 0"},
		{"negative quantity", func(t *TempTrade) { t.Quantity = "-1" }, "quantity must be > 0"},
		{"long quantity", func(t *TempTrade) { t.Quantity = "0." + strings.Repeat("1", 31) }, "quantity longer"},
		{"zero trade id", func(t *TempTrade) { t.TradeID = 0 }, "trade_id"},
		{"zero event time", func(t *TempTrade) { t.EventTime = 0 }, "event_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tt := validTempTrade()
			tc.mutate(&tt)
			err := tt.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestTempTradeRecordKeepsText(t *testing.T) {
	tt := validTempTrade()
	rec := tt.Record()

	// trailing zeros are part of the wire text
	assert.Equal(t, "67321.10", rec.Price)
	assert.Equal(t, "0.00150", rec.Quantity)
	assert.Equal(t, uint64(42), rec.TradeID)
	assert.True(t, rec.IsMaker)
	assert.False(t, rec.IsZero())
}
