package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"jotacomputing/trade-shm/db"
	"jotacomputing/trade-shm/latency"
	"jotacomputing/trade-shm/structs"
)

// TradeSource is satisfied by *poller.Poller.
type TradeSource interface {
	Latest(symbol string) (structs.TradeRecord, bool)
}

// SummarySource is satisfied by *latency.Tracker.
type SummarySource interface {
	Summary(symbol string) (latency.Summary, error)
	Summaries() []latency.Summary
}

// HistorySource is satisfied by *db.Store.
type HistorySource interface {
	History(ctx context.Context, symbol string, limit int) ([]db.SummaryRow, error)
}

// ReaderHandlers serves what the reader daemon has observed.
type ReaderHandlers struct {
	Trades  TradeSource
	Latency SummarySource
	History HistorySource
}

func (h *ReaderHandlers) Register(e *echo.Echo) {
	e.GET("/trades/:symbol", h.GetTradeHandler)
	e.GET("/latency", h.ListLatencyHandler)
	e.GET("/latency/:symbol", h.GetLatencyHandler)
	e.GET("/latency/:symbol/history", h.GetLatencyHistoryHandler)
}

// GetTradeHandler returns the newest trade the poll loop has seen for a symbol.
func (h *ReaderHandlers) GetTradeHandler(c echo.Context) error {
	symbol := c.Param("symbol")
	rec, ok := h.Trades.Latest(symbol)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no trade seen for "+symbol)
	}
	return c.JSON(http.StatusOK, rec)
}
