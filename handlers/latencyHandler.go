package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"jotacomputing/trade-shm/latency"
)

const maxHistoryLimit = 1000

func (h *ReaderHandlers) ListLatencyHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Latency.Summaries())
}

func (h *ReaderHandlers) GetLatencyHandler(c echo.Context) error {
	symbol := c.Param("symbol")
	sum, err := h.Latency.Summary(symbol)
	if errors.Is(err, latency.ErrNoData) {
		return echo.NewHTTPError(http.StatusNotFound, "no latency samples for "+symbol)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

// GetLatencyHistoryHandler returns persisted summaries, newest first.
// ?limit=N caps the number of rows (default 100).
func (h *ReaderHandlers) GetLatencyHistoryHandler(c echo.Context) error {
	if h.History == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history storage disabled")
	}

	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	rows, err := h.History.History(c.Request().Context(), c.Param("symbol"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load latency history")
	}
	return c.JSON(http.StatusOK, rows)
}
