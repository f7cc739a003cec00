package handlers

import (
	"errors"
	"net/http"

	echoserver "github.com/dasjott/oauth2-echo-server"
	"github.com/go-oauth2/oauth2/v4"
	"github.com/labstack/echo/v4"

	"jotacomputing/trade-shm/metrics"
	"jotacomputing/trade-shm/slots"
	"jotacomputing/trade-shm/structs"
)

// Publisher is satisfied by *writer.Writer.
type Publisher interface {
	Publish(rec structs.TradeRecord) error
}

type PublishHandlers struct {
	Writer Publisher
}

// PostTradeHandler validates a trade and writes it into its slot.
// Only reachable behind the OAuth2 token middleware.
func (h *PublishHandlers) PostTradeHandler(c echo.Context) error {
	ti, exists := c.Get(echoserver.DefaultConfig.TokenKey).(oauth2.TokenInfo)
	if !exists {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or missing token")
	}

	var tempTrade structs.TempTrade
	if err := c.Bind(&tempTrade); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := tempTrade.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec := tempTrade.Record()
	if err := h.Writer.Publish(rec); err != nil {
		if errors.Is(err, slots.ErrUnknownSymbol) {
			return echo.NewHTTPError(http.StatusNotFound, "symbol has no slot: "+rec.Symbol)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to publish trade")
	}
	metrics.PublishedTotal.WithLabelValues(rec.Symbol).Inc()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "Trade published successfully",
		"symbol":    rec.Symbol,
		"trade_id":  rec.TradeID,
		"client_id": ti.GetClientID(),
	})
}
