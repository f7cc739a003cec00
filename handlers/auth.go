package handlers

import (
	echoserver "github.com/dasjott/oauth2-echo-server"
	"github.com/go-oauth2/oauth2/v4/manage"
	"github.com/go-oauth2/oauth2/v4/models"
	"github.com/go-oauth2/oauth2/v4/server"
	"github.com/go-oauth2/oauth2/v4/store"
	"github.com/labstack/echo/v4"
)

// InitOAuth sets up the client-credentials token server for a single
// publisher client. Tokens live in memory only.
func InitOAuth(clientID, clientSecret, domain string) error {
	manager := manage.NewDefaultManager()
	manager.MustTokenStorage(store.NewMemoryTokenStore())

	clientStore := store.NewClientStore()
	if err := clientStore.Set(clientID, &models.Client{
		ID:     clientID,
		Secret: clientSecret,
		Domain: domain,
	}); err != nil {
		return err
	}
	manager.MapClientStorage(clientStore)

	echoserver.InitServer(manager)
	echoserver.SetAllowGetAccessRequest(true)
	echoserver.SetClientInfoHandler(server.ClientFormHandler)
	return nil
}

// RegisterPublisher mounts the token endpoint and the token-protected API.
// InitOAuth must have been called.
func RegisterPublisher(e *echo.Echo, h *PublishHandlers) {
	auth := e.Group("/oauth2")
	auth.GET("/token", echoserver.HandleTokenRequest)
	auth.POST("/token", echoserver.HandleTokenRequest)

	api := e.Group("/api")
	api.Use(echoserver.TokenHandler())
	api.POST("/trades", h.PostTradeHandler)
}
