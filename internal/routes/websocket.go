package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/discuss/internal/handlers"
	"github.com/nikhil/discuss/internal/middleware"
)

// RegisterWebSocketRoutes registers all WebSocket related routes
func RegisterWebSocketRoutes(router *mux.Router, auth *middleware.Authenticator, wsHandler *handlers.WebSocketHandler) {
	// browsers cannot set headers on the handshake: users pass access_token, guests their cookie
	router.Handle("/websocket", auth.Public(http.HandlerFunc(wsHandler.HandleWebSocket))).Methods(http.MethodGet)
}
