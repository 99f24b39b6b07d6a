package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhil/discuss/internal/handlers"
	"github.com/nikhil/discuss/internal/middleware"
	authRoute "github.com/nikhil/discuss/internal/routes/Auth"
	channelRoutes "github.com/nikhil/discuss/internal/routes/channels"
	services "github.com/nikhil/discuss/internal/service/auth"
	channelService "github.com/nikhil/discuss/internal/service/channels"
)

// Services holds everything the routes dispatch to.
type Services struct {
	Auth      *middleware.Authenticator
	Guests    *services.AuthService
	Channels  *channelService.ChannelService
	WebSocket *handlers.WebSocketHandler
	Metrics   *middleware.Metrics
	Gatherer  prometheus.Gatherer
}

// RegisterAllRoutes builds the router of the service
func RegisterAllRoutes(s *Services) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, s.Metrics.Middleware)

	authRoute.RegisterAuthRoutes(router, s.Auth, s.Guests)
	channelRoutes.ChannelRoutes(router, s.Auth, s.Channels)
	RegisterWebSocketRoutes(router, s.Auth, s.WebSocket)
	router.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}
