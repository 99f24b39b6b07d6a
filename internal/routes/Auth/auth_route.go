package authRoute

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/discuss/internal/middleware"
	services "github.com/nikhil/discuss/internal/service/auth"
)

func RegisterAuthRoutes(router *mux.Router, auth *middleware.Authenticator, authService *services.AuthService) {
	// Guests register themselves, callers may already hold a credential
	guestRouter := router.PathPrefix("/discuss/guest").Subrouter()
	guestRouter.Use(auth.Public, middleware.ResponseWrapperMiddleware)
	guestRouter.HandleFunc("/init", authService.InitGuest).Methods(http.MethodPost)
}
