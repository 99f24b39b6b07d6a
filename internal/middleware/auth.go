package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
)

type ContextKey string

const PersonaContextKey ContextKey = "currentPersona"

// Guest credentials travel in this cookie or header as "<guest_id>|<token>".
const (
	GuestCookieName = "dgid"
	GuestHeaderName = "X-Discuss-Guest"
)

// GuestResolver checks a guest credential and returns the guest id.
type GuestResolver interface {
	ResolveGuest(ctx context.Context, credential string) (int64, error)
}

// Authenticator resolves the persona of a request from a bearer token or a
// guest credential.
type Authenticator struct {
	secret []byte
	guests GuestResolver
	log    *logger.Logger
}

// NewAuthenticator creates the auth middlewares.
func NewAuthenticator(secret string, guests GuestResolver, log *logger.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), guests: guests, log: log}
}

// PersonaFromContext returns the persona set by the auth middlewares.
func PersonaFromContext(ctx context.Context) models.Persona {
	p, _ := ctx.Value(PersonaContextKey).(models.Persona)
	return p
}

// WithPersona stores the persona in the context.
func WithPersona(ctx context.Context, p models.Persona) context.Context {
	return context.WithValue(ctx, PersonaContextKey, p)
}

// RequireUser only lets requests carrying a valid user token through.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			rpc.WriteError(w, nil, rpc.Unauthorized("Missing auth token"))
			return
		}
		persona, err := a.parseUserToken(tokenStr)
		if err != nil {
			a.log.WithContext(r.Context()).Warn("Rejected user token", "error", err)
			rpc.WriteError(w, nil, rpc.Unauthorized("Invalid token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPersona(r.Context(), persona)))
	})
}

// Public lets every request through: users are identified by their token,
// guests by their credential, and anyone else is anonymous.
func (a *Authenticator) Public(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var persona models.Persona
		if tokenStr := bearerToken(r); tokenStr != "" {
			p, err := a.parseUserToken(tokenStr)
			if err != nil {
				a.log.WithContext(r.Context()).Warn("Rejected user token", "error", err)
				rpc.WriteError(w, nil, rpc.Unauthorized("Invalid token"))
				return
			}
			persona = p
		} else if credential := guestCredential(r); credential != "" && a.guests != nil {
			guestID, err := a.guests.ResolveGuest(r.Context(), credential)
			if err != nil {
				// a stale guest cookie falls back to anonymous access
				a.log.WithContext(r.Context()).Debug("Ignoring guest credential", "error", err)
			} else {
				persona = models.Persona{GuestID: guestID}
			}
		}
		next.ServeHTTP(w, r.WithContext(WithPersona(r.Context(), persona)))
	})
}

func (a *Authenticator) parseUserToken(tokenStr string) (models.Persona, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Persona{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Persona{}, errors.New("invalid token claims")
	}
	userID, err := claimID(claims, "user_id")
	if err != nil {
		return models.Persona{}, err
	}
	partnerID, err := claimID(claims, "partner_id")
	if err != nil {
		return models.Persona{}, err
	}
	return models.Persona{UserID: userID, PartnerID: partnerID}, nil
}

// claimID reads a positive integer claim. JWT numbers decode as float64.
func claimID(claims jwt.MapClaims, key string) (int64, error) {
	v, ok := claims[key].(float64)
	if !ok || v <= 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("invalid %s claim", key)
	}
	return int64(v), nil
}

// bearerToken reads the Authorization header, or the access_token query
// parameter for websocket handshakes that cannot set headers.
func bearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func guestCredential(r *http.Request) string {
	if v := r.Header.Get(GuestHeaderName); v != "" {
		return v
	}
	if c, err := r.Cookie(GuestCookieName); err == nil {
		return c.Value
	}
	return ""
}

func ResponseWrapperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
