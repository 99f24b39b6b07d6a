package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
)

const testSecret = "test-secret"

type stubGuests map[string]int64

func (s stubGuests) ResolveGuest(_ context.Context, credential string) (int64, error) {
	if id, ok := s[credential]; ok {
		return id, nil
	}
	return 0, errors.New("unknown guest")
}

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T) string {
	return signToken(t, jwt.MapClaims{
		"user_id":    2,
		"partner_id": 3,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, []byte(testSecret))
}

func personaEcho(got *models.Persona) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = PersonaFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func newAuth() *Authenticator {
	return NewAuthenticator(testSecret, stubGuests{"7|tok": 7}, logger.NewNop())
}

func TestRequireUser(t *testing.T) {
	var got models.Persona
	h := newAuth().RequireUser(personaEcho(&got))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken(t))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.Persona{UserID: 2, PartnerID: 3}, got)
}

func TestRequireUser_RejectsBadTokens(t *testing.T) {
	h := newAuth().RequireUser(personaEcho(new(models.Persona)))
	tokens := map[string]string{
		"wrong secret": signToken(t, jwt.MapClaims{"user_id": 2, "partner_id": 3}, jwt.SigningMethodHS256, []byte("other")),
		"expired":      signToken(t, jwt.MapClaims{"user_id": 2, "partner_id": 3, "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte(testSecret)),
		"no partner":   signToken(t, jwt.MapClaims{"user_id": 2}, jwt.SigningMethodHS256, []byte(testSecret)),
		"garbage":      "not-a-token",
	}
	for name, token := range tokens {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestPublic(t *testing.T) {
	var got models.Persona
	h := newAuth().Public(personaEcho(&got))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, got.IsAnonymous())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: GuestCookieName, Value: "7|tok"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, models.Persona{GuestID: 7}, got)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(GuestHeaderName, "7|wrong")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, got.IsAnonymous())

	req = httptest.NewRequest(http.MethodGet, "/?access_token="+userToken(t), nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(3), got.PartnerID)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", seen)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/discuss/channel/info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodPost)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/discuss/channel/info", nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/discuss/channel/info", http.MethodPost, "404")))
}
