package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/nikhil/discuss/internal/database.go"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/store"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuthService(store.NewSQLStore(db), "secret", logger.NewNop())
}

type guestResult struct {
	Result struct {
		Guest struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"guest"`
		DGID string `json:"dgid"`
	} `json:"result"`
}

func initGuest(t *testing.T, s *AuthService, persona models.Persona, body string) (*httptest.ResponseRecorder, guestResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/discuss/guest/init", strings.NewReader(body))
	req = req.WithContext(middleware.WithPersona(req.Context(), persona))
	w := httptest.NewRecorder()
	s.InitGuest(w, req)
	var res guestResult
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func TestInitGuest(t *testing.T) {
	s := newTestService(t)

	w, res := initGuest(t, s, models.Persona{}, `{"name":"Visitor"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Visitor", res.Result.Guest.Name)
	require.NotEmpty(t, res.Result.DGID)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.GuestCookieName, cookies[0].Name)
	assert.Equal(t, res.Result.DGID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	guestID, err := s.ResolveGuest(context.Background(), res.Result.DGID)
	require.NoError(t, err)
	assert.Equal(t, res.Result.Guest.ID, guestID)
}

func TestInitGuest_DefaultNameAndExistingGuest(t *testing.T) {
	s := newTestService(t)

	_, res := initGuest(t, s, models.Persona{}, `{}`)
	assert.Equal(t, defaultGuestName, res.Result.Guest.Name)

	w, again := initGuest(t, s, models.Persona{GuestID: res.Result.Guest.ID}, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, res.Result.Guest.ID, again.Result.Guest.ID)
	assert.Empty(t, again.Result.DGID)
	assert.Empty(t, w.Result().Cookies())

	w, _ = initGuest(t, s, models.Persona{UserID: 1, PartnerID: 1}, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveGuest_Rejects(t *testing.T) {
	s := newTestService(t)
	_, res := initGuest(t, s, models.Persona{}, `{}`)
	idPart, _, _ := strings.Cut(res.Result.DGID, "|")

	for _, credential := range []string{"", "garbage", idPart + "|wrong", "999|token", "x|token", idPart + "|"} {
		_, err := s.ResolveGuest(context.Background(), credential)
		assert.Error(t, err, credential)
	}
}

func TestGenerateJWT(t *testing.T) {
	s := newTestService(t)
	tokenStr, err := s.GenerateJWT(4, 9, time.Hour)
	require.NoError(t, err)

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(4), claims["user_id"])
	assert.Equal(t, float64(9), claims["partner_id"])
}
