package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
	"github.com/nikhil/discuss/internal/store"
)

const defaultGuestName = "Guest"

var errInvalidCredential = errors.New("invalid guest credential")

// AuthService registers guests and checks the credentials of callers.
type AuthService struct {
	Store  store.Store
	Secret []byte
	Log    *logger.Logger
	// SecureCookie marks the guest cookie as https-only.
	SecureCookie bool
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(st store.Store, secret string, log *logger.Logger) *AuthService {
	return &AuthService{
		Store:  st,
		Secret: []byte(secret),
		Log:    log,
	}
}

type initGuestRequest struct {
	Name string `json:"name" validate:"max=512"`
}

// InitGuest registers a guest and hands back its credential, both in the
// response and as the guest cookie. A caller that already is a guest keeps
// its identity.
func (s *AuthService) InitGuest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req initGuestRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}

	persona := middleware.PersonaFromContext(ctx)
	if persona.IsGuest() {
		guest, err := s.Store.GuestByID(ctx, persona.GuestID)
		if err != nil {
			s.Log.WithContext(ctx).Error("Failed to load guest", "guest_id", persona.GuestID, "error", err)
			rpc.WriteError(w, id, err)
			return
		}
		rpc.WriteResult(w, id, map[string]interface{}{"guest": guestInfo(guest)})
		return
	}
	if !persona.IsAnonymous() {
		rpc.WriteError(w, id, rpc.Invalid("Already authenticated"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultGuestName
	}
	token, err := newToken()
	if err != nil {
		s.Log.WithContext(ctx).Error("Failed to generate guest token", "error", err)
		rpc.WriteError(w, id, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		s.Log.WithContext(ctx).Error("Failed to hash guest token", "error", err)
		rpc.WriteError(w, id, err)
		return
	}
	guestID, err := s.Store.CreateGuest(ctx, name, string(hash))
	if err != nil {
		s.Log.WithContext(ctx).Error("Failed to create guest", "error", err)
		rpc.WriteError(w, id, err)
		return
	}

	credential := fmt.Sprintf("%d|%s", guestID, token)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.GuestCookieName,
		Value:    credential,
		Path:     "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		HttpOnly: true,
		Secure:   s.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.Log.WithContext(ctx).Info("Guest registered", "guest_id", guestID)
	rpc.WriteResult(w, id, map[string]interface{}{
		"guest": guestInfo(&models.Guest{ID: guestID, Name: name}),
		"dgid":  credential,
	})
}

func guestInfo(g *models.Guest) map[string]interface{} {
	return map[string]interface{}{"id": g.ID, "name": g.Name, "type": "guest"}
}

// ResolveGuest checks a "<guest_id>|<token>" credential and returns the guest id.
func (s *AuthService) ResolveGuest(ctx context.Context, credential string) (int64, error) {
	idPart, token, ok := strings.Cut(credential, "|")
	if !ok || token == "" {
		return 0, errInvalidCredential
	}
	guestID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, errInvalidCredential
	}
	guest, err := s.Store.GuestByID(ctx, guestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, errInvalidCredential
		}
		return 0, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(guest.AccessTokenHash), []byte(token)); err != nil {
		return 0, errInvalidCredential
	}
	return guest.ID, nil
}

// GenerateJWT creates a user token carrying the ids the auth middleware reads.
func (s *AuthService) GenerateJWT(userID, partnerID int64, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"partner_id": partnerID,
		"exp":        time.Now().Add(ttl).Unix(),
	})

	return token.SignedString(s.Secret)
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
