package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
	"github.com/nikhil/discuss/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the web client origin once it is configurable
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub   *models.Hub
	store store.Store
	log   *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *models.Hub, st store.Store, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, store: st, log: log}
}

// HandleWebSocket upgrades the connection and subscribes it to the caller's
// persona and to every channel the caller is a member of.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	persona := middleware.PersonaFromContext(r.Context())
	if persona.IsAnonymous() {
		rpc.WriteError(w, nil, rpc.Unauthorized("Unauthorized"))
		return
	}
	// the request context ends with this handler, the pumps outlive it
	ctx := context.WithoutCancel(r.Context())
	log := h.log.WithContext(ctx).WithFields(map[string]interface{}{
		"partner_id": persona.PartnerID,
		"guest_id":   persona.GuestID,
	})

	targets, err := h.targets(ctx, persona)
	if err != nil {
		log.Error("Failed to load subscriptions", "error", err)
		rpc.WriteError(w, nil, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Error upgrading connection", "error", err)
		return
	}

	client := &models.Client{
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Persona: persona,
		Targets: targets,
		Resubscribe: func(ctx context.Context) ([]models.Target, error) {
			return h.targets(ctx, persona)
		},
	}

	// Register the client with the hub
	if !h.hub.Join(client) {
		log.Warn("Websocket hub stopped, dropping connection")
		conn.Close()
		return
	}
	log.Debug("Websocket connected", "targets", len(targets))

	// Start goroutines for reading and writing messages
	go client.WritePump()
	go client.ReadPump(ctx)
}

func (h *WebSocketHandler) targets(ctx context.Context, p models.Persona) ([]models.Target, error) {
	self, _ := p.Target()
	targets := []models.Target{self}
	channels, err := h.store.ChannelsForPersona(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		targets = append(targets, models.ChannelTarget(ch.ID))
	}
	return targets, nil
}
