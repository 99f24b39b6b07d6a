package channelService

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
	messageService "github.com/nikhil/discuss/internal/service/messages"
	"github.com/nikhil/discuss/internal/store"
)

// membersPageSize bounds the members returned by one members call.
const membersPageSize = 100

// Scheduler wakes the unmute job at a given time.
type Scheduler interface {
	ScheduleUnmute(ctx context.Context, at time.Time) error
}

// ChannelService serves the discuss channel endpoints.
type ChannelService struct {
	Store          store.Store
	Bus            bus.Bus
	Unmute         Scheduler
	MessageService *messageService.MessageService
	Log            *logger.Logger
	now            func() time.Time
}

// NewChannelService initializes a new channel service
func NewChannelService(st store.Store, b bus.Bus, unmute Scheduler, messages *messageService.MessageService, log *logger.Logger) *ChannelService {
	return &ChannelService{
		Store:          st,
		Bus:            b,
		Unmute:         unmute,
		MessageService: messages,
		Log:            log,
		now:            time.Now,
	}
}

// channelRequest holds the parameter every channel endpoint takes.
type channelRequest struct {
	ChannelID int64 `json:"channel_id" validate:"required"`
}

// respondError logs a failed request and reports it. Missing records become 404.
func (cs *ChannelService) respondError(ctx context.Context, w http.ResponseWriter, id json.RawMessage, err error, keysAndValues ...interface{}) {
	log := cs.Log.WithContext(ctx)
	var rpcErr *rpc.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("Record not found", keysAndValues...)
		err = rpc.NotFound()
	case errors.As(err, &rpcErr):
		log.Warn(rpcErr.Message, keysAndValues...)
	default:
		log.Error("Request failed", append(keysAndValues, "error", err)...)
	}
	rpc.WriteError(w, id, err)
}

// findOrCreateMemberForSelf returns the membership of the persona, joining
// public channels on the fly. Anonymous callers and non-members of private
// channels get store.ErrNotFound.
func (cs *ChannelService) findOrCreateMemberForSelf(ctx context.Context, channel *models.Channel, p models.Persona) (*models.ChannelMember, error) {
	member, err := cs.Store.MemberForPersona(ctx, channel.ID, p)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return member, err
	}
	if channel.ChannelType != models.ChannelTypeChannel || p.IsAnonymous() {
		return nil, store.ErrNotFound
	}
	member, err = cs.Store.AddMember(ctx, channel.ID, p)
	if err != nil {
		return nil, err
	}
	cs.Log.WithContext(ctx).Info("Persona joined channel", "channel_id", channel.ID, "member_id", member.ID)
	return member, nil
}

// notifyPersona sends a notification to the owner of a membership. Delivery
// failures are logged, the request itself already succeeded.
func (cs *ChannelService) notifyPersona(ctx context.Context, p models.Persona, notifType string, payload interface{}) {
	target, ok := p.Target()
	if !ok {
		return
	}
	cs.notify(ctx, target, notifType, payload)
}

func (cs *ChannelService) notify(ctx context.Context, target models.Target, notifType string, payload interface{}) {
	if err := cs.Bus.SendOne(ctx, target, notifType, payload); err != nil {
		cs.Log.WithContext(ctx).Warn("Failed to send bus notification", "target", target.String(), "type", notifType, "error", err)
	}
}

// optionalString decodes a string the web client may send as false or null for "unset".
type optionalString struct {
	Value *string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "null", "false":
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
