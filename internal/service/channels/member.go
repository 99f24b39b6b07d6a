package channelService

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
)

type muteRequest struct {
	ChannelID int64  `json:"channel_id" validate:"required"`
	Minutes   *int64 `json:"minutes" validate:"required"`
}

// Mute silences the channel for the caller: -1 mutes until unmuted, 0
// unmutes, any other value mutes for that many minutes.
func (cs *ChannelService) Mute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req muteRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	channel, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	member, err := cs.findOrCreateMemberForSelf(ctx, channel, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	var until *int64
	switch minutes := *req.Minutes; minutes {
	case -1:
		forever := models.MuteForever
		until = &forever
	case 0:
	default:
		ts, ok := muteDeadline(cs.now(), minutes)
		if !ok {
			rpc.WriteError(w, id, rpc.Invalid("Invalid `minutes` argument"))
			return
		}
		if err := cs.Unmute.ScheduleUnmute(ctx, time.Unix(ts, 0).UTC()); err != nil {
			cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
			return
		}
		until = &ts
	}
	if err := cs.Store.SetMuteUntil(ctx, member.ID, until); err != nil {
		cs.respondError(ctx, w, id, err, "member_id", member.ID)
		return
	}

	cs.notifyPersona(ctx, member.Persona(), bus.TypeRecordInsert, map[string]interface{}{
		"Thread": map[string]interface{}{
			"id":            channel.ID,
			"model":         models.ChannelModel,
			"mute_until_dt": models.DatetimeOrFalse(until),
		},
	})
	rpc.WriteResult(w, id, nil)
}

// muteDeadline returns now plus minutes in unix seconds. Deadlines past
// models.MuteForever, or as far before now, are out of range.
func muteDeadline(now time.Time, minutes int64) (int64, bool) {
	start := now.UTC().Unix()
	limit := (models.MuteForever - start) / 60
	if minutes > limit || minutes < -limit {
		return 0, false
	}
	return start + minutes*60, true
}

var notificationSettings = []string{models.NotifyAll, models.NotifyMentions, models.NotifyNone}

type customNotificationsRequest struct {
	ChannelID           int64          `json:"channel_id" validate:"required"`
	CustomNotifications optionalString `json:"custom_notifications"`
}

// UpdateCustomNotifications sets which messages of the channel notify the
// caller. Null or false falls back to the user's default.
func (cs *ChannelService) UpdateCustomNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req customNotificationsRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	value := req.CustomNotifications.Value
	if value != nil && !contains(notificationSettings, *value) {
		rpc.WriteError(w, id, rpc.Invalid(fmt.Sprintf(
			"Invalid `custom_notifications` argument, expected one of: %s", strings.Join(notificationSettings, " "))))
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	channel, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	member, err := cs.findOrCreateMemberForSelf(ctx, channel, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	if err := cs.Store.SetCustomNotifications(ctx, member.ID, value); err != nil {
		cs.respondError(ctx, w, id, err, "member_id", member.ID)
		return
	}

	cs.notifyPersona(ctx, member.Persona(), bus.TypeRecordInsert, map[string]interface{}{
		"Thread": map[string]interface{}{
			"custom_notifications": stringOrFalse(value),
			"id":                   channel.ID,
			"model":                models.ChannelModel,
		},
	})
	rpc.WriteResult(w, id, nil)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

type markAsReadRequest struct {
	ChannelID     int64 `json:"channel_id" validate:"required"`
	LastMessageID int64 `json:"last_message_id" validate:"required"`
}

// MarkAsRead records the caller as having seen the channel up to
// last_message_id. Callers that are not members get a null result.
func (cs *ChannelService) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req markAsReadRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	channel, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	member, err := cs.Store.MemberForPersona(ctx, channel.ID, persona)
	if err != nil {
		if isNotFound(err) {
			rpc.WriteResult(w, id, nil)
			return
		}
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	last, err := cs.Store.LastMessageUpTo(ctx, channel.ID, req.LastMessageID)
	if err != nil {
		if isNotFound(err) {
			rpc.WriteResult(w, id, nil)
			return
		}
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	separator := member.NewMessageSeparator
	if last.ID+1 > separator {
		separator = last.ID + 1
	}
	if err := cs.Store.SetSeenMessage(ctx, member.ID, last.ID, separator); err != nil {
		cs.respondError(ctx, w, id, err, "member_id", member.ID)
		return
	}

	payload := map[string]interface{}{
		"channel_id":      channel.ID,
		"id":              member.ID,
		"last_message_id": last.ID,
	}
	if member.PartnerID != 0 {
		payload["partner_id"] = member.PartnerID
	} else {
		payload["guest_id"] = member.GuestID
	}
	// read receipts are public in conversations, private in channels
	if channel.AllowsSeenInfos() {
		cs.notify(ctx, models.ChannelTarget(channel.ID), bus.TypeMemberSeen, payload)
	} else {
		cs.notifyPersona(ctx, member.Persona(), bus.TypeMemberSeen, payload)
	}
	rpc.WriteResult(w, id, payload)
}

type markAsUnreadRequest struct {
	ChannelID int64           `json:"channel_id" validate:"required"`
	MessageID json.RawMessage `json:"message_id" validate:"required"`
}

// MarkAsUnread moves the caller's first-unread pointer back to message_id.
func (cs *ChannelService) MarkAsUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req markAsUnreadRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	messageID, err := rpc.ParseID(req.MessageID)
	if err != nil {
		rpc.WriteError(w, id, rpc.Invalid("Invalid `message_id` argument"))
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	member, err := cs.Store.MemberForPersona(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	if err := cs.Store.SetNewMessageSeparator(ctx, member.ID, messageID); err != nil {
		cs.respondError(ctx, w, id, err, "member_id", member.ID)
		return
	}

	view := map[string]interface{}{
		"id":                    member.ID,
		"new_message_separator": messageID,
		"persona":               personaView(*member),
		"syncUnread":            true,
		"thread":                threadRef(member.ChannelID),
	}
	cs.notifyPersona(ctx, member.Persona(), bus.TypeRecordInsert, map[string]interface{}{"ChannelMember": view})
	rpc.WriteResult(w, id, view)
}

type notifyTypingRequest struct {
	ChannelID int64 `json:"channel_id" validate:"required"`
	IsTyping  *bool `json:"is_typing" validate:"required"`
}

// NotifyTyping tells the channel whether the caller is typing.
func (cs *ChannelService) NotifyTyping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req notifyTypingRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	channel, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	member, err := cs.findOrCreateMemberForSelf(ctx, channel, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	cs.notify(ctx, models.ChannelTarget(channel.ID), bus.TypeTypingStatus, map[string]interface{}{
		"id":       member.ID,
		"isTyping": *req.IsTyping,
		"persona":  personaView(*member),
		"thread":   threadRef(channel.ID),
	})
	rpc.WriteResult(w, id, nil)
}

type foldRequest struct {
	ChannelID  int64  `json:"channel_id" validate:"required"`
	State      string `json:"state" validate:"required,oneof=open folded closed"`
	StateCount int64  `json:"state_count"`
}

// Fold opens, folds or closes the caller's chat window of the channel.
func (cs *ChannelService) Fold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req foldRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	member, err := cs.Store.MemberForPersona(ctx, req.ChannelID, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	changed := member.FoldState != req.State
	if changed {
		if err := cs.Store.SetFoldState(ctx, member.ID, req.State); err != nil {
			cs.respondError(ctx, w, id, err, "member_id", member.ID)
			return
		}
		cs.notifyPersona(ctx, member.Persona(), bus.TypeFoldState, map[string]interface{}{
			"foldStateCount": req.StateCount,
			"id":             member.ChannelID,
			"model":          models.ChannelModel,
			"fold_state":     req.State,
		})
	}
	rpc.WriteResult(w, id, map[string]interface{}{
		"id":         member.ChannelID,
		"fold_state": req.State,
		"changed":    changed,
	})
}
