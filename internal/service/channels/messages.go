package channelService

import (
	"net/http"
	"strings"

	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/rpc"
	messageService "github.com/nikhil/discuss/internal/service/messages"
)

type messagesRequest struct {
	ChannelID  int64  `json:"channel_id" validate:"required"`
	SearchTerm string `json:"search_term"`
	Before     int64  `json:"before" validate:"gte=0"`
	After      int64  `json:"after" validate:"gte=0"`
	Limit      int    `json:"limit" validate:"gte=0"`
	Around     *int64 `json:"around"`
}

// Messages returns a page of the channel's messages. Registered users have
// the fetched messages marked as read unless they jumped to a message.
func (cs *ChannelService) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req messagesRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	if _, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona); err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	res, err := cs.MessageService.Fetch(ctx, req.ChannelID, messageService.FetchParams{
		SearchTerm: req.SearchTerm,
		Before:     req.Before,
		After:      req.After,
		Around:     req.Around,
		Limit:      req.Limit,
	})
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	if persona.IsUser() && req.Around == nil {
		ids := make([]int64, len(res.Messages))
		for i, m := range res.Messages {
			ids[i] = m.ID
		}
		if err := cs.Store.MarkMessagesDone(ctx, persona.PartnerID, ids); err != nil {
			cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
			return
		}
	}

	formatted, err := cs.MessageService.Format(ctx, res.Messages, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	result := map[string]interface{}{"messages": formatted}
	if res.Count != nil {
		result["count"] = *res.Count
	}
	rpc.WriteResult(w, id, result)
}

// PinnedMessages returns the pinned messages, most recently pinned first.
func (cs *ChannelService) PinnedMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req channelRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	if _, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona); err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	pinned, err := cs.Store.PinnedMessages(ctx, req.ChannelID)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	formatted, err := cs.MessageService.Format(ctx, pinned, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	rpc.WriteResult(w, id, formatted)
}

type attachmentsRequest struct {
	ChannelID int64 `json:"channel_id" validate:"required"`
	Limit     int   `json:"limit" validate:"gte=0"`
	Before    int64 `json:"before" validate:"gte=0"`
}

// Attachments lists the channel's attachments older than before, newest
// first. Reading the channel is enough to read its attachments.
func (cs *ChannelService) Attachments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req attachmentsRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	if _, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona); err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = messageService.DefaultFetchLimit
	}
	attachments, err := cs.Store.ChannelAttachments(ctx, req.ChannelID, req.Before, limit)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	rpc.WriteResult(w, id, messageService.FormatAttachments(attachments))
}

type messagePostRequest struct {
	ChannelID     int64   `json:"channel_id" validate:"required"`
	Body          string  `json:"body" validate:"max=65536"`
	AttachmentIDs []int64 `json:"attachment_ids"`
}

// MessagePost posts a comment of the caller in the channel, joining public
// channels if needed.
func (cs *ChannelService) MessagePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req messagePostRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	body := strings.TrimSpace(req.Body)
	if body == "" && len(req.AttachmentIDs) == 0 {
		rpc.WriteError(w, id, rpc.Invalid("Cannot post an empty message"))
		return
	}
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
	view, err := cs.MessageService.PostMessage(ctx, member, body, req.AttachmentIDs)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	cs.Log.WithContext(ctx).Info("Message posted", "channel_id", channel.ID, "message_id", view.ID)
	rpc.WriteResult(w, id, view)
}
