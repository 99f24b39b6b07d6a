package channelService

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/rpc"
)

type membersRequest struct {
	ChannelID      int64   `json:"channel_id" validate:"required"`
	KnownMemberIDs []int64 `json:"known_member_ids"`
}

// Members returns the next page of members the caller does not know yet.
func (cs *ChannelService) Members(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req membersRequest
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
	members, err := cs.Store.MembersExcluding(ctx, req.ChannelID, req.KnownMemberIDs, membersPageSize)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	count, err := cs.Store.MemberCount(ctx, req.ChannelID)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}

	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, formatMember(m))
	}
	rpc.WriteResult(w, id, map[string]interface{}{
		"channel_members": views,
		"member_count":    count,
	})
}

type updateAvatarRequest struct {
	ChannelID int64  `json:"channel_id" validate:"required"`
	Data      string `json:"data"`
}

// UpdateAvatar replaces the channel image with base64 data.
func (cs *ChannelService) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateAvatarRequest
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
	if req.Data == "" {
		cs.respondError(ctx, w, id, rpc.NotFound(), "channel_id", req.ChannelID)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		cs.respondError(ctx, w, id, rpc.Invalid("Invalid `data` argument"), "channel_id", req.ChannelID)
		return
	}

	sum := sha256.Sum256(image)
	cacheKey := hex.EncodeToString(sum[:])
	if err := cs.Store.UpdateChannelImage(ctx, channel.ID, req.Data, cacheKey); err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	cs.notify(ctx, models.ChannelTarget(channel.ID), bus.TypeRecordInsert, map[string]interface{}{
		"Thread": map[string]interface{}{
			"id":               channel.ID,
			"model":            models.ChannelModel,
			"avatar_cache_key": cacheKey,
		},
	})
	rpc.WriteResult(w, id, nil)
}

// Info returns the channel projection, or null when the channel is not visible.
func (cs *ChannelService) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req channelRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	channel, err := cs.Store.VisibleChannel(ctx, req.ChannelID, persona)
	if err != nil {
		if isNotFound(err) {
			rpc.WriteResult(w, id, nil)
			return
		}
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	info, err := cs.channelInfo(ctx, channel, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err, "channel_id", req.ChannelID)
		return
	}
	rpc.WriteResult(w, id, info)
}

type mailDataRequest struct {
	ChannelsAsMember bool `json:"channels_as_member"`
}

// MailData returns the data the web client loads at startup: the channels
// of the caller and their last message.
func (cs *ChannelService) MailData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req mailDataRequest
	id, err := rpc.Decode(r, &req)
	if err != nil {
		rpc.WriteError(w, id, err)
		return
	}
	persona := middleware.PersonaFromContext(ctx)

	result := map[string]interface{}{}
	if !req.ChannelsAsMember || persona.IsAnonymous() {
		rpc.WriteResult(w, id, result)
		return
	}

	channels, err := cs.Store.ChannelsForPersona(ctx, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err)
		return
	}
	threads := make([]*ChannelInfo, 0, len(channels))
	channelIDs := make([]int64, 0, len(channels))
	for i := range channels {
		info, err := cs.channelInfo(ctx, &channels[i], persona)
		if err != nil {
			cs.respondError(ctx, w, id, err, "channel_id", channels[i].ID)
			return
		}
		threads = append(threads, info)
		channelIDs = append(channelIDs, channels[i].ID)
	}
	last, err := cs.Store.LastMessages(ctx, channelIDs)
	if err != nil {
		cs.respondError(ctx, w, id, err)
		return
	}
	formatted, err := cs.MessageService.Format(ctx, last, persona)
	if err != nil {
		cs.respondError(ctx, w, id, err)
		return
	}
	result["Thread"] = threads
	result["Message"] = formatted
	rpc.WriteResult(w, id, result)
}
