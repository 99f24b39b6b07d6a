package channelService

import (
	"context"

	"github.com/nikhil/discuss/internal/models"
)

// ThreadRef points the web client at a channel record.
type ThreadRef struct {
	ID    int64  `json:"id"`
	Model string `json:"model"`
}

func threadRef(channelID int64) ThreadRef {
	return ThreadRef{ID: channelID, Model: models.ChannelModel}
}

// PersonaView is the owner of a membership.
type PersonaView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// MemberView is the projection of a channel member.
type MemberView struct {
	ID                  int64       `json:"id"`
	Thread              ThreadRef   `json:"thread"`
	Persona             PersonaView `json:"persona"`
	FoldState           string      `json:"fold_state"`
	SeenMessageID       int64       `json:"seen_message_id"`
	NewMessageSeparator int64       `json:"new_message_separator"`
	CreateDate          string      `json:"create_date"`
}

func personaView(m models.ChannelMember) PersonaView {
	if m.PartnerID != 0 {
		return PersonaView{ID: m.PartnerID, Name: m.PersonaName, Type: "partner"}
	}
	return PersonaView{ID: m.GuestID, Name: m.PersonaName, Type: "guest"}
}

func formatMember(m models.ChannelMember) MemberView {
	return MemberView{
		ID:                  m.ID,
		Thread:              threadRef(m.ChannelID),
		Persona:             personaView(m),
		FoldState:           m.FoldState,
		SeenMessageID:       m.SeenMessageID,
		NewMessageSeparator: m.NewMessageSeparator,
		CreateDate:          models.FormatDatetime(m.CreatedAt),
	}
}

// ChannelInfo is the projection of a channel for one caller. The member
// fields are only present when the caller belongs to the channel.
type ChannelInfo struct {
	ID             int64  `json:"id"`
	Model          string `json:"model"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	ChannelType    string `json:"channel_type"`
	AvatarCacheKey string `json:"avatar_cache_key"`
	CreateDate     string `json:"create_date"`
	MemberCount    int    `json:"member_count"`
	IsMember       bool   `json:"is_member"`
	*SelfMemberInfo
}

// SelfMemberInfo is the caller's own state in a channel.
type SelfMemberInfo struct {
	MemberID             int64       `json:"member_id"`
	CustomNotifications  interface{} `json:"custom_notifications"`
	MuteUntilDt          interface{} `json:"mute_until_dt"`
	FoldState            string      `json:"fold_state"`
	SeenMessageID        int64       `json:"seen_message_id"`
	NewMessageSeparator  int64       `json:"new_message_separator"`
	MessageUnreadCounter int         `json:"message_unread_counter"`
}

func stringOrFalse(v *string) interface{} {
	if v == nil {
		return false
	}
	return *v
}

// channelInfo builds the projection of a channel as seen by p.
func (cs *ChannelService) channelInfo(ctx context.Context, ch *models.Channel, p models.Persona) (*ChannelInfo, error) {
	count, err := cs.Store.MemberCount(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	info := &ChannelInfo{
		ID:             ch.ID,
		Model:          models.ChannelModel,
		Name:           ch.Name,
		Description:    ch.Description,
		ChannelType:    ch.ChannelType,
		AvatarCacheKey: ch.AvatarCacheKey,
		CreateDate:     models.FormatDatetime(ch.CreatedAt),
		MemberCount:    count,
	}
	if p.IsAnonymous() {
		return info, nil
	}

	member, err := cs.Store.MemberForPersona(ctx, ch.ID, p)
	if err != nil {
		if isNotFound(err) {
			return info, nil
		}
		return nil, err
	}
	unread, err := cs.Store.UnreadCounter(ctx, ch.ID, member.NewMessageSeparator)
	if err != nil {
		return nil, err
	}
	info.IsMember = true
	info.SelfMemberInfo = &SelfMemberInfo{
		MemberID:             member.ID,
		CustomNotifications:  stringOrFalse(member.CustomNotifications),
		MuteUntilDt:          models.DatetimeOrFalse(member.MuteUntil),
		FoldState:            member.FoldState,
		SeenMessageID:        member.SeenMessageID,
		NewMessageSeparator:  member.NewMessageSeparator,
		MessageUnreadCounter: unread,
	}
	return info, nil
}
