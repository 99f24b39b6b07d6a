package models

import "time"

// ChannelModel is the model name messages and attachments use to point at a channel.
const ChannelModel = "discuss.channel"

// Channel types
const (
	ChannelTypeChannel = "channel"
	ChannelTypeGroup   = "group"
	ChannelTypeChat    = "chat"
)

// Channel represents a discuss channel
type Channel struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	ChannelType    string `json:"channel_type"`
	Image128       string `json:"-"`
	AvatarCacheKey string `json:"avatar_cache_key"`
	CreatedAt      int64  `json:"create_date"`
	UpdatedAt      int64  `json:"write_date"`
}

// AllowsSeenInfos reports whether read receipts are shared with the whole channel.
func (c Channel) AllowsSeenInfos() bool {
	return c.ChannelType == ChannelTypeChat || c.ChannelType == ChannelTypeGroup
}

// MuteForever is the mute deadline used for "mute until I unmute": 9999-12-31 23:59:59 UTC.
const MuteForever int64 = 253402300799

// Custom notification settings
const (
	NotifyAll      = "all"
	NotifyMentions = "mentions"
	NotifyNone     = "no_notif"
)

// Fold states of the chat window of a member
const (
	FoldOpen   = "open"
	FoldFolded = "folded"
	FoldClosed = "closed"
)

// ChannelMember is a persona's membership of a channel. Exactly one of
// PartnerID and GuestID is set.
type ChannelMember struct {
	ID                  int64   `json:"id"`
	ChannelID           int64   `json:"channel_id"`
	PartnerID           int64   `json:"partner_id,omitempty"`
	GuestID             int64   `json:"guest_id,omitempty"`
	PersonaName         string  `json:"-"`
	CustomNotifications *string `json:"custom_notifications"`
	MuteUntil           *int64  `json:"-"`
	FoldState           string  `json:"fold_state"`
	SeenMessageID       int64   `json:"seen_message_id"`
	NewMessageSeparator int64   `json:"new_message_separator"`
	CreatedAt           int64   `json:"create_date"`
}

// Persona returns the persona owning the membership.
func (m ChannelMember) Persona() Persona {
	return Persona{PartnerID: m.PartnerID, GuestID: m.GuestID}
}

// IsPersona reports whether the membership belongs to p.
func (m ChannelMember) IsPersona(p Persona) bool {
	if p.PartnerID != 0 {
		return m.PartnerID == p.PartnerID
	}
	return p.GuestID != 0 && m.GuestID == p.GuestID
}

const datetimeLayout = "2006-01-02 15:04:05"

// FormatDatetime renders unix seconds the way the web client expects them.
func FormatDatetime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(datetimeLayout)
}

// DatetimeOrFalse renders an optional timestamp, using false for "unset"
// as the web client does.
func DatetimeOrFalse(unix *int64) interface{} {
	if unix == nil {
		return false
	}
	return FormatDatetime(*unix)
}
