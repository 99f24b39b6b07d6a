package messageService

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/store"
)

// DefaultFetchLimit is the page size when the caller gives none.
const DefaultFetchLimit = 30

// MessageService reads, formats and posts channel messages.
type MessageService struct {
	Store store.Store
	Bus   bus.Bus
	Log   *logger.Logger
	// Limit is the default page size of Fetch.
	Limit int
	now   func() time.Time
}

func NewMessageService(st store.Store, b bus.Bus, log *logger.Logger, limit int) *MessageService {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &MessageService{
		Store: st,
		Bus:   b,
		Log:   log,
		Limit: limit,
		now:   time.Now,
	}
}

// FetchParams selects a page of channel messages. Around takes precedence
// over Before and After.
type FetchParams struct {
	SearchTerm string
	Before     int64
	After      int64
	Around     *int64
	Limit      int
}

// FetchResult holds a page of messages, newest first. Count is only set for searches.
type FetchResult struct {
	Messages []models.Message
	Count    *int
}

// Fetch returns a page of the channel's messages.
func (ms *MessageService) Fetch(ctx context.Context, channelID int64, p FetchParams) (*FetchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = ms.Limit
	}
	base := store.MessageFilter{ChannelID: channelID, SearchTerm: p.SearchTerm}
	res := &FetchResult{}

	if p.SearchTerm != "" {
		count, err := ms.Store.CountMessages(ctx, base)
		if err != nil {
			return nil, err
		}
		res.Count = &count
	}

	if p.Around != nil {
		half := limit / 2
		if half < 1 {
			half = 1
		}
		before := base
		before.IDAtMost = *p.Around
		before.Limit = half
		older, err := ms.Store.SearchMessages(ctx, before)
		if err != nil {
			return nil, err
		}
		after := base
		after.IDGreater = *p.Around
		after.Ascending = true
		after.Limit = half
		newer, err := ms.Store.SearchMessages(ctx, after)
		if err != nil {
			return nil, err
		}
		res.Messages = append(newer, older...)
		sortNewestFirst(res.Messages)
		return res, nil
	}

	filter := base
	filter.IDLess = p.Before
	filter.IDGreater = p.After
	filter.Ascending = p.After != 0
	filter.Limit = limit
	messages, err := ms.Store.SearchMessages(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Ascending {
		sortNewestFirst(messages)
	}
	res.Messages = messages
	return res, nil
}

func sortNewestFirst(messages []models.Message) {
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID > messages[j].ID })
}

// PostMessage stores a comment of the member in its channel, links the given
// attachments, flags the message for the other partner members and notifies
// the channel.
func (ms *MessageService) PostMessage(ctx context.Context, member *models.ChannelMember, body string, attachmentIDs []int64) (*MessageView, error) {
	msg := models.Message{
		Model:         models.ChannelModel,
		ResID:         member.ChannelID,
		MessageType:   models.MessageTypeComment,
		Body:          body,
		AuthorID:      member.PartnerID,
		AuthorGuestID: member.GuestID,
		AuthorName:    member.PersonaName,
		CreatedAt:     ms.now().UTC().Unix(),
	}
	err := ms.Store.WithTx(ctx, func(st store.Store) error {
		msgID, err := st.InsertMessage(ctx, &msg)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		msg.ID = msgID

		if len(attachmentIDs) > 0 {
			if err := st.LinkAttachments(ctx, msgID, member.ChannelID, attachmentIDs); err != nil {
				return err
			}
		}

		partnerIDs, err := st.MemberPartnerIDs(ctx, member.ChannelID)
		if err != nil {
			return err
		}
		recipients := partnerIDs[:0]
		for _, id := range partnerIDs {
			if id != member.PartnerID {
				recipients = append(recipients, id)
			}
		}
		if err := st.CreateNotifications(ctx, msgID, recipients); err != nil {
			return err
		}

		// the author has read its own message
		return st.SetSeenMessage(ctx, member.ID, msgID, msgID+1)
	})
	if err != nil {
		ms.Log.Error("Failed to post message", "channel_id", member.ChannelID, "error", err)
		return nil, err
	}

	views, err := ms.Format(ctx, []models.Message{msg}, member.Persona())
	if err != nil {
		return nil, err
	}
	view := views[0]
	payload := map[string]interface{}{"id": member.ChannelID, "message": view}
	if err := ms.Bus.SendOne(ctx, models.ChannelTarget(member.ChannelID), bus.TypeNewMessage, payload); err != nil {
		ms.Log.Warn("Failed to notify new message", "channel_id", member.ChannelID, "error", err)
	}
	return &view, nil
}
