package messageService

import (
	"context"

	"github.com/nikhil/discuss/internal/models"
)

// AuthorView is the author of a message as the web client shows it.
type AuthorView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// AttachmentView is the projection of an attachment.
type AttachmentView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Mimetype   string `json:"mimetype"`
	FileSize   int64  `json:"file_size"`
	Checksum   string `json:"checksum"`
	ResID      int64  `json:"res_id"`
	ResModel   string `json:"res_model"`
	CreateDate string `json:"create_date"`
}

// MessageView is the projection of a message for one reader.
type MessageView struct {
	ID          int64            `json:"id"`
	Body        string           `json:"body"`
	Date        string           `json:"date"`
	MessageType string           `json:"message_type"`
	Model       string           `json:"model"`
	ResID       int64            `json:"res_id"`
	Author      *AuthorView      `json:"author"`
	PinnedAt    interface{}      `json:"pinned_at"`
	Attachments []AttachmentView `json:"attachment_ids"`
	Needaction  bool             `json:"needaction"`
}

// FormatAttachment projects an attachment.
func FormatAttachment(a models.Attachment) AttachmentView {
	return AttachmentView{
		ID:         a.ID,
		Name:       a.Name,
		Mimetype:   a.Mimetype,
		FileSize:   a.FileSize,
		Checksum:   a.Checksum,
		ResID:      a.ResID,
		ResModel:   a.ResModel,
		CreateDate: models.FormatDatetime(a.CreatedAt),
	}
}

// FormatAttachments projects attachments, keeping their order.
func FormatAttachments(attachments []models.Attachment) []AttachmentView {
	views := make([]AttachmentView, 0, len(attachments))
	for _, a := range attachments {
		views = append(views, FormatAttachment(a))
	}
	return views
}

// Format projects messages for reader, in the given order.
func (ms *MessageService) Format(ctx context.Context, messages []models.Message, reader models.Persona) ([]MessageView, error) {
	views := make([]MessageView, 0, len(messages))
	if len(messages) == 0 {
		return views, nil
	}

	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	attachments, err := ms.Store.AttachmentsByMessage(ctx, ids)
	if err != nil {
		return nil, err
	}
	needaction := map[int64]bool{}
	if reader.PartnerID != 0 {
		needaction, err = ms.Store.NeedactionMessageIDs(ctx, reader.PartnerID, ids)
		if err != nil {
			return nil, err
		}
	}

	for _, m := range messages {
		views = append(views, MessageView{
			ID:          m.ID,
			Body:        m.Body,
			Date:        models.FormatDatetime(m.CreatedAt),
			MessageType: m.MessageType,
			Model:       m.Model,
			ResID:       m.ResID,
			Author:      author(m),
			PinnedAt:    models.DatetimeOrFalse(m.PinnedAt),
			Attachments: FormatAttachments(attachments[m.ID]),
			Needaction:  needaction[m.ID],
		})
	}
	return views, nil
}

func author(m models.Message) *AuthorView {
	switch {
	case m.AuthorID != 0:
		return &AuthorView{ID: m.AuthorID, Name: m.AuthorName, Type: "partner"}
	case m.AuthorGuestID != 0:
		return &AuthorView{ID: m.AuthorGuestID, Name: m.AuthorName, Type: "guest"}
	}
	return nil
}
