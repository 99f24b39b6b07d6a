package store

import (
	"context"
	"fmt"

	"github.com/nikhil/discuss/internal/models"
)

const attachmentColumns = `a.id, a.res_model, a.res_id, a.name, a.mimetype, a.file_size, a.checksum, a.created_at`

func scanAttachment(row interface{ Scan(...interface{}) error }) (*models.Attachment, error) {
	var a models.Attachment
	if err := row.Scan(&a.ID, &a.ResModel, &a.ResID, &a.Name, &a.Mimetype, &a.FileSize, &a.Checksum, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAttachment inserts an attachment and returns its id.
func (s *SQLStore) InsertAttachment(ctx context.Context, att *models.Attachment) (int64, error) {
	mimetype := att.Mimetype
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	result, err := s.conn().ExecContext(ctx,
		`INSERT INTO ir_attachment (res_model, res_id, name, mimetype, file_size, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.ResModel, att.ResID, att.Name, mimetype, att.FileSize, att.Checksum, s.unixNow(),
	)
	if err != nil {
		return 0, fmt.Errorf("InsertAttachment: %w", err)
	}
	return result.LastInsertId()
}

// ChannelAttachments returns attachments of a channel older than before (0 = no bound), newest first.
// Access to the channel is checked by the caller; attachments are not filtered further.
func (s *SQLStore) ChannelAttachments(ctx context.Context, channelID, before int64, limit int) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM ir_attachment a WHERE a.res_model = ? AND a.res_id = ?`
	args := []interface{}{models.ChannelModel, channelID}
	if before != 0 {
		query += ` AND a.id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY a.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ChannelAttachments: %w", err)
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("ChannelAttachments scan: %w", err)
		}
		attachments = append(attachments, *a)
	}
	return attachments, rows.Err()
}

// LinkAttachments attaches channel attachments to a message, ignoring ids from other records.
func (s *SQLStore) LinkAttachments(ctx context.Context, messageID, channelID int64, attachmentIDs []int64) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	args := append([]interface{}{messageID, models.ChannelModel, channelID}, int64Args(attachmentIDs)...)
	_, err := s.conn().ExecContext(ctx,
		`INSERT INTO mail_message_attachment_rel (message_id, attachment_id)
		 SELECT ?, a.id FROM ir_attachment a
		 WHERE a.res_model = ? AND a.res_id = ? AND a.id IN (`+placeholders(len(attachmentIDs))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("LinkAttachments: %w", err)
	}
	return nil
}

// AttachmentsByMessage returns the attachments of each message, ordered by id.
func (s *SQLStore) AttachmentsByMessage(ctx context.Context, messageIDs []int64) (map[int64][]models.Attachment, error) {
	byMessage := make(map[int64][]models.Attachment)
	if len(messageIDs) == 0 {
		return byMessage, nil
	}
	rows, err := s.conn().QueryContext(ctx,
		`SELECT rel.message_id, `+attachmentColumns+`
		 FROM mail_message_attachment_rel rel
		 INNER JOIN ir_attachment a ON a.id = rel.attachment_id
		 WHERE rel.message_id IN (`+placeholders(len(messageIDs))+`)
		 ORDER BY rel.message_id, a.id`,
		int64Args(messageIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("AttachmentsByMessage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			a         models.Attachment
		)
		if err := rows.Scan(&messageID, &a.ID, &a.ResModel, &a.ResID, &a.Name, &a.Mimetype, &a.FileSize, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("AttachmentsByMessage scan: %w", err)
		}
		byMessage[messageID] = append(byMessage[messageID], a)
	}
	return byMessage, rows.Err()
}
