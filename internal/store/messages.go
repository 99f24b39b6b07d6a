package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nikhil/discuss/internal/models"
)

const messageSelect = `SELECT msg.id, msg.model, msg.res_id, msg.message_type, msg.body,
		COALESCE(msg.author_id, 0), COALESCE(msg.author_guest_id, 0), COALESCE(p.name, g.name, ''),
		msg.pinned_at, msg.created_at
	FROM mail_message msg
	LEFT JOIN res_partner p ON p.id = msg.author_id
	LEFT JOIN mail_guest g ON g.id = msg.author_guest_id`

func scanMessage(row interface{ Scan(...interface{}) error }) (*models.Message, error) {
	var (
		m      models.Message
		pinned sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.Model, &m.ResID, &m.MessageType, &m.Body,
		&m.AuthorID, &m.AuthorGuestID, &m.AuthorName, &pinned, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if pinned.Valid {
		m.PinnedAt = &pinned.Int64
	}
	return &m, nil
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// InsertMessage inserts a message and returns its id.
func (s *SQLStore) InsertMessage(ctx context.Context, msg *models.Message) (int64, error) {
	createdAt := msg.CreatedAt
	if createdAt == 0 {
		createdAt = s.unixNow()
	}
	messageType := msg.MessageType
	if messageType == "" {
		messageType = models.MessageTypeComment
	}
	model := msg.Model
	if model == "" {
		model = models.ChannelModel
	}
	result, err := s.conn().ExecContext(ctx,
		`INSERT INTO mail_message (model, res_id, message_type, body, author_id, author_guest_id, pinned_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		model, msg.ResID, messageType, msg.Body, nullID(msg.AuthorID), nullID(msg.AuthorGuestID),
		nullInt(msg.PinnedAt), createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("InsertMessage: %w", err)
	}
	return result.LastInsertId()
}

func (f MessageFilter) where() (string, []interface{}) {
	where := ` WHERE msg.model = ? AND msg.res_id = ? AND msg.message_type != ?`
	args := []interface{}{models.ChannelModel, f.ChannelID, models.MessageTypeUserNotification}
	if f.SearchTerm != "" {
		where += ` AND LOWER(msg.body) LIKE ? ESCAPE '!'`
		args = append(args, likePattern(f.SearchTerm))
	}
	if f.IDLess != 0 {
		where += ` AND msg.id < ?`
		args = append(args, f.IDLess)
	}
	if f.IDAtMost != 0 {
		where += ` AND msg.id <= ?`
		args = append(args, f.IDAtMost)
	}
	if f.IDGreater != 0 {
		where += ` AND msg.id > ?`
		args = append(args, f.IDGreater)
	}
	return where, args
}

// SearchMessages returns the messages matching the filter.
func (s *SQLStore) SearchMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	where, args := filter.where()
	query := messageSelect + where
	if filter.Ascending {
		query += ` ORDER BY msg.id ASC`
	} else {
		query += ` ORDER BY msg.id DESC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchMessages: %w", err)
	}
	return messages, nil
}

// CountMessages counts the messages matching the filter, ignoring its limit.
func (s *SQLStore) CountMessages(ctx context.Context, filter MessageFilter) (int, error) {
	where, args := filter.where()
	var count int
	if err := s.conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM mail_message msg`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("CountMessages: %w", err)
	}
	return count, nil
}

// LastMessageUpTo returns the latest channel message whose id is at most messageID.
func (s *SQLStore) LastMessageUpTo(ctx context.Context, channelID, messageID int64) (*models.Message, error) {
	m, err := scanMessage(s.conn().QueryRowContext(ctx,
		messageSelect+` WHERE msg.model = ? AND msg.res_id = ? AND msg.id <= ? ORDER BY msg.id DESC LIMIT 1`,
		models.ChannelModel, channelID, messageID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("LastMessageUpTo: %w", err)
	}
	return m, nil
}

// LastMessages returns the latest message of each channel, by channel id.
func (s *SQLStore) LastMessages(ctx context.Context, channelIDs []int64) ([]models.Message, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	query := messageSelect + ` WHERE msg.id IN (
			SELECT MAX(last.id) FROM mail_message last
			WHERE last.model = ? AND last.res_id IN (` + placeholders(len(channelIDs)) + `)
			GROUP BY last.res_id
		) ORDER BY msg.res_id`
	args := append([]interface{}{models.ChannelModel}, int64Args(channelIDs)...)
	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("LastMessages: %w", err)
	}
	return messages, nil
}

// PinnedMessages returns the pinned messages of a channel, most recently pinned first.
func (s *SQLStore) PinnedMessages(ctx context.Context, channelID int64) ([]models.Message, error) {
	messages, err := s.queryMessages(ctx,
		messageSelect+` WHERE msg.model = ? AND msg.res_id = ? AND msg.pinned_at IS NOT NULL
		 ORDER BY msg.pinned_at DESC, msg.id DESC`,
		models.ChannelModel, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("PinnedMessages: %w", err)
	}
	return messages, nil
}

// CreateNotifications flags a message as needing action for the given partners.
func (s *SQLStore) CreateNotifications(ctx context.Context, messageID int64, partnerIDs []int64) error {
	for _, partnerID := range partnerIDs {
		_, err := s.conn().ExecContext(ctx,
			`INSERT INTO mail_notification (mail_message_id, res_partner_id, is_read) VALUES (?, ?, 0)`,
			messageID, partnerID,
		)
		if err != nil {
			return fmt.Errorf("CreateNotifications: %w", err)
		}
	}
	return nil
}

// MarkMessagesDone marks the partner's notifications on the messages as read.
func (s *SQLStore) MarkMessagesDone(ctx context.Context, partnerID int64, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	args := append([]interface{}{partnerID}, int64Args(messageIDs)...)
	_, err := s.conn().ExecContext(ctx,
		`UPDATE mail_notification SET is_read = 1
		 WHERE res_partner_id = ? AND is_read = 0 AND mail_message_id IN (`+placeholders(len(messageIDs))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("MarkMessagesDone: %w", err)
	}
	return nil
}

// NeedactionMessageIDs returns which of the messages have an unread notification for the partner.
func (s *SQLStore) NeedactionMessageIDs(ctx context.Context, partnerID int64, messageIDs []int64) (map[int64]bool, error) {
	needaction := make(map[int64]bool)
	if partnerID == 0 || len(messageIDs) == 0 {
		return needaction, nil
	}
	args := append([]interface{}{partnerID}, int64Args(messageIDs)...)
	rows, err := s.conn().QueryContext(ctx,
		`SELECT DISTINCT mail_message_id FROM mail_notification
		 WHERE res_partner_id = ? AND is_read = 0 AND mail_message_id IN (`+placeholders(len(messageIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("NeedactionMessageIDs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("NeedactionMessageIDs scan: %w", err)
		}
		needaction[id] = true
	}
	return needaction, rows.Err()
}
