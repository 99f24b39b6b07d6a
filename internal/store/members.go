package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nikhil/discuss/internal/models"
)

const memberSelect = `SELECT m.id, m.channel_id, COALESCE(m.partner_id, 0), COALESCE(m.guest_id, 0),
		COALESCE(p.name, g.name, ''), m.custom_notifications, m.mute_until_dt, m.fold_state,
		m.seen_message_id, m.new_message_separator, m.created_at
	FROM discuss_channel_member m
	LEFT JOIN res_partner p ON p.id = m.partner_id
	LEFT JOIN mail_guest g ON g.id = m.guest_id`

func scanMember(row interface{ Scan(...interface{}) error }) (*models.ChannelMember, error) {
	var (
		m      models.ChannelMember
		notify sql.NullString
		mute   sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.ChannelID, &m.PartnerID, &m.GuestID, &m.PersonaName, &notify, &mute,
		&m.FoldState, &m.SeenMessageID, &m.NewMessageSeparator, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if notify.Valid {
		m.CustomNotifications = &notify.String
	}
	if mute.Valid {
		m.MuteUntil = &mute.Int64
	}
	return &m, nil
}

func (s *SQLStore) queryMembers(ctx context.Context, query string, args ...interface{}) ([]models.ChannelMember, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.ChannelMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// AddMember joins the persona to the channel, or returns its membership when
// it already joined. The separator starts after the latest message so that a
// new member has nothing unread.
func (s *SQLStore) AddMember(ctx context.Context, channelID int64, p models.Persona) (*models.ChannelMember, error) {
	if p.IsAnonymous() {
		return nil, fmt.Errorf("AddMember: anonymous persona cannot join channel %d", channelID)
	}

	var lastID int64
	err := s.conn().QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM mail_message WHERE model = ? AND res_id = ?`,
		models.ChannelModel, channelID,
	).Scan(&lastID)
	if err != nil {
		return nil, fmt.Errorf("AddMember last message: %w", err)
	}

	var partnerID, guestID sql.NullInt64
	if p.PartnerID != 0 {
		partnerID = nullID(p.PartnerID)
	} else {
		guestID = nullID(p.GuestID)
	}
	_, err = s.conn().ExecContext(ctx,
		`INSERT INTO discuss_channel_member (channel_id, partner_id, guest_id, fold_state, seen_message_id, new_message_separator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		channelID, partnerID, guestID, models.FoldClosed, lastID, lastID+1, s.unixNow(),
	)
	if err != nil && !isDuplicate(err) {
		return nil, fmt.Errorf("AddMember: %w", err)
	}
	// a concurrent join of the same persona wins the insert, both get its row
	return s.MemberForPersona(ctx, channelID, p)
}

// MemberForPersona returns the membership of the persona in the channel.
func (s *SQLStore) MemberForPersona(ctx context.Context, channelID int64, p models.Persona) (*models.ChannelMember, error) {
	cond, args := personaCondition("m", p)
	m, err := scanMember(s.conn().QueryRowContext(ctx,
		memberSelect+` WHERE m.channel_id = ? AND `+cond,
		append([]interface{}{channelID}, args...)...,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("MemberForPersona: %w", err)
	}
	return m, nil
}

// MembersExcluding returns up to limit members of the channel whose id is not in known, by id.
func (s *SQLStore) MembersExcluding(ctx context.Context, channelID int64, known []int64, limit int) ([]models.ChannelMember, error) {
	query := memberSelect + ` WHERE m.channel_id = ?`
	args := []interface{}{channelID}
	if len(known) > 0 {
		query += ` AND m.id NOT IN (` + placeholders(len(known)) + `)`
		args = append(args, int64Args(known)...)
	}
	query += ` ORDER BY m.id LIMIT ?`
	args = append(args, limit)

	members, err := s.queryMembers(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("MembersExcluding: %w", err)
	}
	return members, nil
}

// MemberPartnerIDs returns the partner ids of the channel's members.
func (s *SQLStore) MemberPartnerIDs(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := s.conn().QueryContext(ctx,
		`SELECT partner_id FROM discuss_channel_member WHERE channel_id = ? AND partner_id IS NOT NULL ORDER BY partner_id`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("MemberPartnerIDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("MemberPartnerIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetMuteUntil sets or clears (nil) the mute deadline of a member.
func (s *SQLStore) SetMuteUntil(ctx context.Context, memberID int64, until *int64) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET mute_until_dt = ? WHERE id = ?`, nullInt(until), memberID)
	if err != nil {
		return fmt.Errorf("SetMuteUntil: %w", err)
	}
	return nil
}

// SetCustomNotifications sets or clears (nil) the notification setting of a member.
func (s *SQLStore) SetCustomNotifications(ctx context.Context, memberID int64, value *string) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET custom_notifications = ? WHERE id = ?`, nullString(value), memberID)
	if err != nil {
		return fmt.Errorf("SetCustomNotifications: %w", err)
	}
	return nil
}

// SetSeenMessage records the last seen message and the new message separator.
func (s *SQLStore) SetSeenMessage(ctx context.Context, memberID, seenMessageID, separator int64) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET seen_message_id = ?, new_message_separator = ? WHERE id = ?`,
		seenMessageID, separator, memberID)
	if err != nil {
		return fmt.Errorf("SetSeenMessage: %w", err)
	}
	return nil
}

// SetNewMessageSeparator moves the first-unread pointer of a member.
func (s *SQLStore) SetNewMessageSeparator(ctx context.Context, memberID, separator int64) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET new_message_separator = ? WHERE id = ?`, separator, memberID)
	if err != nil {
		return fmt.Errorf("SetNewMessageSeparator: %w", err)
	}
	return nil
}

// SetFoldState sets the chat window state of a member.
func (s *SQLStore) SetFoldState(ctx context.Context, memberID int64, state string) error {
	_, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET fold_state = ? WHERE id = ?`, state, memberID)
	if err != nil {
		return fmt.Errorf("SetFoldState: %w", err)
	}
	return nil
}

// UnmuteExpired clears every mute deadline that is at or before now and
// returns the affected members as they were before the update. A deadline
// written after the select is left alone.
func (s *SQLStore) UnmuteExpired(ctx context.Context, now time.Time) ([]models.ChannelMember, error) {
	cutoff := now.UTC().Unix()
	var cleared []models.ChannelMember
	err := s.inTx(ctx, func(tx *SQLStore) error {
		members, err := tx.queryMembers(ctx,
			memberSelect+` WHERE m.mute_until_dt IS NOT NULL AND m.mute_until_dt <= ? ORDER BY m.id`, cutoff)
		if err != nil {
			return fmt.Errorf("UnmuteExpired select: %w", err)
		}
		for _, m := range members {
			ok, err := tx.clearExpiredMute(ctx, m.ID, cutoff)
			if err != nil {
				return err
			}
			if ok {
				cleared = append(cleared, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

// clearExpiredMute unmutes a member whose deadline is at or before cutoff and
// reports whether it did.
func (s *SQLStore) clearExpiredMute(ctx context.Context, memberID, cutoff int64) (bool, error) {
	res, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel_member SET mute_until_dt = NULL
		 WHERE id = ? AND mute_until_dt IS NOT NULL AND mute_until_dt <= ?`,
		memberID, cutoff)
	if err != nil {
		return false, fmt.Errorf("UnmuteExpired update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UnmuteExpired rows: %w", err)
	}
	return n > 0, nil
}

// UnreadCounter counts the channel messages at or after separator.
func (s *SQLStore) UnreadCounter(ctx context.Context, channelID, separator int64) (int, error) {
	var count int
	err := s.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mail_message WHERE model = ? AND res_id = ? AND id >= ? AND message_type != ?`,
		models.ChannelModel, channelID, separator, models.MessageTypeUserNotification,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("UnreadCounter: %w", err)
	}
	return count, nil
}
