package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nikhil/discuss/internal/models"
)

const channelColumns = `c.id, c.name, c.description, c.channel_type, c.image_128, c.avatar_cache_key, c.created_at, c.updated_at`

func scanChannel(row interface{ Scan(...interface{}) error }) (*models.Channel, error) {
	var c models.Channel
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ChannelType, &c.Image128, &c.AvatarCacheKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateChannel inserts a channel and returns its id.
func (s *SQLStore) CreateChannel(ctx context.Context, ch *models.Channel) (int64, error) {
	channelType := ch.ChannelType
	if channelType == "" {
		channelType = models.ChannelTypeChannel
	}
	now := s.unixNow()
	result, err := s.conn().ExecContext(ctx,
		`INSERT INTO discuss_channel (name, description, channel_type, image_128, avatar_cache_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ch.Name, ch.Description, channelType, ch.Image128, ch.AvatarCacheKey, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("CreateChannel: %w", err)
	}
	return result.LastInsertId()
}

// VisibleChannel returns the channel if the persona is a member of it or it
// is a public channel. Invisible channels are reported as ErrNotFound.
func (s *SQLStore) VisibleChannel(ctx context.Context, channelID int64, p models.Persona) (*models.Channel, error) {
	cond, args := personaCondition("m", p)
	query := `SELECT ` + channelColumns + `
		FROM discuss_channel c
		WHERE c.id = ? AND (
			c.channel_type = ? OR
			EXISTS (SELECT 1 FROM discuss_channel_member m WHERE m.channel_id = c.id AND ` + cond + `)
		)`
	queryArgs := append([]interface{}{channelID, models.ChannelTypeChannel}, args...)

	ch, err := scanChannel(s.conn().QueryRowContext(ctx, query, queryArgs...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("VisibleChannel: %w", err)
	}
	return ch, nil
}

// ChannelsForPersona returns the channels the persona is a member of, by id.
func (s *SQLStore) ChannelsForPersona(ctx context.Context, p models.Persona) ([]models.Channel, error) {
	cond, args := personaCondition("m", p)
	rows, err := s.conn().QueryContext(ctx,
		`SELECT `+channelColumns+`
		 FROM discuss_channel c
		 INNER JOIN discuss_channel_member m ON m.channel_id = c.id
		 WHERE `+cond+`
		 ORDER BY c.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("ChannelsForPersona: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("ChannelsForPersona scan: %w", err)
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// UpdateChannelImage stores a new avatar and its cache key.
func (s *SQLStore) UpdateChannelImage(ctx context.Context, channelID int64, image, cacheKey string) error {
	result, err := s.conn().ExecContext(ctx,
		`UPDATE discuss_channel SET image_128 = ?, avatar_cache_key = ?, updated_at = ? WHERE id = ?`,
		image, cacheKey, s.unixNow(), channelID,
	)
	if err != nil {
		return fmt.Errorf("UpdateChannelImage: %w", err)
	}
	return expectOneRow(result)
}

// MemberCount returns how many members the channel has.
func (s *SQLStore) MemberCount(ctx context.Context, channelID int64) (int, error) {
	var count int
	err := s.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discuss_channel_member WHERE channel_id = ?`, channelID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("MemberCount: %w", err)
	}
	return count, nil
}

// expectOneRow turns an update that matched nothing into ErrNotFound.
func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
