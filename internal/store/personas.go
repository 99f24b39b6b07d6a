package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nikhil/discuss/internal/models"
)

// CreatePartner inserts a partner and returns its id.
func (s *SQLStore) CreatePartner(ctx context.Context, name, email string) (int64, error) {
	result, err := s.conn().ExecContext(ctx,
		`INSERT INTO res_partner (name, email, created_at) VALUES (?, ?, ?)`,
		name, email, s.unixNow(),
	)
	if err != nil {
		return 0, fmt.Errorf("CreatePartner: %w", err)
	}
	return result.LastInsertId()
}

// CreateGuest inserts a guest with the bcrypt hash of its access token.
func (s *SQLStore) CreateGuest(ctx context.Context, name, tokenHash string) (int64, error) {
	result, err := s.conn().ExecContext(ctx,
		`INSERT INTO mail_guest (name, access_token_hash, created_at) VALUES (?, ?, ?)`,
		name, tokenHash, s.unixNow(),
	)
	if err != nil {
		return 0, fmt.Errorf("CreateGuest: %w", err)
	}
	return result.LastInsertId()
}

// GuestByID returns a single guest.
func (s *SQLStore) GuestByID(ctx context.Context, guestID int64) (*models.Guest, error) {
	var g models.Guest
	err := s.conn().QueryRowContext(ctx,
		`SELECT id, name, access_token_hash, created_at FROM mail_guest WHERE id = ?`, guestID,
	).Scan(&g.ID, &g.Name, &g.AccessTokenHash, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("GuestByID: %w", err)
	}
	return &g, nil
}
