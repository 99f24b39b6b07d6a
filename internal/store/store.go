package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/multierr"

	"github.com/nikhil/discuss/internal/models"
)

// ErrNotFound is returned when the looked-up record does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("record not found")

// Store defines persistence for channels, their members, messages and attachments.
type Store interface {
	// WithTx runs fn on a store bound to one transaction, committed when fn returns nil.
	WithTx(ctx context.Context, fn func(Store) error) error

	// CreatePartner inserts a partner and returns its id.
	CreatePartner(ctx context.Context, name, email string) (int64, error)
	// CreateGuest inserts a guest with the bcrypt hash of its access token.
	CreateGuest(ctx context.Context, name, tokenHash string) (int64, error)
	// GuestByID returns a single guest.
	GuestByID(ctx context.Context, guestID int64) (*models.Guest, error)

	// CreateChannel inserts a channel and returns its id.
	CreateChannel(ctx context.Context, ch *models.Channel) (int64, error)
	// VisibleChannel returns the channel if the persona may read it.
	VisibleChannel(ctx context.Context, channelID int64, p models.Persona) (*models.Channel, error)
	// ChannelsForPersona returns the channels the persona is a member of, by id.
	ChannelsForPersona(ctx context.Context, p models.Persona) ([]models.Channel, error)
	// UpdateChannelImage stores a new avatar and its cache key.
	UpdateChannelImage(ctx context.Context, channelID int64, image, cacheKey string) error
	// MemberCount returns how many members the channel has.
	MemberCount(ctx context.Context, channelID int64) (int, error)

	// AddMember joins the persona to the channel.
	AddMember(ctx context.Context, channelID int64, p models.Persona) (*models.ChannelMember, error)
	// MemberForPersona returns the membership of the persona in the channel.
	MemberForPersona(ctx context.Context, channelID int64, p models.Persona) (*models.ChannelMember, error)
	// MembersExcluding returns up to limit members of the channel whose id is not in known, by id.
	MembersExcluding(ctx context.Context, channelID int64, known []int64, limit int) ([]models.ChannelMember, error)
	// MemberPartnerIDs returns the partner ids of the channel's members.
	MemberPartnerIDs(ctx context.Context, channelID int64) ([]int64, error)
	// SetMuteUntil sets or clears (nil) the mute deadline of a member.
	SetMuteUntil(ctx context.Context, memberID int64, until *int64) error
	// SetCustomNotifications sets or clears (nil) the notification setting of a member.
	SetCustomNotifications(ctx context.Context, memberID int64, value *string) error
	// SetSeenMessage records the last seen message and the new message separator.
	SetSeenMessage(ctx context.Context, memberID, seenMessageID, separator int64) error
	// SetNewMessageSeparator moves the first-unread pointer of a member.
	SetNewMessageSeparator(ctx context.Context, memberID, separator int64) error
	// SetFoldState sets the chat window state of a member.
	SetFoldState(ctx context.Context, memberID int64, state string) error
	// UnmuteExpired clears every mute deadline that is at or before now and returns the affected members.
	UnmuteExpired(ctx context.Context, now time.Time) ([]models.ChannelMember, error)
	// UnreadCounter counts the channel messages at or after separator.
	UnreadCounter(ctx context.Context, channelID, separator int64) (int, error)

	// InsertMessage inserts a message and returns its id.
	InsertMessage(ctx context.Context, msg *models.Message) (int64, error)
	// SearchMessages returns the messages matching the filter.
	SearchMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error)
	// CountMessages counts the messages matching the filter, ignoring its limit.
	CountMessages(ctx context.Context, filter MessageFilter) (int, error)
	// LastMessageUpTo returns the latest channel message whose id is at most messageID.
	LastMessageUpTo(ctx context.Context, channelID, messageID int64) (*models.Message, error)
	// LastMessages returns the latest message of each channel.
	LastMessages(ctx context.Context, channelIDs []int64) ([]models.Message, error)
	// PinnedMessages returns the pinned messages of a channel, most recently pinned first.
	PinnedMessages(ctx context.Context, channelID int64) ([]models.Message, error)
	// CreateNotifications flags a message as needing action for the given partners.
	CreateNotifications(ctx context.Context, messageID int64, partnerIDs []int64) error
	// MarkMessagesDone marks the partner's notifications on the messages as read.
	MarkMessagesDone(ctx context.Context, partnerID int64, messageIDs []int64) error
	// NeedactionMessageIDs returns which of the messages have an unread notification for the partner.
	NeedactionMessageIDs(ctx context.Context, partnerID int64, messageIDs []int64) (map[int64]bool, error)

	// InsertAttachment inserts an attachment and returns its id.
	InsertAttachment(ctx context.Context, att *models.Attachment) (int64, error)
	// ChannelAttachments returns attachments of a channel older than before (0 = no bound), newest first.
	ChannelAttachments(ctx context.Context, channelID, before int64, limit int) ([]models.Attachment, error)
	// LinkAttachments attaches channel attachments to a message, ignoring ids from other records.
	LinkAttachments(ctx context.Context, messageID, channelID int64, attachmentIDs []int64) error
	// AttachmentsByMessage returns the attachments of each message.
	AttachmentsByMessage(ctx context.Context, messageIDs []int64) (map[int64][]models.Attachment, error)
}

// MessageFilter selects the messages of a channel. Zero id bounds are ignored.
type MessageFilter struct {
	ChannelID  int64
	SearchTerm string // case-insensitive substring match on the body
	IDLess     int64  // id < IDLess
	IDAtMost   int64  // id <= IDAtMost
	IDGreater  int64  // id > IDGreater
	Ascending  bool   // order by id ascending instead of descending
	Limit      int    // 0 = unlimited
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements Store on database/sql. The SQL is shared by MySQL and SQLite.
type SQLStore struct {
	DB  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

// NewSQLStore creates a store on an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, now: time.Now}
}

func (s *SQLStore) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.DB
}

// WithTx runs fn inside a transaction. Calls on a store that is already
// transactional join the running transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.inTx(ctx, func(tx *SQLStore) error { return fn(tx) })
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*SQLStore) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&SQLStore{DB: s.DB, tx: tx, now: s.now}); err != nil {
		return multierr.Append(err, ignoreDone(tx.Rollback()))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (s *SQLStore) unixNow() int64 {
	return s.now().UTC().Unix()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique constraint violation.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// personaCondition restricts a member alias to the persona. Anonymous personas match nothing.
func personaCondition(alias string, p models.Persona) (string, []interface{}) {
	switch {
	case p.PartnerID != 0:
		return alias + ".partner_id = ?", []interface{}{p.PartnerID}
	case p.GuestID != 0:
		return alias + ".guest_id = ?", []interface{}{p.GuestID}
	}
	return "1 = 0", nil
}

// likePattern builds a LIKE pattern using '!' as the escape character.
func likePattern(term string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
