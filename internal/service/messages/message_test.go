package messageService

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	database "github.com/nikhil/discuss/internal/database.go"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/store"
)

type sent struct {
	Target  models.Target
	Type    string
	Payload interface{}
}

type recordingBus struct {
	mu   sync.Mutex
	sent []sent
}

func (b *recordingBus) SendOne(_ context.Context, target models.Target, notifType string, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{Target: target, Type: notifType, Payload: payload})
	return nil
}

func newTestService(t *testing.T) (*MessageService, *store.SQLStore, *recordingBus) {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLStore(db)
	b := &recordingBus{}
	return NewMessageService(st, b, logger.NewNop(), 0), st, b
}

func seedMessages(t *testing.T, st store.Store, channelID int64, bodies ...string) []int64 {
	t.Helper()
	ids := make([]int64, len(bodies))
	for i, body := range bodies {
		id, err := st.InsertMessage(context.Background(), &models.Message{ResID: channelID, Body: body})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func messageIDs(messages []models.Message) []int64 {
	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	ms, st, _ := newTestService(t)
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general", ChannelType: models.ChannelTypeChannel})
	require.NoError(t, err)
	ids := seedMessages(t, st, channelID, "m1", "m2", "m3", "m4", "m5", "m6")

	res, err := ms.Fetch(ctx, channelID, FetchParams{})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[5], ids[4], ids[3], ids[2], ids[1], ids[0]}, messageIDs(res.Messages))
	assert.Nil(t, res.Count)

	res, err = ms.Fetch(ctx, channelID, FetchParams{Before: ids[3], Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2], ids[1]}, messageIDs(res.Messages))

	// after pages forward from the bound but still returns newest first
	res, err = ms.Fetch(ctx, channelID, FetchParams{After: ids[1], Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[3], ids[2]}, messageIDs(res.Messages))

	around := ids[2]
	res, err = ms.Fetch(ctx, channelID, FetchParams{Around: &around, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[4], ids[3], ids[2], ids[1]}, messageIDs(res.Messages))
}

func TestFetch_Search(t *testing.T) {
	ctx := context.Background()
	ms, st, _ := newTestService(t)
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general", ChannelType: models.ChannelTypeChannel})
	require.NoError(t, err)
	ids := seedMessages(t, st, channelID, "Hello world", "bye", "HELLO again", "hello 100%")

	res, err := ms.Fetch(ctx, channelID, FetchParams{SearchTerm: "hello", Limit: 2})
	require.NoError(t, err)
	require.NotNil(t, res.Count)
	assert.Equal(t, 3, *res.Count)
	assert.Equal(t, []int64{ids[3], ids[2]}, messageIDs(res.Messages))

	res, err = ms.Fetch(ctx, channelID, FetchParams{SearchTerm: "100%"})
	require.NoError(t, err)
	assert.Equal(t, 1, *res.Count)
}

func TestPostMessage(t *testing.T) {
	ctx := context.Background()
	ms, st, b := newTestService(t)
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general", ChannelType: models.ChannelTypeChannel})
	require.NoError(t, err)
	aliceID, err := st.CreatePartner(ctx, "Alice", "alice@example.com")
	require.NoError(t, err)
	bobID, err := st.CreatePartner(ctx, "Bob", "")
	require.NoError(t, err)
	alice, err := st.AddMember(ctx, channelID, models.Persona{UserID: aliceID, PartnerID: aliceID})
	require.NoError(t, err)
	_, err = st.AddMember(ctx, channelID, models.Persona{UserID: bobID, PartnerID: bobID})
	require.NoError(t, err)

	attID, err := st.InsertAttachment(ctx, &models.Attachment{ResModel: models.ChannelModel, ResID: channelID, Name: "a.txt", Mimetype: "text/plain"})
	require.NoError(t, err)
	otherID, err := st.InsertAttachment(ctx, &models.Attachment{ResModel: "res.partner", ResID: aliceID, Name: "b.txt"})
	require.NoError(t, err)

	view, err := ms.PostMessage(ctx, alice, "hi", []int64{attID, otherID})
	require.NoError(t, err)
	assert.Equal(t, "hi", view.Body)
	require.NotNil(t, view.Author)
	assert.Equal(t, AuthorView{ID: aliceID, Name: "Alice", Type: "partner"}, *view.Author)
	require.Len(t, view.Attachments, 1)
	assert.Equal(t, attID, view.Attachments[0].ID)
	assert.False(t, view.Needaction)
	assert.Equal(t, false, view.PinnedAt)

	needaction, err := st.NeedactionMessageIDs(ctx, bobID, []int64{view.ID})
	require.NoError(t, err)
	assert.True(t, needaction[view.ID])
	needaction, err = st.NeedactionMessageIDs(ctx, aliceID, []int64{view.ID})
	require.NoError(t, err)
	assert.False(t, needaction[view.ID])

	member, err := st.MemberForPersona(ctx, channelID, alice.Persona())
	require.NoError(t, err)
	assert.Equal(t, view.ID, member.SeenMessageID)
	assert.Equal(t, view.ID+1, member.NewMessageSeparator)

	require.Len(t, b.sent, 1)
	assert.Equal(t, models.ChannelTarget(channelID), b.sent[0].Target)
	assert.Equal(t, "discuss.channel/new_message", b.sent[0].Type)
}

// failingNotifications is a store whose notification writes fail, inside
// transactions too.
type failingNotifications struct {
	store.Store
}

func (f failingNotifications) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.WithTx(ctx, func(st store.Store) error {
		return fn(failingNotifications{Store: st})
	})
}

func (f failingNotifications) CreateNotifications(context.Context, int64, []int64) error {
	return errors.New("notifications unavailable")
}

func TestPostMessage_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	ms, st, b := newTestService(t)
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general", ChannelType: models.ChannelTypeChannel})
	require.NoError(t, err)
	aliceID, err := st.CreatePartner(ctx, "Alice", "")
	require.NoError(t, err)
	bobID, err := st.CreatePartner(ctx, "Bob", "")
	require.NoError(t, err)
	alice, err := st.AddMember(ctx, channelID, models.Persona{UserID: aliceID, PartnerID: aliceID})
	require.NoError(t, err)
	_, err = st.AddMember(ctx, channelID, models.Persona{UserID: bobID, PartnerID: bobID})
	require.NoError(t, err)
	attID, err := st.InsertAttachment(ctx, &models.Attachment{ResModel: models.ChannelModel, ResID: channelID, Name: "a.txt"})
	require.NoError(t, err)

	ms.Store = failingNotifications{Store: st}
	view, err := ms.PostMessage(ctx, alice, "hi", []int64{attID})
	require.Error(t, err)
	assert.Nil(t, view)

	messages, err := st.SearchMessages(ctx, store.MessageFilter{ChannelID: channelID})
	require.NoError(t, err)
	assert.Empty(t, messages, "the message is not kept without its notifications")
	member, err := st.MemberForPersona(ctx, channelID, alice.Persona())
	require.NoError(t, err)
	assert.Equal(t, alice.SeenMessageID, member.SeenMessageID)
	assert.Equal(t, alice.NewMessageSeparator, member.NewMessageSeparator)
	assert.Empty(t, b.sent)
}

func TestFormat_NeedactionPerReader(t *testing.T) {
	ctx := context.Background()
	ms, st, _ := newTestService(t)
	channelID, err := st.CreateChannel(ctx, &models.Channel{Name: "general", ChannelType: models.ChannelTypeChannel})
	require.NoError(t, err)
	partnerID, err := st.CreatePartner(ctx, "Carol", "")
	require.NoError(t, err)
	ids := seedMessages(t, st, channelID, "one", "two")
	require.NoError(t, st.CreateNotifications(ctx, ids[1], []int64{partnerID}))

	messages, err := st.SearchMessages(ctx, store.MessageFilter{ChannelID: channelID})
	require.NoError(t, err)

	views, err := ms.Format(ctx, messages, models.Persona{UserID: partnerID, PartnerID: partnerID})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.True(t, views[0].Needaction)
	assert.False(t, views[1].Needaction)
	assert.Nil(t, views[0].Author)
	assert.Empty(t, views[0].Attachments)

	views, err = ms.Format(ctx, messages, models.Persona{})
	require.NoError(t, err)
	assert.False(t, views[0].Needaction)
}
