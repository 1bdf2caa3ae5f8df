package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func TestStoreSinkPersistsRenderedNotification(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	sink, err := NewStoreSink(repo)
	require.NoError(t, err)
	user := uuid.New()

	event := Event{
		ID:      uuid.New(),
		UserID:  user,
		Kind:    enums.NotificationKindOrderStatusChanged,
		Payload: map[string]any{"order_id": "o-1", "to": "ready_for_delivery"},
	}
	require.NoError(t, sink.Deliver(context.Background(), event))

	rows, next, err := repo.Page(context.Background(), inboxQuery{RecipientID: user})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, rows, 1)
	assert.Equal(t, event.ID, rows[0].ID)
	assert.Equal(t, "Order updated", rows[0].Title)
	assert.Equal(t, "Your order o-1 is now ready_for_delivery.", rows[0].Message)
	assert.Equal(t, "o-1", rows[0].Payload["order_id"])

	assert.ErrorIs(t, sink.Deliver(context.Background(), Event{Kind: enums.NotificationKindLowStock}), ErrNoUser)
}

func TestRepositoryListPagesAndMarksRead(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	user := uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Notification{
			UserID:    user,
			Kind:      enums.NotificationKindOrderCreated,
			Title:     "Order created",
			Message:   "m",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: uuid.New(), Kind: enums.NotificationKindLowStock, Title: "x", Message: "y"}))

	page, next, err := repo.Page(ctx, inboxQuery{RecipientID: user, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)

	rest, next, err := repo.Page(ctx, inboxQuery{RecipientID: user, Limit: 2, After: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, next)
	assert.True(t, rest[0].CreatedAt.Before(page[1].CreatedAt))

	mark, err := repo.MarkRead(ctx, user, rest[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, markUpdated, mark)

	mark, err = repo.MarkRead(ctx, user, rest[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, markAlreadyRead, mark)

	mark, err = repo.MarkRead(ctx, uuid.New(), rest[0].ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, markMissing, mark, "other recipients must not see the row")

	unreadCount, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unreadCount)

	lowStock, _, err := repo.Page(ctx, inboxQuery{RecipientID: user, Kind: enums.NotificationKindLowStock})
	require.NoError(t, err)
	assert.Empty(t, lowStock)

	updated, err := repo.MarkAllRead(ctx, user, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	unread, _, err := repo.Page(ctx, inboxQuery{RecipientID: user, UnreadOnly: true, Limit: pagination.MaxLimit})
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestRepositoryDeleteReadOlderThanKeepsUnread(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	user := uuid.New()
	old := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	readAt := old.Add(time.Hour)

	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: user, Kind: enums.NotificationKindLowStock, Title: "a", Message: "m", CreatedAt: old, ReadAt: &readAt}))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: user, Kind: enums.NotificationKindLowStock, Title: "b", Message: "m", CreatedAt: old}))
	require.NoError(t, repo.Create(ctx, &models.Notification{UserID: user, Kind: enums.NotificationKindLowStock, Title: "c", Message: "m", CreatedAt: time.Now().UTC(), ReadAt: &readAt}))

	deleted, err := repo.DeleteReadOlderThan(ctx, old.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, _, err := repo.Page(ctx, inboxQuery{RecipientID: user, Limit: pagination.MaxLimit})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, n := range remaining {
		assert.NotEqual(t, "a", n.Title)
	}
}

type fakePublishResult struct {
	id  string
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	msgs    []*gcppubsub.Message
	resumed []string
	err     error
}

func (p *fakePublisher) ResumePublish(key string) { p.resumed = append(p.resumed, key) }

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return fakePublishResult{id: "m-1", err: p.err}
}

func TestPubSubSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := newPubSubSink(pub)
	event := Event{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Kind:       enums.NotificationKindLowStock,
		Payload:    map[string]any{"name": "insulin", "quantity": 2},
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}

	require.NoError(t, sink.Deliver(context.Background(), event))
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "low_stock", msg.Attributes["kind"])
	assert.Equal(t, event.UserID.String(), msg.Attributes["user_id"])
	assert.Equal(t, event.UserID.String(), msg.OrderingKey)
	assert.Empty(t, pub.resumed)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event.ID.String(), decoded["event_id"])
	assert.Equal(t, "insulin", decoded["payload"].(map[string]any)["name"])
}

func TestPubSubSinkReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("topic deleted")}
	sink := newPubSubSink(pub)
	user := uuid.New()
	err := sink.Deliver(context.Background(), Event{ID: uuid.New(), UserID: user, Kind: enums.NotificationKindOrderCreated})
	assert.EqualError(t, err, "topic deleted")
	assert.Equal(t, []string{user.String()}, pub.resumed)
}

func TestNewPubSubSinkRequiresPublisher(t *testing.T) {
	_, err := NewPubSubSink(nil)
	assert.Error(t, err)
}
