package messaging

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"gorm.io/gorm"
)

func newTestPublisher(t *testing.T) (*gorm.DB, domain.EventPublisher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&outbox.OutboxMessage{}))
	return db, NewOutboxPublisher(outbox.NewManager(db, slog.Default()), db)
}

func outboxCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&outbox.OutboxMessage{}).Count(&n).Error)
	return n
}

func TestPublishInTxCommitsWithTransaction(t *testing.T) {
	db, pub := newTestPublisher(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return pub.PublishInTx(context.Background(), tx,
			"notification.messages.staged", "DiscussionReply", map[string]any{"cancelled": 1})
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, outboxCount(t, db))
}

func TestPublishInTxRollsBackWithTransaction(t *testing.T) {
	db, pub := newTestPublisher(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := pub.PublishInTx(context.Background(), tx,
			"notification.messages.staged", "DiscussionReply", map[string]any{"cancelled": 0}); err != nil {
			return err
		}
		return errors.New("staging failed")
	})
	require.Error(t, err)
	assert.EqualValues(t, 0, outboxCount(t, db))
}

func TestPublishInTxRejectsUnknownTransactionType(t *testing.T) {
	_, pub := newTestPublisher(t)

	err := pub.PublishInTx(context.Background(), struct{}{}, "topic", "key", nil)
	assert.Error(t, err)
}

func TestPublishOutsideTransaction(t *testing.T) {
	db, pub := newTestPublisher(t)

	err := pub.Publish(context.Background(), "notification.messages.staged", "DiscussionReply", map[string]any{"cancelled": 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, outboxCount(t, db))
}
