package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopicMessagesStaged 消息批次落库成功后发布的领域事件主题
const TopicMessagesStaged = "notification.messages.staged"

// MessagesStagedEvent 批次落库事件载荷，经 outbox 随事务一起提交
type MessagesStagedEvent struct {
	NotificationID   uint64    `json:"notification_id"`
	NotificationName string    `json:"notification_name"`
	AssetKey         string    `json:"asset_key"`
	MessageIDs       []uint64  `json:"message_ids"`
	CancelledCount   int64     `json:"cancelled_count"`
	StagedAt         time.Time `json:"staged_at"`
}

// messageRepositoryImpl 是 domain.MessageRepository 接口的 GORM 实现。
type messageRepositoryImpl struct {
	db        *gorm.DB
	publisher domain.EventPublisher
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB, publisher domain.EventPublisher) domain.MessageRepository {
	return &messageRepositoryImpl{db: db, publisher: publisher}
}

// CountRecentEmailByUser 按用户统计 since 之后的邮箱类消息数。
// 单条 GROUP BY 查询，可以走只读副本。
func (r *messageRepositoryImpl) CountRecentEmailByUser(ctx context.Context, userIDs []uint64, since time.Time) (map[uint64]int64, error) {
	counts := make(map[uint64]int64, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}

	type row struct {
		UserID uint64
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&MessagePO{}).
		Select("user_id, COUNT(*) AS total").
		Where("user_id IN ? AND to_email = ? AND created_at >= ?", userIDs, true, since).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		logging.Error(ctx, "message_repository.count_recent_email failed", "users", len(userIDs), "error", err)
		return nil, fmt.Errorf("failed to count recent messages: %w", err)
	}

	for _, rw := range rows {
		counts[rw.UserID] = rw.Total
	}
	return counts, nil
}

// DispatchStaged 在同一事务内取消范围内的重复待投递消息并持久化本批
// staged 消息，随后通过 outbox 在事务内登记批次事件。站内消息不落入
// 取消范围。
func (r *messageRepositoryImpl) DispatchStaged(ctx context.Context, scope domain.CancelScope, msgs []*domain.Message) error {
	models := make([]*MessagePO, len(msgs))
	for i, m := range msgs {
		models[i] = toMessagePO(m)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var staleIDs []uint64
		query := tx.Model(&MessagePO{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("notification_id = ?", scope.NotificationID).
			Where("user_id IN ?", scope.UserIDs).
			Where("workflow_state IN ?", []string{string(domain.MessageStateBuilt), string(domain.MessageStateStaged)}).
			Where("`to` <> ?", "dashboard").
			Where("created_at >= ?", time.Now().Add(-scope.Window)).
			Where("asset_key = ?", scope.AssetKey).
			Where("notification_name = ?", scope.NotificationName)
		if err := query.Pluck("id", &staleIDs).Error; err != nil {
			return fmt.Errorf("failed to select duplicate messages: %w", err)
		}

		var cancelled int64
		if len(staleIDs) > 0 {
			res := tx.Model(&MessagePO{}).
				Where("id IN ?", staleIDs).
				Update("workflow_state", string(domain.MessageStateCancelled))
			if res.Error != nil {
				return fmt.Errorf("failed to cancel duplicate messages: %w", res.Error)
			}
			cancelled = res.RowsAffected
		}

		if len(models) > 0 {
			if err := tx.Create(&models).Error; err != nil {
				return fmt.Errorf("failed to persist staged messages: %w", err)
			}
		}

		ids := make([]uint64, len(models))
		for i, m := range models {
			ids[i] = m.ID
		}
		event := &MessagesStagedEvent{
			NotificationID:   scope.NotificationID,
			NotificationName: scope.NotificationName,
			AssetKey:         scope.AssetKey,
			MessageIDs:       ids,
			CancelledCount:   cancelled,
			StagedAt:         time.Now(),
		}
		if err := r.publisher.PublishInTx(ctx, tx, TopicMessagesStaged, scope.NotificationName, event); err != nil {
			return fmt.Errorf("failed to enqueue staged event: %w", err)
		}
		return nil
	})
	if err != nil {
		logging.Error(ctx, "message_repository.dispatch_staged failed",
			"notification", scope.NotificationName, "messages", len(msgs), "error", err)
		return err
	}

	for i, m := range msgs {
		m.ID = models[i].ID
		m.CreatedAt = models[i].CreatedAt
	}
	return nil
}

// SaveDashboard 保存站内消息，不进入 staging 事务
func (r *messageRepositoryImpl) SaveDashboard(ctx context.Context, msg *domain.Message) error {
	model := toMessagePO(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		logging.Error(ctx, "message_repository.save_dashboard failed", "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to save dashboard message: %w", err)
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	return nil
}

// ListByUser 按用户分页查询消息
func (r *messageRepositoryImpl) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*domain.Message, int64, error) {
	var models []*MessagePO
	var total int64
	db := r.db.WithContext(ctx).Model(&MessagePO{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		logging.Error(ctx, "message_repository.list_by_user failed", "user_id", userID, "error", err)
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs := make([]*domain.Message, len(models))
	for i, m := range models {
		msgs[i] = toMessage(m)
	}
	return msgs, total, nil
}

// MarkDispatched 投递方确认后批量回写终态
func (r *messageRepositoryImpl) MarkDispatched(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&MessagePO{}).
		Where("id IN ? AND workflow_state = ?", ids, string(domain.MessageStateStaged)).
		Update("workflow_state", string(domain.MessageStateDispatched)).Error
	if err != nil {
		logging.Error(ctx, "message_repository.mark_dispatched failed", "count", len(ids), "error", err)
		return fmt.Errorf("failed to mark messages dispatched: %w", err)
	}
	return nil
}

// MarkSendFailed 投递失败批量回写，保留失败原因便于排查
func (r *messageRepositoryImpl) MarkSendFailed(ctx context.Context, ids []uint64, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&MessagePO{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"workflow_state": string(domain.MessageStateSendFailed),
			"fail_reason":    reason,
		}).Error
	if err != nil {
		logging.Error(ctx, "message_repository.mark_send_failed failed", "count", len(ids), "error", err)
		return fmt.Errorf("failed to mark messages failed: %w", err)
	}
	return nil
}
