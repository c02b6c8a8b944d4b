// Package messaging 事件发布的 outbox 适配层
package messaging

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"gorm.io/gorm"
)

// outboxPublisher 将领域事件写入 outbox 表，由后台 Processor 统一推送。
// 事务外发布时直接使用持有的连接，落库与推送仍经同一张表。
type outboxPublisher struct {
	manager *outbox.Manager
	db      *gorm.DB
}

// NewOutboxPublisher 创建 outbox 事件发布者
func NewOutboxPublisher(manager *outbox.Manager, db *gorm.DB) domain.EventPublisher {
	return &outboxPublisher{manager: manager, db: db}
}

// Publish 在事务外登记事件
func (p *outboxPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	return p.manager.PublishInTx(p.db, topic, key, event)
}

// PublishInTx 在调用方事务内登记事件，消息批次落库走这条路径
func (p *outboxPublisher) PublishInTx(ctx context.Context, tx any, topic string, key string, event any) error {
	gormTx, ok := tx.(*gorm.DB)
	if !ok {
		return fmt.Errorf("tx must be *gorm.DB, got %T", tx)
	}
	return p.manager.PublishInTx(gormTx, topic, key, event)
}
