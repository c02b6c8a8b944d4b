package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// ErrUnknownNotification 通知目录中不存在请求的类型
var ErrUnknownNotification = fmt.Errorf("unknown notification type")

// DispatchService 分发服务门面：面向接口层的入口，按请求装配一次
// MessageCreator 运行
type DispatchService struct {
	notifications domain.NotificationRepository
	deps          CreatorDeps
	opts          CreatorOptions
}

// NewDispatchService 构造函数
func NewDispatchService(notifications domain.NotificationRepository, deps CreatorDeps, opts CreatorOptions) *DispatchService {
	return &DispatchService{
		notifications: notifications,
		deps:          deps,
		opts:          opts,
	}
}

// Dispatch 执行一次分发，返回本次创建的立即消息与站内消息
func (s *DispatchService) Dispatch(ctx context.Context, cmd DispatchCommand) ([]MessageDTO, error) {
	notification, err := s.notifications.GetByName(ctx, cmd.NotificationName)
	if err != nil {
		return nil, fmt.Errorf("load notification %q: %w", cmd.NotificationName, err)
	}
	if notification == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNotification, cmd.NotificationName)
	}

	asset := &domain.BasicAsset{
		Key:   cmd.Asset.Key,
		Title: cmd.Asset.Title,
		URL:   cmd.Asset.URL,
	}
	if cmd.Asset.ContextID != 0 {
		asset.Ctx = &domain.AssetContext{
			ID:            cmd.Asset.ContextID,
			Type:          cmd.Asset.ContextType,
			Locale:        cmd.Asset.ContextLocale,
			RootAccountID: cmd.Asset.RootAccountID,
		}
	}

	toList := make([]any, 0, len(cmd.RecipientIDs))
	for _, id := range cmd.RecipientIDs {
		toList = append(toList, id)
	}

	data := cmd.Data
	if data == nil {
		data = map[string]any{}
	}
	if cmd.Asset.Title != "" {
		if _, ok := data["title"]; !ok {
			data["title"] = cmd.Asset.Title
		}
	}
	if cmd.Asset.URL != "" {
		if _, ok := data["url"]; !ok {
			data["url"] = cmd.Asset.URL
		}
	}

	creator, err := NewMessageCreator(ctx, notification, asset, toList, data, s.deps, s.opts)
	if err != nil {
		return nil, err
	}

	msgs, err := creator.Create(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out, nil
}

// ListMessages 按用户分页查询消息历史
func (s *DispatchService) ListMessages(ctx context.Context, userID uint64, limit, offset int) ([]MessageDTO, int64, error) {
	msgs, total, err := s.deps.Messages.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out, total, nil
}
