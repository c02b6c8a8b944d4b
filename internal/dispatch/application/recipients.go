package application

import (
	"context"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// recipient 单个收件人及其候选渠道，保持入参首现顺序以保证运行确定性
type recipient struct {
	user     *domain.User
	channels []*domain.CommunicationChannel
}

// resolveRecipients 将混合收件人列表（用户 ID、用户对象、渠道对象）规整为
// 去重后的 用户 → 渠道 映射。用户派生的渠道只保留活跃的；显式传入的渠道
// 即便不活跃也保留，并归并到其所属用户名下。无法识别的条目静默忽略。
func resolveRecipients(ctx context.Context, repo domain.UserRepository, toList []any) ([]*recipient, error) {
	var ids []uint64
	var users []*domain.User
	var channels []*domain.CommunicationChannel

	for _, item := range toList {
		switch v := item.(type) {
		case uint64:
			ids = append(ids, v)
		case int64:
			if v > 0 {
				ids = append(ids, uint64(v))
			}
		case int:
			if v > 0 {
				ids = append(ids, uint64(v))
			}
		case *domain.User:
			if v != nil {
				users = append(users, v)
			}
		case *domain.CommunicationChannel:
			if v != nil {
				channels = append(channels, v)
			}
		default:
			// 非法条目不报错
		}
	}

	// 渠道未携带用户对象时也要把所属用户加载进来
	for _, ch := range channels {
		if ch.User == nil {
			ids = append(ids, ch.UserID)
		}
	}

	loaded, err := repo.FindByIDs(ctx, dedupeIDs(ids))
	if err != nil {
		return nil, err
	}

	out := make([]*recipient, 0, len(loaded)+len(users))
	index := make(map[uint64]*recipient)

	add := func(u *domain.User) *recipient {
		if r, ok := index[u.ID]; ok {
			return r
		}
		r := &recipient{user: u, channels: u.ActiveChannels()}
		index[u.ID] = r
		out = append(out, r)
		return r
	}

	for _, u := range loaded {
		add(u)
	}
	for _, u := range users {
		add(u)
	}
	for _, ch := range channels {
		owner := ch.User
		if owner == nil {
			if r, ok := index[ch.UserID]; ok {
				owner = r.user
			}
		}
		if owner == nil {
			continue
		}
		r := add(owner)
		if !containsChannel(r.channels, ch) {
			r.channels = append(r.channels, ch)
		}
	}

	return out, nil
}

func dedupeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsChannel(list []*domain.CommunicationChannel, ch *domain.CommunicationChannel) bool {
	for _, c := range list {
		if c == ch || (ch.ID != 0 && c.ID == ch.ID) {
			return true
		}
	}
	return false
}
