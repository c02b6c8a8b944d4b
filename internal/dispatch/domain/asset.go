package domain

// AssetContext 资产所属上下文（课程或账户），用于语言解析与根账户归属
type AssetContext struct {
	ID            uint64
	Type          string
	Locale        string
	RootAccountID uint64
}

// Asset 通知的主体（作业、公告等）。对本引擎是不可变输入
type Asset interface {
	// AssetKey 稳定标识，用作重复消息取消的范围键
	AssetKey() string
	// Context 资产所属上下文，可能为 nil
	Context() *AssetContext
}

// RecipientFilterable 可按收件人收窄的资产变体（如按用户生效的截止日期）。
// FilterByRecipient 返回 nil 表示该资产对此用户不适用，整个用户被跳过。
type RecipientFilterable interface {
	Asset
	FilterByRecipient(n *Notification, u *User) Asset
}

// AppliedTo 解析资产对单个用户的适用形态：具备收窄能力的按用户收窄，
// 否则原样返回
func AppliedTo(a Asset, n *Notification, u *User) Asset {
	if f, ok := a.(RecipientFilterable); ok {
		return f.FilterByRecipient(n, u)
	}
	return a
}

// BasicAsset 通用资产实现，由接口层从请求载荷构造
type BasicAsset struct {
	Key   string
	Title string
	URL   string
	Ctx   *AssetContext
}

func (a *BasicAsset) AssetKey() string { return a.Key }

func (a *BasicAsset) Context() *AssetContext { return a.Ctx }

// InferLocale 解析用户渲染语言：用户档案 → 资产上下文 → 默认值。
// 浏览器语言推断被显式禁用，只走账户/课程/用户档案链。
func InferLocale(u *User, ctx *AssetContext) string {
	if u != nil && u.Locale != "" {
		return u.Locale
	}
	if ctx != nil && ctx.Locale != "" {
		return ctx.Locale
	}
	return "en"
}
