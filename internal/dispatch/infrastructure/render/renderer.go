// Package render 消息正文渲染：按语言把通知数据组装成投递文案
package render

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
)

// 每个语言一组模板，缺失语言回退到 en
var defaultTemplates = map[string]map[domain.RenderKind]string{
	"en": {
		domain.RenderDefault: "{{.Title}}\n\n{{.Body}}{{if .URL}}\n\nView it here: {{.URL}}{{end}}",
		domain.RenderSummary: "{{.Title}}{{if .Body}}: {{.Body}}{{end}}",
	},
	"zh": {
		domain.RenderDefault: "{{.Title}}\n\n{{.Body}}{{if .URL}}\n\n点击查看：{{.URL}}{{end}}",
		domain.RenderSummary: "{{.Title}}{{if .Body}}：{{.Body}}{{end}}",
	},
}

type renderData struct {
	Title string
	Body  string
	URL   string
}

// TemplateRenderer 基于模板的默认渲染器。模板在构造期全部解析完成，
// Render 过程无锁只读。
type TemplateRenderer struct {
	templates map[string]map[domain.RenderKind]*template.Template
}

// NewTemplateRenderer 创建默认渲染器
func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[string]map[domain.RenderKind]*template.Template)}
	for locale, kinds := range defaultTemplates {
		r.templates[locale] = make(map[domain.RenderKind]*template.Template, len(kinds))
		for kind, text := range kinds {
			tpl, err := template.New(locale + "/" + string(kind)).Parse(text)
			if err != nil {
				return nil, fmt.Errorf("failed to parse template %s/%s: %w", locale, kind, err)
			}
			r.templates[locale][kind] = tpl
		}
	}
	return r, nil
}

// Render 按给定语言填充消息的 subject/body/url。语言无对应模板时
// 回退到 en。
func (r *TemplateRenderer) Render(ctx context.Context, msg *domain.Message, kind domain.RenderKind, locale string) error {
	kinds, ok := r.templates[locale]
	if !ok {
		kinds = r.templates["en"]
	}
	tpl, ok := kinds[kind]
	if !ok {
		return fmt.Errorf("no template for render kind %q", kind)
	}

	data := renderData{
		Title: msg.Subject,
		URL:   msg.URL,
	}
	if v, ok := msg.Data["title"].(string); ok && v != "" {
		data.Title = v
	}
	if v, ok := msg.Data["body"].(string); ok {
		data.Body = v
	}
	if v, ok := msg.Data["url"].(string); ok && v != "" {
		data.URL = v
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render message %s: %w", msg.NotificationName, err)
	}

	msg.Body = buf.String()
	if msg.Subject == "" {
		msg.Subject = data.Title
	}
	if msg.URL == "" {
		msg.URL = data.URL
	}
	return nil
}
