package sender

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/wyfcoding/coursenotify/internal/dispatch/domain"
	"github.com/wyfcoding/pkg/logging"
)

// SMTPSender 标准 SMTP 邮件发送器
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(host, port, username, password, from string) domain.Sender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send 发送一封邮件
func (s *SMTPSender) Send(ctx context.Context, target string, subject string, content string) error {
	logging.Info(ctx, "sending email", "target", target, "subject", subject)

	msg := []byte("To: " + target + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		content + "\r\n")

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, auth, s.from, []string{target}, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
