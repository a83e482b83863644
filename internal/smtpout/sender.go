package smtpout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailsync/backend/internal/domain"
)

// ErrSMTPNotConfigured 账户未配置 SMTP 出口
var ErrSMTPNotConfigured = errors.New("smtp not configured for account")

// Outgoing 表示一封待发送的邮件。
type Outgoing struct {
	To          string
	Subject     string
	Text        string
	InReplyTo   string
	Attachments []domain.Attachment
}

// Sender 通过账户自带的 SMTP 凭据发送邮件。
//
// 和拉取侧一样，每次发送建立独立会话，发送完成即关闭。
type Sender struct {
	log *zap.Logger
}

// NewSender 创建邮件发送器。
func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

// Send 构造 MIME 报文并通过账户的 SMTP 服务器投递。
func (s *Sender) Send(ctx context.Context, account *domain.Account, out *Outgoing) error {
	if account.SMTPHost == "" {
		return ErrSMTPNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := buildMessage(account.Email, out)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	conn, err := s.dial(account)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", account.SMTPAddr(), err)
	}
	defer conn.Close()

	auth := sasl.NewPlainClient("", account.Email, account.Password)
	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth %s: %w", account.Email, err)
	}

	if err := conn.Mail(account.Email, nil); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := conn.Rcpt(out.To, nil); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	s.log.Info("mail sent",
		zap.String("from", account.Email),
		zap.String("to", out.To),
		zap.String("subject", out.Subject),
	)

	return conn.Quit()
}

// dial 按账户配置建立 SMTP 连接，465 走隐式 TLS，其余走 STARTTLS。
func (s *Sender) dial(account *domain.Account) (*smtp.Client, error) {
	if account.SMTPSecure {
		return smtp.DialTLS(account.SMTPAddr(), nil)
	}
	return smtp.DialStartTLS(account.SMTPAddr(), nil)
}

// buildMessage 用 go-message 组装 multipart MIME 报文。
func buildMessage(from string, out *Outgoing) ([]byte, error) {
	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	header.SetAddressList("To", []*mail.Address{{Address: out.To}})
	header.SetSubject(out.Subject)
	if out.InReplyTo != "" {
		header.Set("In-Reply-To", out.InReplyTo)
		header.Set("References", out.InReplyTo)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(pw, out.Text); err != nil {
		return nil, err
	}
	if err := pw.Close(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, att := range out.Attachments {
		var attHeader mail.AttachmentHeader
		attHeader.SetFilename(att.Filename)
		attHeader.SetContentType(att.MimeType, nil)
		aw, err := mw.CreateAttachment(attHeader)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
