package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 账户校验相关的错误定义
var (
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrMissingPassword = errors.New("password is required")
	ErrMissingIMAPHost = errors.New("imap host is required")
	ErrInvalidPort     = errors.New("port out of range")
)

// ValidateAccount 校验账户连接配置的完整性。
//
// SMTP 字段允许为空（只读账户不外发），但 IMAP 连接信息必须齐全。
func ValidateAccount(a *Account) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(a.Email)); err != nil {
		return ErrInvalidEmail
	}
	if a.Password == "" {
		return ErrMissingPassword
	}
	if strings.TrimSpace(a.IMAPHost) == "" {
		return ErrMissingIMAPHost
	}
	if !validPort(a.IMAPPort) {
		return ErrInvalidPort
	}
	if a.SMTPHost != "" && !validPort(a.SMTPPort) {
		return ErrInvalidPort
	}
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
