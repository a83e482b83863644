package domain

import "time"

// Account 表示一个被监控邮箱的连接配置。
//
// Password 为不透明凭证，仅用于建立 IMAP/SMTP 会话，
// 任何 API 响应都不得回显（json:"-"）。
type Account struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email       string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Password    string     `json:"-" gorm:"type:varchar(255);not null"`
	IMAPHost    string     `json:"imap_host" gorm:"type:varchar(255);not null"`
	IMAPPort    int        `json:"imap_port" gorm:"default:993"`
	IMAPSecure  bool       `json:"imap_secure" gorm:"default:true"`
	SMTPHost    string     `json:"smtp_host" gorm:"type:varchar(255)"`
	SMTPPort    int        `json:"smtp_port" gorm:"default:465"`
	SMTPSecure  bool       `json:"smtp_secure" gorm:"default:true"`
	Provider    string     `json:"provider" gorm:"type:varchar(100)"`      // 提供商标签，如 "gmail"、"zoho"
	SyncEnabled bool       `json:"sync_enabled" gorm:"default:true;index"` // 是否纳入后台同步
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`                 // 最近一次成功全量拉取时间
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IMAPAddr 返回 IMAP 服务器的 host:port 地址。
func (a *Account) IMAPAddr() string {
	return joinHostPort(a.IMAPHost, a.IMAPPort)
}

// SMTPAddr 返回 SMTP 服务器的 host:port 地址。
func (a *Account) SMTPAddr() string {
	return joinHostPort(a.SMTPHost, a.SMTPPort)
}
