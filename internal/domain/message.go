package domain

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// Mailbox 标识一封邮件的来源文件夹。
type Mailbox string

const (
	MailboxInbox Mailbox = "inbox"
	MailboxSent  Mailbox = "sent"
)

// Valid 判断文件夹标签是否合法。
func (m Mailbox) Valid() bool {
	return m == MailboxInbox || m == MailboxSent
}

// Message 表示跨文件夹归一化后的一封邮件。
//
// 邮件不落库：每次全量拉取都重新构建，是远端邮箱的实时视图。
// UID 在 账户+文件夹 范围内唯一，由服务器分配。
type Message struct {
	UID         uint32       `json:"uid"`
	Mailbox     Mailbox      `json:"mailbox"`
	From        string       `json:"from"`
	Subject     string       `json:"subject"`
	Date        time.Time    `json:"date"`
	Text        string       `json:"text"`
	HTML        string       `json:"html"`
	IsRead      bool         `json:"is_read"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Replies     []Reply      `json:"replies,omitempty"`
}

// Attachment 描述邮件中的一个附件部分。
//
// Part 为消息内的位置标识（"1"、"2"……），在一次解析内稳定。
// Content 仅在附件下载路径填充，列表响应不序列化。
type Attachment struct {
	Part     string `json:"part"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
}

// Reply 表示本地乐观追加的一条外发回复记录。
type Reply struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SortMessagesByDateDesc 按接收时间降序稳定排序。
//
// 不变量：排序后任意相邻两项满足 m[i].Date >= m[i+1].Date；
// 时间相同的邮件保持输入顺序。
func SortMessagesByDateDesc(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.After(messages[j].Date)
	})
}

// joinHostPort 拼接 host:port，兼容 IPv6 地址。
func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// MessageKey 返回 账户+文件夹+UID 的复合标识，用于日志与缓存键。
func MessageKey(accountID string, mailbox Mailbox, uid uint32) string {
	return fmt.Sprintf("%s:%s:%d", accountID, mailbox, uid)
}
