package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/imapfetch"
	"mailsync/backend/internal/logger"
	"mailsync/backend/internal/storage/memory"
)

// fetchmail 对单个邮箱执行一次性全量拉取并打印结果，
// 用于排查 IMAP 连接与 Sent 文件夹探测问题。
func main() {
	email := flag.String("email", "", "邮箱地址")
	password := flag.String("password", "", "邮箱密码（留空时读 MAILSYNC_FETCH_PASSWORD）")
	imapHost := flag.String("imap-host", "", "IMAP 服务器地址")
	imapPort := flag.Int("imap-port", 993, "IMAP 服务器端口")
	imapSecure := flag.Bool("imap-secure", true, "使用 TLS 直连（false 为 STARTTLS/明文）")
	timeout := flag.Duration("timeout", 2*time.Minute, "整次拉取的超时时间")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("MAILSYNC_FETCH_PASSWORD")
	}
	if *email == "" || *password == "" || *imapHost == "" {
		fmt.Println("用法:")
		fmt.Println("  go run cmd/fetchmail/main.go -email=user@example.com -imap-host=imap.example.com [-imap-port=993] [-password=...]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDevelopmentLogger()
	defer log.Sync()

	// 账户只存在于这次进程的内存里
	store := memory.NewStore()
	account := &domain.Account{
		ID:         uuid.New().String(),
		Email:      *email,
		Password:   *password,
		IMAPHost:   *imapHost,
		IMAPPort:   *imapPort,
		IMAPSecure: *imapSecure,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := store.SaveAccount(account); err != nil {
		fmt.Printf("错误: 保存账户失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fetcher := imapfetch.NewFetcher(store, cfg.IMAP, log)
	messages, err := fetcher.FetchAll(ctx, account.ID)
	if err != nil {
		fmt.Printf("错误: 拉取失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ 拉取成功: 共 %d 封邮件\n\n", len(messages))
	for _, m := range messages {
		state := " "
		if m.IsRead {
			state = "R"
		}
		fmt.Printf("[%s] %-6s uid=%-6d %s  %s  %s\n",
			state, m.Mailbox, m.UID,
			m.Date.Format("2006-01-02 15:04"),
			m.From, m.Subject,
		)
		if len(m.Attachments) > 0 {
			for _, att := range m.Attachments {
				fmt.Printf("        附件: %s (%s, part %s)\n", att.Filename, att.MimeType, att.Part)
			}
		}
	}
}
