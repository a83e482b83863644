package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"MAILSYNC_SERVER_HOST",
		"MAILSYNC_SERVER_PORT",
		"MAILSYNC_IMAP_DIAL_TIMEOUT",
		"MAILSYNC_IMAP_SENT_CANDIDATES",
		"MAILSYNC_SYNC_INTERVAL",
		"MAILSYNC_SYNC_WORKERS",
		"MAILSYNC_DATABASE_TYPE",
		"MAILSYNC_DATABASE_DSN",
		"MAILSYNC_LOG_LEVEL",
		"MAILSYNC_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.IMAP.DialTimeout)
		assert.Equal(t, []string{"Sent", "Sent Items", "INBOX.Sent", "INBOX.Sent Items"}, cfg.IMAP.SentCandidates)
		assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
		assert.Equal(t, 4, cfg.Sync.Workers)
		assert.Equal(t, "", cfg.Database.Type)
		assert.False(t, cfg.Redis.Enabled)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSYNC_SERVER_PORT", "9090")
		os.Setenv("MAILSYNC_IMAP_DIAL_TIMEOUT", "10s")
		os.Setenv("MAILSYNC_IMAP_SENT_CANDIDATES", "Sent,Gesendet")
		os.Setenv("MAILSYNC_LOG_LEVEL", "debug")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 10*time.Second, cfg.IMAP.DialTimeout)
		assert.Equal(t, []string{"Sent", "Gesendet"}, cfg.IMAP.SentCandidates)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("非法的拨号超时返回错误", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSYNC_IMAP_DIAL_TIMEOUT", "not-a-duration")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("不支持的数据库类型返回错误", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSYNC_DATABASE_TYPE", "oracle")
		os.Setenv("MAILSYNC_DATABASE_DSN", "whatever")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("指定数据库类型但缺少DSN返回错误", func(t *testing.T) {
		clearEnv()
		os.Setenv("MAILSYNC_DATABASE_TYPE", "postgres")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestParseList(t *testing.T) {
	t.Run("解析逗号分隔列表", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b", "c"}, parseList("a, b ,c"))
	})

	t.Run("空串返回空列表", func(t *testing.T) {
		assert.Empty(t, parseList(""))
		assert.Empty(t, parseList(" , ,"))
	})
}
