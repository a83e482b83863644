package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host            string // 监听地址，默认 "0.0.0.0"
	Port            int    // 监听端口，默认 8080
	RateLimitPerMin int64  // 单 IP 每分钟请求上限，0 表示不限流，默认 120
}

// IMAPConfig 定义 IMAP 会话行为参数
type IMAPConfig struct {
	DialTimeout    time.Duration // 建连超时，默认 30s（挂死的服务器不应拖垮整个拉取）
	SentCandidates []string      // Sent 文件夹候选名，按序探测，第一个能打开的生效
}

// SyncConfig 定义后台同步循环配置
type SyncConfig struct {
	Interval   time.Duration // 两轮全量同步之间的间隔，默认 5m
	Workers    int           // 并发同步的账户数上限，默认 4
	RatePerMin int           // 每分钟最多发起的 IMAP 会话数，默认 30
	CacheTTL   time.Duration // 拉取结果缓存存活时间，默认 60s
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义账户库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis（结果缓存与限流计数）
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	IMAP     IMAPConfig
	Sync     SyncConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// defaultSentCandidates 是常见服务器使用的 Sent 文件夹命名。
// 服务器之间没有统一约定，按列表顺序探测是最简单的稳健策略。
var defaultSentCandidates = []string{"Sent", "Sent Items", "INBOX.Sent", "INBOX.Sent Items"}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILSYNC_
// 例如: MAILSYNC_SERVER_PORT, MAILSYNC_DATABASE_DSN
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("mailsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.rate_limit_per_min", 120)
	viper.SetDefault("imap.dial_timeout", "30s")
	viper.SetDefault("imap.sent_candidates", strings.Join(defaultSentCandidates, ","))
	viper.SetDefault("sync.interval", "5m")
	viper.SetDefault("sync.workers", 4)
	viper.SetDefault("sync.rate_per_min", 30)
	viper.SetDefault("sync.cache_ttl", "60s")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	dialTimeout, err := time.ParseDuration(viper.GetString("imap.dial_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid imap.dial_timeout: %w", err)
	}

	sentCandidates := parseList(viper.GetString("imap.sent_candidates"))
	if len(sentCandidates) == 0 {
		sentCandidates = defaultSentCandidates
	}

	syncInterval, err := time.ParseDuration(viper.GetString("sync.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.interval: %w", err)
	}

	cacheTTL, err := time.ParseDuration(viper.GetString("sync.cache_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.cache_ttl: %w", err)
	}

	workers := viper.GetInt("sync.workers")
	if workers <= 0 {
		workers = 4
	}

	ratePerMin := viper.GetInt("sync.rate_per_min")
	if ratePerMin <= 0 {
		ratePerMin = 30
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	dbType := viper.GetString("database.type")
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type: %s (supported: mysql, postgres)", dbType)
	}
	if dbType != "" && viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is set")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            viper.GetString("server.host"),
			Port:            viper.GetInt("server.port"),
			RateLimitPerMin: viper.GetInt64("server.rate_limit_per_min"),
		},
		IMAP: IMAPConfig{
			DialTimeout:    dialTimeout,
			SentCandidates: sentCandidates,
		},
		Sync: SyncConfig{
			Interval:   syncInterval,
			Workers:    workers,
			RatePerMin: ratePerMin,
			CacheTTL:   cacheTTL,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（从子目录运行时）
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
