package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailsync/backend/internal/domain"
	"mailsync/backend/internal/storage"
)

// Store SQL 数据库账户存储（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库账户存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := newGormConfig()

	var gormDB *gorm.DB
	switch driverName {
	case "mysql":
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	case "postgres":
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// newGormConfig 构造统一的 GORM 配置。
//
// TranslateError 必须开启：驱动层的唯一键冲突才会被转换为
// gorm.ErrDuplicatedKey，进而映射到 ErrAccountExists。
func newGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Migrate 执行账户表的自动迁移。
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(&domain.Account{})
}

// SaveAccount 保存新账户。
func (s *Store) SaveAccount(account *domain.Account) error {
	err := s.gormDB.Create(account).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrAccountExists
	}
	return err
}

// GetAccount 按 ID 获取账户。
func (s *Store) GetAccount(id string) (*domain.Account, error) {
	var account domain.Account
	err := s.gormDB.First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByEmail 按邮箱地址获取账户。
func (s *Store) GetAccountByEmail(email string) (*domain.Account, error) {
	var account domain.Account
	err := s.gormDB.First(&account, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts 列出全部账户，按创建时间排序。
func (s *Store) ListAccounts() ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.gormDB.Order("created_at").Find(&accounts).Error
	return accounts, err
}

// ListSyncEnabledAccounts 列出启用后台同步的账户。
func (s *Store) ListSyncEnabledAccounts() ([]domain.Account, error) {
	var accounts []domain.Account
	err := s.gormDB.Where("sync_enabled = ?", true).Order("created_at").Find(&accounts).Error
	return accounts, err
}

// UpdateAccount 更新账户。
//
// Select("*") 强制整行覆盖：Updates 传结构体时默认跳过零值字段，
// 否则 SyncEnabled=false 这类关闭开关的更新永远不会落库。
func (s *Store) UpdateAccount(account *domain.Account) error {
	result := s.gormDB.Model(&domain.Account{}).Where("id = ?", account.ID).
		Select("*").Updates(account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return storage.ErrAccountExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount 删除账户。
func (s *Store) DeleteAccount(id string) error {
	result := s.gormDB.Delete(&domain.Account{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// MarkSynced 更新账户的最近同步时间。
func (s *Store) MarkSynced(id string, at time.Time) error {
	result := s.gormDB.Model(&domain.Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{"last_sync_at": at, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 数据库健康检查。
func (s *Store) Health() error {
	return s.db.Ping()
}
