package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/eoflow/pkg/storage"
	"github.com/LENAX/eoflow/pkg/storage/mysql"
	"github.com/LENAX/eoflow/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/eoflow/pkg/storage/sqlite"
)

// PoolConfig 连接池配置（内部使用）
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Repositories 存储Repository集合（内部使用）
type Repositories struct {
	DB      *storage.DB
	Patches *storage.SQLPatchStore
	Stats   *storage.StatsRepository
}

// Close 关闭数据库连接
func (r *Repositories) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// NewDialect 根据数据库类型创建方言（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
func NewDialect(dbType string) (storage.Dialect, error) {
	switch dbType {
	case "sqlite":
		return pkgsqlite.NewSQLiteDialect(), nil
	case "mysql":
		return mysql.NewMySQLDialect(), nil
	case "postgres", "postgresql":
		return postgres.NewPostgresDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// OpenDB 打开数据库并初始化表结构（内部方法）
func OpenDB(ctx context.Context, dbType, dsn string, pool PoolConfig) (*storage.DB, error) {
	dialect, err := NewDialect(dbType)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database failed: %w", dbType, err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s database failed: %w", dbType, err)
	}

	wrapped, err := storage.NewDB(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return wrapped, nil
}

// NewRepositories 打开数据库并创建所有Repository（内部方法）
func NewRepositories(ctx context.Context, dbType, dsn string, pool PoolConfig, permission storage.OverwritePermission) (*Repositories, error) {
	db, err := OpenDB(ctx, dbType, dsn, pool)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		DB:      db,
		Patches: storage.NewSQLPatchStore(db, permission),
		Stats:   storage.NewStatsRepository(db),
	}, nil
}
