package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DB 带方言的数据库连接（对外导出）
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// NewDB 包装已建立的连接，执行方言配置并创建表结构
func NewDB(ctx context.Context, db *sqlx.DB, dialect Dialect) (*DB, error) {
	if db == nil || dialect == nil {
		return nil, fmt.Errorf("数据库连接与方言不能为空")
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("配置%s数据库失败: %w", dialect.Name(), err)
		}
	}
	for _, schema := range []string{patchesSchema, executionsSchema} {
		if _, err := db.ExecContext(ctx, dialect.CreateTableSQL(schema)); err != nil {
			return nil, fmt.Errorf("创建表结构失败: %w", err)
		}
	}
	return &DB{DB: db, Dialect: dialect}, nil
}
