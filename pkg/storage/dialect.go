// Package storage 持久化运行边界的容器与批量执行统计
package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回 database/sql 驱动名称
	DriverName() string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（sqlx命名参数形式）
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 把通用DDL转换为方言兼容的形式
	CreateTableSQL(schema string) string

	// ConfigureDB 连接建立后需要执行的SQL语句
	ConfigureDB() []string
}

// 通用DDL，由各方言的 CreateTableSQL 转换
const (
	patchesSchema = `CREATE TABLE IF NOT EXISTS eoflow_patches (
	destination VARCHAR(255) PRIMARY KEY,
	document TEXT NOT NULL,
	updated_at BIGINT NOT NULL
)`

	executionsSchema = `CREATE TABLE IF NOT EXISTS eoflow_executions (
	id VARCHAR(64) PRIMARY KEY,
	workflow_name VARCHAR(255) NOT NULL,
	started_at BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	concurrency INTEGER NOT NULL,
	run_count INTEGER NOT NULL,
	success_count INTEGER NOT NULL,
	document TEXT NOT NULL
)`
)
