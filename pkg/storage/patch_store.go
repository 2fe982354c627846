package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/eoflow/pkg/core/eodata"
	"github.com/LENAX/eoflow/pkg/core/task"
)

// OverwritePermission 保存容器时对已有内容的处理方式
type OverwritePermission string

const (
	// AddOnly 只允许新增特征，已有特征的值发生变化时报错
	AddOnly OverwritePermission = "ADD_ONLY"
	// OverwriteFeatures 合并特征，同名特征以新值为准
	OverwriteFeatures OverwritePermission = "OVERWRITE_FEATURES"
	// OverwritePatch 整体替换
	OverwritePatch OverwritePermission = "OVERWRITE_PATCH"
)

// ParseOverwritePermission 解析覆盖策略，空字符串视为 ADD_ONLY
func ParseOverwritePermission(s string) (OverwritePermission, error) {
	switch p := OverwritePermission(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return AddOnly, nil
	case AddOnly, OverwriteFeatures, OverwritePatch:
		return p, nil
	default:
		return "", fmt.Errorf("未知的覆盖策略: %s", s)
	}
}

// ErrPatchNotFound 目标位置没有保存过容器
var ErrPatchNotFound = errors.New("patch not found")

// OverwriteError ADD_ONLY 策略下已有特征将被修改
type OverwriteError struct {
	Destination string
	Feature     eodata.Feature
}

func (e *OverwriteError) Error() string {
	return fmt.Sprintf("%s 中已存在特征 %s，ADD_ONLY 策略不允许覆盖", e.Destination, e.Feature)
}

// patchRow eoflow_patches 表的一行
type patchRow struct {
	Destination string `db:"destination"`
	Document    string `db:"document"`
	UpdatedAt   int64  `db:"updated_at"`
}

// SQLPatchStore 以JSON文档形式保存容器（对外导出）
// 每个 destination 对应一行。同一进程内对同一位置的保存串行执行，
// 读取、合并与写入在一个事务中完成，已存在的行在事务内加写锁。
type SQLPatchStore struct {
	db         *DB
	permission OverwritePermission

	mu    sync.Mutex
	locks map[string]*destLock
}

type destLock struct {
	mu   sync.Mutex
	refs int
}

// NewSQLPatchStore 创建容器存储
func NewSQLPatchStore(db *DB, permission OverwritePermission) *SQLPatchStore {
	if permission == "" {
		permission = AddOnly
	}
	return &SQLPatchStore{db: db, permission: permission, locks: make(map[string]*destLock)}
}

// Load 加载容器
func (s *SQLPatchStore) Load(ctx context.Context, source string) (*eodata.Patch, error) {
	return s.load(ctx, s.db, source)
}

// Save 按覆盖策略保存容器
func (s *SQLPatchStore) Save(ctx context.Context, p *eodata.Patch, dest string) error {
	if p == nil {
		return fmt.Errorf("不能保存空容器")
	}
	if dest == "" {
		return fmt.Errorf("保存位置不能为空")
	}

	unlock := s.lock(dest)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	target := p
	if s.permission != OverwritePatch {
		// 先写后读：行存在时事务持有写锁，读到的内容在提交前不会被其他事务修改
		touch := s.db.Rebind("UPDATE eoflow_patches SET updated_at = updated_at WHERE destination = ?")
		if _, err := tx.ExecContext(ctx, touch, dest); err != nil {
			return fmt.Errorf("锁定 %s 失败: %w", dest, err)
		}
		existing, err := s.load(ctx, tx, dest)
		switch {
		case errors.Is(err, ErrPatchNotFound):
		case err != nil:
			return err
		default:
			if target, err = s.combine(existing, p, dest); err != nil {
				return err
			}
		}
	}

	doc, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("序列化容器失败: %w", err)
	}
	query := s.db.Dialect.UpsertSQL("eoflow_patches",
		[]string{"destination", "document", "updated_at"}, "destination", []string{"document", "updated_at"})
	_, err = tx.NamedExecContext(ctx, query, patchRow{
		Destination: dest,
		Document:    string(doc),
		UpdatedAt:   time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("保存容器到 %s 失败: %w", dest, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交 %s 失败: %w", dest, err)
	}
	return nil
}

// lock 获取位置锁，返回释放函数
func (s *SQLPatchStore) lock(dest string) func() {
	s.mu.Lock()
	l, ok := s.locks[dest]
	if !ok {
		l = &destLock{}
		s.locks[dest] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, dest)
		}
		s.mu.Unlock()
	}
}

func (s *SQLPatchStore) load(ctx context.Context, q sqlx.QueryerContext, source string) (*eodata.Patch, error) {
	row, err := s.get(ctx, q, source)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%s: %w", source, ErrPatchNotFound)
	}
	var p eodata.Patch
	if err := json.Unmarshal([]byte(row.Document), &p); err != nil {
		return nil, fmt.Errorf("解析 %s 中的容器失败: %w", source, err)
	}
	return &p, nil
}

// Delete 删除已保存的容器
func (s *SQLPatchStore) Delete(ctx context.Context, dest string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM eoflow_patches WHERE destination = ?"), dest)
	return err
}

// List 已保存的位置，按名称排序
func (s *SQLPatchStore) List(ctx context.Context) ([]string, error) {
	var dests []string
	err := s.db.SelectContext(ctx, &dests, "SELECT destination FROM eoflow_patches ORDER BY destination")
	return dests, err
}

func (s *SQLPatchStore) get(ctx context.Context, q sqlx.QueryerContext, dest string) (*patchRow, error) {
	var row patchRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind("SELECT destination, document, updated_at FROM eoflow_patches WHERE destination = ?"), dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", dest, err)
	}
	return &row, nil
}

// combine 把新容器的特征写入已保存的容器
func (s *SQLPatchStore) combine(existing, incoming *eodata.Patch, dest string) (*eodata.Patch, error) {
	// 与已保存内容按同样的编码比较
	raw, err := json.Marshal(incoming)
	if err != nil {
		return nil, err
	}
	var normalized eodata.Patch
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}

	result := existing.Copy(false)
	for _, f := range normalized.Features() {
		if s.permission == AddOnly && existing.Has(f.Type, f.Name) && !eodata.FeatureEqual(existing, &normalized, f) {
			return nil, &OverwriteError{Destination: dest, Feature: f}
		}
		v, _ := normalized.Get(f.Type, f.Name)
		if err := result.Set(f.Type, f.Name, v); err != nil {
			return nil, err
		}
	}
	return result, nil
}

var _ task.PatchStore = (*SQLPatchStore)(nil)
