package task

import "context"

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// NodeIDKey 节点ID在context中的key
	NodeIDKey contextKey = "eoflow.node.id"
	// RunIDKey 运行ID在context中的key
	RunIDKey contextKey = "eoflow.run.id"
)

// WithNodeID 将节点ID添加到context中（对外导出）
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// GetNodeID 从context中获取节点ID（对外导出）
func GetNodeID(ctx context.Context) string {
	if id, ok := ctx.Value(NodeIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRunID 将运行ID添加到context中（对外导出）
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID 从context中获取运行ID（对外导出）
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}
