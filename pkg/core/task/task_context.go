package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/LENAX/eoflow/pkg/core/eodata"
)

// TaskContext Task执行上下文，提供类型安全的API访问节点信息与运行容器（对外导出）
// 同一运行中的节点顺序执行，TaskContext 只在一次 Execute 调用期间有效
type TaskContext struct {
	ctx          context.Context        // 底层context，用于超时、取消等
	NodeID       string                 // 节点ID
	RunID        string                 // 运行ID
	WorkflowName string                 // 工作流名称
	Params       map[string]interface{} // 节点参数（已叠加运行级覆盖参数）

	patch *eodata.Patch
}

// NewTaskContext 创建TaskContext（对外导出）
func NewTaskContext(ctx context.Context, nodeID, runID, workflowName string, params map[string]interface{}, patch *eodata.Patch) *TaskContext {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = WithNodeID(ctx, nodeID)
	ctx = WithRunID(ctx, runID)
	return &TaskContext{
		ctx:          ctx,
		NodeID:       nodeID,
		RunID:        runID,
		WorkflowName: workflowName,
		Params:       params,
		patch:        patch,
	}
}

// Context 返回底层context.Context（对外导出）
// 用于超时、取消等标准context操作
func (tc *TaskContext) Context() context.Context {
	return tc.ctx
}

// Done 返回一个channel，当context被取消时该channel会被关闭（对外导出）
func (tc *TaskContext) Done() <-chan struct{} {
	return tc.ctx.Done()
}

// Err 返回context的错误（对外导出）
func (tc *TaskContext) Err() error {
	return tc.ctx.Err()
}

// Patch 返回当前运行容器
func (tc *TaskContext) Patch() *eodata.Patch {
	return tc.patch
}

// SetPatch 替换当前运行容器，节点结束后由引擎接管
func (tc *TaskContext) SetPatch(p *eodata.Patch) {
	tc.patch = p
}

// GetParam 获取参数值（对外导出）
// key: 参数名
// 返回: 参数值，如果不存在返回nil
func (tc *TaskContext) GetParam(key string) interface{} {
	if tc.Params == nil {
		return nil
	}
	return tc.Params[key]
}

// GetParamString 获取字符串参数（对外导出）
func (tc *TaskContext) GetParamString(key string) string {
	val := tc.GetParam(key)
	if val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}

// GetParamInt 获取整数参数（对外导出）
func (tc *TaskContext) GetParamInt(key string) (int, error) {
	val := tc.GetParam(key)
	if val == nil {
		return 0, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		var i int
		_, err := fmt.Sscanf(v, "%d", &i)
		return i, err
	default:
		return 0, fmt.Errorf("参数 %s 类型不是整数，当前类型: %T", key, val)
	}
}

// GetParamBool 获取布尔参数（对外导出）
func (tc *TaskContext) GetParamBool(key string) (bool, error) {
	val := tc.GetParam(key)
	if val == nil {
		return false, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		return v == "true" || v == "1" || v == "yes", nil
	default:
		return false, fmt.Errorf("参数 %s 类型不是布尔值，当前类型: %T", key, val)
	}
}

// GetParamFloat 获取浮点数参数（对外导出）
func (tc *TaskContext) GetParamFloat(key string) (float64, error) {
	val := tc.GetParam(key)
	if val == nil {
		return 0, fmt.Errorf("参数 %s 不存在", key)
	}

	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		var f float64
		_, err := fmt.Sscanf(v, "%f", &f)
		return f, err
	default:
		return 0, fmt.Errorf("参数 %s 类型不是浮点数，当前类型: %T", key, val)
	}
}

// GetParamIntSlice 获取整数切片参数，yaml解析出的[]interface{}也可以使用
func (tc *TaskContext) GetParamIntSlice(key string) ([]int, error) {
	val := tc.GetParam(key)
	switch v := val.(type) {
	case nil:
		return nil, fmt.Errorf("参数 %s 不存在", key)
	case []int:
		return v, nil
	case []interface{}:
		result := make([]int, 0, len(v))
		for i, item := range v {
			switch n := item.(type) {
			case int:
				result = append(result, n)
			case int64:
				result = append(result, int(n))
			case float64:
				result = append(result, int(n))
			default:
				return nil, fmt.Errorf("参数 %s 第%d项不是整数: %T", key, i, item)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("参数 %s 类型不是整数列表，当前类型: %T", key, val)
	}
}

// GetParamFeature 获取特征参数，格式为 "type:name"（如 "data:BANDS"）
func (tc *TaskContext) GetParamFeature(key string) (eodata.Feature, error) {
	raw := tc.GetParamString(key)
	if raw == "" {
		return eodata.Feature{}, fmt.Errorf("参数 %s 不存在", key)
	}
	return ParseFeature(raw)
}

// ParseFeature 解析 "type:name" 形式的特征标识
func ParseFeature(raw string) (eodata.Feature, error) {
	typeName, name, _ := strings.Cut(raw, ":")
	ft, err := eodata.ParseFeatureType(typeName)
	if err != nil {
		return eodata.Feature{}, err
	}
	return eodata.Feature{Type: ft, Name: strings.TrimSpace(name)}, nil
}

// MustGetParam 获取参数值，如果不存在则panic（对外导出）
// 用于确保参数存在的场景
func (tc *TaskContext) MustGetParam(key string) interface{} {
	val := tc.GetParam(key)
	if val == nil {
		panic(fmt.Sprintf("必需的参数 %s 不存在", key))
	}
	return val
}

// HasParam 检查参数是否存在（对外导出）
func (tc *TaskContext) HasParam(key string) bool {
	if tc.Params == nil {
		return false
	}
	_, exists := tc.Params[key]
	return exists
}
