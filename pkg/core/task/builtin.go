package task

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/eoflow/pkg/core/eodata"
)

// PatchStore Patch的加载与保存（对外导出）
// 持久化由外部协作者实现，引擎只在运行边界或 load/save 任务中调用
type PatchStore interface {
	Load(ctx context.Context, source string) (*eodata.Patch, error)
	Save(ctx context.Context, patch *eodata.Patch, destination string) error
}

// 内置任务名称
const (
	CreatePatchTask       = "create_patch"
	CopyTask              = "copy"
	RemoveFeatureTask     = "remove_feature"
	RenameFeatureTask     = "rename_feature"
	DuplicateFeatureTask  = "duplicate_feature"
	InitializeFeatureTask = "initialize_feature"
	MergePatchesTask      = "merge_patches"
	LoadTask              = "load"
	SaveTask              = "save"
)

// RegisterBuiltins 注册内置的Patch操作任务
// store 为空时不注册 load 与 save
func RegisterBuiltins(r *Registry, store PatchStore) error {
	builtins := []struct {
		name string
		fn   Func
		desc string
	}{
		{CreatePatchTask, createPatch, "创建新的Patch（参数 bbox、timestamps）"},
		{CopyTask, copyPatch, "复制Patch（参数 deep）"},
		{RemoveFeatureTask, removeFeature, "删除特征（参数 features）"},
		{RenameFeatureTask, renameFeature, "重命名特征（参数 feature、new_name）"},
		{DuplicateFeatureTask, duplicateFeature, "复制特征（参数 feature、new_name、deep）"},
		{InitializeFeatureTask, initializeFeature, "用固定值初始化特征（参数 feature、shape、value）"},
		{MergePatchesTask, mergePatches, "按顺序合并上游的Patch"},
	}
	for _, b := range builtins {
		if err := r.RegisterTask(b.name, b.fn, b.desc); err != nil {
			return err
		}
	}
	if store == nil {
		return nil
	}
	if err := r.RegisterTask(LoadTask, loadPatch(store), "从存储加载Patch（参数 source）"); err != nil {
		return err
	}
	return r.RegisterTask(SaveTask, savePatch(store), "保存Patch到存储（参数 destination）")
}

// TargetPatch 返回任务要操作的Patch：第一个 *Patch 类型的位置参数，没有时为运行容器
func TargetPatch(tc *TaskContext, args []any) (*eodata.Patch, error) {
	for _, arg := range args {
		if p, ok := arg.(*eodata.Patch); ok && p != nil {
			return p, nil
		}
	}
	if p := tc.Patch(); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("节点 %s 没有可操作的Patch", tc.NodeID)
}

func createPatch(tc *TaskContext, _ ...any) (any, error) {
	var bbox *eodata.BBox
	if raw, ok := tc.GetParam("bbox").(map[string]interface{}); ok {
		vals := make(map[string]float64, 4)
		for _, key := range []string{"min_x", "min_y", "max_x", "max_y"} {
			f, err := toFloat(raw[key])
			if err != nil {
				return nil, fmt.Errorf("bbox.%s: %w", key, err)
			}
			vals[key] = f
		}
		crs, _ := raw["crs"].(string)
		b, err := eodata.NewBBox(vals["min_x"], vals["min_y"], vals["max_x"], vals["max_y"], crs)
		if err != nil {
			return nil, err
		}
		bbox = b
	}
	timestamps, err := parseTimestamps(tc.GetParam("timestamps"))
	if err != nil {
		return nil, err
	}
	return eodata.New(bbox, timestamps), nil
}

func copyPatch(tc *TaskContext, args ...any) (any, error) {
	p, err := TargetPatch(tc, args)
	if err != nil {
		return nil, err
	}
	deep := false
	if tc.HasParam("deep") {
		if deep, err = tc.GetParamBool("deep"); err != nil {
			return nil, err
		}
	}
	return p.Copy(deep), nil
}

func removeFeature(tc *TaskContext, args ...any) (any, error) {
	p, err := TargetPatch(tc, args)
	if err != nil {
		return nil, err
	}
	features, err := featureList(tc, "features")
	if err != nil {
		return nil, err
	}
	for _, f := range features {
		if f.Name == "" {
			err = p.ResetFeatureType(f.Type)
		} else {
			err = p.Delete(f.Type, f.Name)
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func renameFeature(tc *TaskContext, args ...any) (any, error) {
	p, err := TargetPatch(tc, args)
	if err != nil {
		return nil, err
	}
	f, err := tc.GetParamFeature("feature")
	if err != nil {
		return nil, err
	}
	newName := tc.GetParamString("new_name")
	v, ok := p.Get(f.Type, f.Name)
	if !ok {
		return nil, fmt.Errorf("特征 %s 不存在", f)
	}
	if err := p.Set(f.Type, newName, v); err != nil {
		return nil, err
	}
	if newName != f.Name {
		if err := p.Delete(f.Type, f.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func duplicateFeature(tc *TaskContext, args ...any) (any, error) {
	p, err := TargetPatch(tc, args)
	if err != nil {
		return nil, err
	}
	f, err := tc.GetParamFeature("feature")
	if err != nil {
		return nil, err
	}
	newName := tc.GetParamString("new_name")
	if p.Has(f.Type, newName) {
		return nil, fmt.Errorf("特征 %s 已存在", eodata.Feature{Type: f.Type, Name: newName})
	}
	v, ok := p.Get(f.Type, f.Name)
	if !ok {
		return nil, fmt.Errorf("特征 %s 不存在", f)
	}
	deep, _ := tc.GetParamBool("deep")
	if deep {
		if arr, ok := v.(*eodata.Array); ok {
			v = arr.Clone()
		}
	}
	if err := p.Set(f.Type, newName, v); err != nil {
		return nil, err
	}
	return p, nil
}

func initializeFeature(tc *TaskContext, args ...any) (any, error) {
	p, err := TargetPatch(tc, args)
	if err != nil {
		return nil, err
	}
	f, err := tc.GetParamFeature("feature")
	if err != nil {
		return nil, err
	}
	shape, err := tc.GetParamIntSlice("shape")
	if err != nil {
		return nil, err
	}
	value := 0.0
	if tc.HasParam("value") {
		if value, err = tc.GetParamFloat("value"); err != nil {
			return nil, err
		}
	}
	arr, err := eodata.Full(shape, value)
	if err != nil {
		return nil, err
	}
	if err := p.Set(f.Type, f.Name, arr); err != nil {
		return nil, err
	}
	return p, nil
}

func mergePatches(tc *TaskContext, args ...any) (any, error) {
	patches := make([]*eodata.Patch, 0, len(args))
	for i, arg := range args {
		p, ok := arg.(*eodata.Patch)
		if !ok {
			return nil, &ArgError{Index: i, Expected: "*eodata.Patch", Actual: arg}
		}
		patches = append(patches, p)
	}
	if len(patches) == 0 {
		if p := tc.Patch(); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("没有可合并的Patch")
	}
	return eodata.MergeAll(patches...)
}

func loadPatch(store PatchStore) Func {
	return func(tc *TaskContext, _ ...any) (any, error) {
		source := tc.GetParamString("source")
		if source == "" {
			return nil, fmt.Errorf("参数 source 不能为空")
		}
		return store.Load(tc.Context(), source)
	}
}

func savePatch(store PatchStore) Func {
	return func(tc *TaskContext, args ...any) (any, error) {
		p, err := TargetPatch(tc, args)
		if err != nil {
			return nil, err
		}
		dest := tc.GetParamString("destination")
		if dest == "" {
			return nil, fmt.Errorf("参数 destination 不能为空")
		}
		if err := store.Save(tc.Context(), p, dest); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// featureList 解析特征列表参数，支持单个字符串或字符串列表
func featureList(tc *TaskContext, key string) ([]eodata.Feature, error) {
	var raws []string
	switch v := tc.GetParam(key).(type) {
	case nil:
		return nil, fmt.Errorf("参数 %s 不存在", key)
	case string:
		raws = []string{v}
	case []string:
		raws = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("参数 %s 必须是字符串列表", key)
			}
			raws = append(raws, s)
		}
	default:
		return nil, fmt.Errorf("参数 %s 类型不支持: %T", key, v)
	}
	features := make([]eodata.Feature, 0, len(raws))
	for _, raw := range raws {
		f, err := ParseFeature(raw)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, nil
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimestamps(raw interface{}) ([]time.Time, error) {
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []time.Time:
		return v, nil
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("timestamps 类型不支持: %T", raw)
	}

	result := make([]time.Time, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case time.Time:
			result = append(result, t)
		case string:
			parsed, err := parseTime(t)
			if err != nil {
				return nil, err
			}
			result = append(result, parsed)
		default:
			return nil, fmt.Errorf("无法解析时间戳: %v", item)
		}
	}
	return result, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳: %q", s)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("不是数字: %v", v)
}
