package eodata

import (
	"errors"
	"fmt"
)

// ErrIncompatibleMerge 合并失败的哨兵错误，可用errors.Is匹配
var ErrIncompatibleMerge = errors.New("incompatible merge")

// IncompatibleMergeError 两个Patch的共享元数据不一致，无法合并（对外导出）
type IncompatibleMergeError struct {
	Field  FeatureType // 冲突的元数据字段（bbox或timestamps）
	Reason string
}

func (e *IncompatibleMergeError) Error() string {
	return fmt.Sprintf("无法合并Patch: %s 不一致: %s", e.Field, e.Reason)
}

// Is 支持 errors.Is(err, ErrIncompatibleMerge)
func (e *IncompatibleMergeError) Is(target error) bool {
	return target == ErrIncompatibleMerge
}

// Merge 合并两个分支产生的Patch，返回新的Patch（对外导出）
//
// 规则：
//   - BBox必须相等，或其中一方未设置；
//   - Timestamps必须相等，或其中一方为空；
//   - 各特征类型按特征名取并集，同名特征以b为准（b是拓扑顺序中较晚的分支）。
//
// 输入不会被修改，结果与输入共享特征值。
func Merge(a, b *Patch) (*Patch, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("合并的Patch不能为空")
	}

	bbox := a.BBox
	switch {
	case a.BBox == nil:
		bbox = b.BBox
	case b.BBox != nil && !a.BBox.Equal(b.BBox):
		return nil, &IncompatibleMergeError{
			Field:  BBoxType,
			Reason: fmt.Sprintf("%s != %s", a.BBox, b.BBox),
		}
	}

	timestamps := a.Timestamps
	switch {
	case len(a.Timestamps) == 0:
		timestamps = b.Timestamps
	case len(b.Timestamps) > 0 && !timestampsEqual(a.Timestamps, b.Timestamps):
		return nil, &IncompatibleMergeError{
			Field:  TimestampsType,
			Reason: fmt.Sprintf("%d 个时间戳与 %d 个时间戳不一致", len(a.Timestamps), len(b.Timestamps)),
		}
	}

	merged := New(nil, timestamps)
	if bbox != nil {
		cp := *bbox
		merged.BBox = &cp
	}
	for _, src := range []*Patch{a, b} {
		for ft, values := range src.features {
			if merged.features[ft] == nil {
				merged.features[ft] = make(map[string]any, len(values))
			}
			for name, v := range values {
				merged.features[ft][name] = v
			}
		}
	}
	return merged, nil
}

// MergeAll 按顺序依次合并多个Patch
func MergeAll(patches ...*Patch) (*Patch, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("至少需要一个Patch")
	}
	result := patches[0].Copy(false)
	for _, p := range patches[1:] {
		merged, err := Merge(result, p)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}
