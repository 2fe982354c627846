package eodata

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Cloner 自定义深拷贝能力，特征值实现该接口时深拷贝会调用它
type Cloner interface {
	Clone() any
}

// Patch 单次运行中在任务之间传递的数据容器（对外导出）
// 按特征类型分类存放特征值，BBox和Timestamps是整个运行共享的元数据。
// Patch本身不加锁：同一时刻只允许拥有它的运行访问。
type Patch struct {
	BBox       *BBox
	Timestamps []time.Time
	features   map[FeatureType]map[string]any
}

// New 创建Patch
func New(bbox *BBox, timestamps []time.Time) *Patch {
	return &Patch{
		BBox:       bbox,
		Timestamps: append([]time.Time(nil), timestamps...),
		features:   make(map[FeatureType]map[string]any),
	}
}

// Set 设置特征值
// BBOX和TIMESTAMPS使用空名称，值分别为*BBox和[]time.Time
func (p *Patch) Set(ft FeatureType, name string, value any) error {
	if _, err := ParseFeatureType(string(ft)); err != nil {
		return err
	}
	switch ft {
	case BBoxType:
		bbox, ok := value.(*BBox)
		if !ok || bbox == nil {
			return fmt.Errorf("bbox 特征值必须是非空的*BBox，实际为 %T", value)
		}
		p.BBox = bbox
		return nil
	case TimestampsType:
		ts, ok := value.([]time.Time)
		if !ok {
			return fmt.Errorf("timestamps 特征值必须是[]time.Time，实际为 %T", value)
		}
		p.Timestamps = ts
		return nil
	}
	if err := ValidateFeatureName(ft, name); err != nil {
		return err
	}
	if err := validateValue(ft, name, value); err != nil {
		return err
	}
	p.ensure()
	if p.features[ft] == nil {
		p.features[ft] = make(map[string]any)
	}
	p.features[ft][name] = value
	return nil
}

// validateValue 校验特征值与特征类型是否匹配
func validateValue(ft FeatureType, name string, value any) error {
	if !ft.IsArray() {
		return nil
	}
	arr, ok := value.(*Array)
	if !ok || arr == nil {
		return fmt.Errorf("特征 (%s, %s) 的值必须是*Array，实际为 %T", ft, name, value)
	}
	if arr.NDim() != ft.NDim() {
		return fmt.Errorf("特征 (%s, %s) 的数组必须是%d维，实际为%d维", ft, name, ft.NDim(), arr.NDim())
	}
	if err := arr.Validate(); err != nil {
		return fmt.Errorf("特征 (%s, %s): %w", ft, name, err)
	}
	if ft.IsDiscrete() && !arr.IsIntegral() {
		return fmt.Errorf("特征 (%s, %s) 属于离散类型，数组值必须为整数", ft, name)
	}
	return nil
}

// Get 获取特征值
func (p *Patch) Get(ft FeatureType, name string) (any, bool) {
	switch ft {
	case BBoxType:
		return p.BBox, p.BBox != nil
	case TimestampsType:
		return p.Timestamps, len(p.Timestamps) > 0
	}
	v, ok := p.features[ft][name]
	return v, ok
}

// Array 获取数组特征
func (p *Patch) Array(ft FeatureType, name string) (*Array, error) {
	v, ok := p.Get(ft, name)
	if !ok {
		return nil, fmt.Errorf("特征 %s 不存在", Feature{Type: ft, Name: name})
	}
	arr, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("特征 %s 不是数组: %T", Feature{Type: ft, Name: name}, v)
	}
	return arr, nil
}

// Has 特征是否存在
func (p *Patch) Has(ft FeatureType, name string) bool {
	_, ok := p.Get(ft, name)
	return ok
}

// Delete 删除特征
// BBox不允许删除；删除TIMESTAMPS会将其清空
func (p *Patch) Delete(ft FeatureType, name string) error {
	switch ft {
	case BBoxType:
		return fmt.Errorf("Patch的BBox不能被删除")
	case TimestampsType:
		p.Timestamps = nil
		return nil
	}
	if _, ok := p.features[ft][name]; !ok {
		return fmt.Errorf("特征 %s 不存在", Feature{Type: ft, Name: name})
	}
	delete(p.features[ft], name)
	if len(p.features[ft]) == 0 {
		delete(p.features, ft)
	}
	return nil
}

// ResetFeatureType 清空某个特征类型下的所有特征
func (p *Patch) ResetFeatureType(ft FeatureType) error {
	switch ft {
	case BBoxType:
		return fmt.Errorf("Patch的BBox不能被删除")
	case TimestampsType:
		p.Timestamps = nil
		return nil
	}
	delete(p.features, ft)
	return nil
}

// Names 返回某个特征类型下的所有特征名（排序后）
func (p *Patch) Names(ft FeatureType) []string {
	names := make([]string, 0, len(p.features[ft]))
	for name := range p.features[ft] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Features 返回所有非空特征，顺序固定
func (p *Patch) Features() []Feature {
	result := make([]Feature, 0)
	for _, ft := range FeatureTypes() {
		if !ft.hasNames() {
			if p.Has(ft, "") {
				result = append(result, Feature{Type: ft})
			}
			continue
		}
		for _, name := range p.Names(ft) {
			result = append(result, Feature{Type: ft, Name: name})
		}
	}
	return result
}

// Copy 复制Patch
// deep=false 时只复制映射结构，特征值（大数组）在两个Patch之间共享；
// deep=true 时特征值也会被深拷贝。BBox和Timestamps总是被复制。
func (p *Patch) Copy(deep bool) *Patch {
	cp := New(nil, p.Timestamps)
	if p.BBox != nil {
		bbox := *p.BBox
		cp.BBox = &bbox
	}
	for ft, values := range p.features {
		m := make(map[string]any, len(values))
		for name, v := range values {
			if deep {
				v = cloneValue(v)
			}
			m[name] = v
		}
		cp.features[ft] = m
	}
	return cp
}

// Equal 按值比较两个Patch
func (p *Patch) Equal(other *Patch) bool {
	if p == nil || other == nil {
		return p == other
	}
	if !p.BBox.Equal(other.BBox) || !timestampsEqual(p.Timestamps, other.Timestamps) {
		return false
	}
	if len(p.nonEmpty()) != len(other.nonEmpty()) {
		return false
	}
	for ft, values := range p.features {
		if len(values) != len(other.features[ft]) {
			return false
		}
		for name, v := range values {
			ov, ok := other.features[ft][name]
			if !ok || !valueEqual(v, ov) {
				return false
			}
		}
	}
	return true
}

func (p *Patch) String() string {
	return fmt.Sprintf("Patch(bbox=%s, timestamps=%d, features=%v)", p.BBox, len(p.Timestamps), p.Features())
}

func (p *Patch) ensure() {
	if p.features == nil {
		p.features = make(map[FeatureType]map[string]any)
	}
}

func (p *Patch) nonEmpty() []FeatureType {
	types := make([]FeatureType, 0, len(p.features))
	for ft, values := range p.features {
		if len(values) > 0 {
			types = append(types, ft)
		}
	}
	return types
}

func valueEqual(a, b any) bool {
	if aa, ok := a.(*Array); ok {
		if bb, ok := b.(*Array); ok {
			return aa.Equal(bb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func timestampsEqual(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// cloneValue 深拷贝单个特征值
func cloneValue(v any) any {
	switch val := v.(type) {
	case *Array:
		return val.Clone()
	case Cloner:
		return val.Clone()
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	case []float64:
		return append([]float64(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []string:
		return append([]string(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	}
	return v
}

// FeatureEqual 比较两个Patch中的同一个特征，两边都不存在时视为相等
func FeatureEqual(a, b *Patch, f Feature) bool {
	av, aok := a.Get(f.Type, f.Name)
	bv, bok := b.Get(f.Type, f.Name)
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	switch f.Type {
	case BBoxType:
		return a.BBox.Equal(b.BBox)
	case TimestampsType:
		return timestampsEqual(a.Timestamps, b.Timestamps)
	}
	return valueEqual(av, bv)
}
