package eodata

import (
	"encoding/json"
	"fmt"
	"math"
)

// Array 多维数组（对外导出）
// 数据按行优先顺序平铺存放在Data中
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray 创建数组并校验形状与数据长度一致
func NewArray(shape []int, data []float64) (*Array, error) {
	size, err := shapeSize(shape)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = make([]float64, size)
	}
	arr := &Array{Shape: append([]int(nil), shape...), Data: data}
	if err := arr.Validate(); err != nil {
		return nil, err
	}
	return arr, nil
}

// Validate 校验数据长度与形状一致
func (a *Array) Validate() error {
	size, err := shapeSize(a.Shape)
	if err != nil {
		return err
	}
	if len(a.Data) != size {
		return fmt.Errorf("数组数据长度%d与形状%v不匹配（期望%d）", len(a.Data), a.Shape, size)
	}
	return nil
}

func shapeSize(shape []int) (int, error) {
	size := 1
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("数组第%d维长度不能为负数: %d", i, dim)
		}
		size *= dim
	}
	return size, nil
}

// Full 创建填充固定值的数组
func Full(shape []int, value float64) (*Array, error) {
	arr, err := NewArray(shape, nil)
	if err != nil {
		return nil, err
	}
	for i := range arr.Data {
		arr.Data[i] = value
	}
	return arr, nil
}

// NDim 维度数
func (a *Array) NDim() int {
	return len(a.Shape)
}

// Size 元素个数
func (a *Array) Size() int {
	return len(a.Data)
}

// IsIntegral 所有元素是否都是整数
func (a *Array) IsIntegral() bool {
	for _, v := range a.Data {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

// Clone 深拷贝
func (a *Array) Clone() *Array {
	if a == nil {
		return nil
	}
	return &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

// Equal 形状与数据都相同，NaN 与 NaN 视为相同
func (a *Array) Equal(other *Array) bool {
	if a == nil || other == nil {
		return a == other
	}
	if len(a.Shape) != len(other.Shape) || len(a.Data) != len(other.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != other.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		x, y := a.Data[i], other.Data[i]
		if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
			return false
		}
	}
	return true
}

// arrayJSON 数组的序列化结构
// 非有限值编码为字符串 "NaN"、"+Inf"、"-Inf"
type arrayJSON struct {
	Shape []int       `json:"shape"`
	Data  []jsonFloat `json:"data"`
}

type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = jsonFloat(math.NaN())
		case "+Inf", "Inf":
			*f = jsonFloat(math.Inf(1))
		case "-Inf":
			*f = jsonFloat(math.Inf(-1))
		default:
			return fmt.Errorf("无效的数组元素: %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// MarshalJSON 序列化数组
func (a Array) MarshalJSON() ([]byte, error) {
	out := arrayJSON{Shape: a.Shape, Data: make([]jsonFloat, len(a.Data))}
	if out.Shape == nil {
		out.Shape = []int{}
	}
	for i, v := range a.Data {
		out.Data[i] = jsonFloat(v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON 反序列化数组并校验形状
func (a *Array) UnmarshalJSON(data []byte) error {
	var in arrayJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	decoded := Array{Shape: in.Shape, Data: make([]float64, len(in.Data))}
	for i, v := range in.Data {
		decoded.Data[i] = float64(v)
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*a = decoded
	return nil
}

// BBox 空间范围（对外导出）
type BBox struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
	CRS  string  `json:"crs" yaml:"crs"`
}

// NewBBox 创建空间范围，要求min不大于max
func NewBBox(minX, minY, maxX, maxY float64, crs string) (*BBox, error) {
	if minX > maxX || minY > maxY {
		return nil, fmt.Errorf("无效的空间范围: (%v, %v, %v, %v)", minX, minY, maxX, maxY)
	}
	return &BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, CRS: crs}, nil
}

// Equal 两个空间范围是否一致（nil只与nil相等）
func (b *BBox) Equal(other *BBox) bool {
	if b == nil || other == nil {
		return b == other
	}
	return *b == *other
}

func (b *BBox) String() string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("BBox((%g, %g), (%g, %g), crs=%s)", b.MinX, b.MinY, b.MaxX, b.MaxY, b.CRS)
}
