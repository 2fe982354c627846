// Package eodata 提供工作流运行期间在任务之间传递的数据容器（Patch）
package eodata

import (
	"fmt"
	"strings"
)

// FeatureType 特征类型（对外导出）
// 每个特征类型对应Patch中的一个分类，分类内按特征名存放值
type FeatureType string

const (
	DataType           FeatureType = "data"            // t x n x m x d 浮点数据（如波段）
	MaskType           FeatureType = "mask"            // t x n x m x d 离散掩码
	ScalarType         FeatureType = "scalar"          // t x s 浮点数据
	LabelType          FeatureType = "label"           // t x s 离散标签
	VectorType         FeatureType = "vector"          // 随时间变化的矢量数据
	DataTimelessType   FeatureType = "data_timeless"   // n x m x d 浮点数据（如高程）
	MaskTimelessType   FeatureType = "mask_timeless"   // n x m x d 离散掩码
	ScalarTimelessType FeatureType = "scalar_timeless" // s 浮点数据
	LabelTimelessType  FeatureType = "label_timeless"  // s 离散标签
	VectorTimelessType FeatureType = "vector_timeless" // 与时间无关的矢量数据
	MetaInfoType       FeatureType = "meta_info"       // 附加信息字典
	BBoxType           FeatureType = "bbox"            // 空间范围
	TimestampsType     FeatureType = "timestamps"      // 时间戳列表
)

// FeatureTypes 按固定顺序返回所有特征类型（对外导出）
func FeatureTypes() []FeatureType {
	return []FeatureType{
		DataType, MaskType, ScalarType, LabelType, VectorType,
		DataTimelessType, MaskTimelessType, ScalarTimelessType, LabelTimelessType, VectorTimelessType,
		MetaInfoType, BBoxType, TimestampsType,
	}
}

// ParseFeatureType 解析特征类型名称（大小写不敏感）
func ParseFeatureType(name string) (FeatureType, error) {
	ft := FeatureType(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range FeatureTypes() {
		if known == ft {
			return ft, nil
		}
	}
	return "", fmt.Errorf("未知的特征类型: %q", name)
}

// IsSpatial 是否包含空间维度
func (ft FeatureType) IsSpatial() bool {
	switch ft {
	case DataType, MaskType, VectorType, DataTimelessType, MaskTimelessType, VectorTimelessType:
		return true
	}
	return false
}

// IsTemporal 是否包含时间维度
func (ft FeatureType) IsTemporal() bool {
	switch ft {
	case DataType, MaskType, ScalarType, LabelType, VectorType, TimestampsType:
		return true
	}
	return false
}

// IsTimeless 不含时间维度且不是元数据
func (ft FeatureType) IsTimeless() bool {
	return !ft.IsTemporal() && !ft.IsMeta()
}

// IsDiscrete 值是否必须为整数
func (ft FeatureType) IsDiscrete() bool {
	switch ft {
	case MaskType, MaskTimelessType, LabelType, LabelTimelessType:
		return true
	}
	return false
}

// IsMeta 是否为元数据类型
func (ft FeatureType) IsMeta() bool {
	return ft == MetaInfoType || ft == BBoxType || ft == TimestampsType
}

// IsVector 是否为矢量类型
func (ft FeatureType) IsVector() bool {
	return ft == VectorType || ft == VectorTimelessType
}

// IsArray 是否存放多维数组
func (ft FeatureType) IsArray() bool {
	return ft.NDim() > 0
}

// IsImage 是否存放图像（空间数组）
func (ft FeatureType) IsImage() bool {
	return ft.IsArray() && ft.IsSpatial()
}

// NDim 数组类型对应的维度数，非数组类型返回0
func (ft FeatureType) NDim() int {
	switch ft {
	case DataType, MaskType:
		return 4
	case ScalarType, LabelType:
		return 2
	case DataTimelessType, MaskTimelessType:
		return 3
	case ScalarTimelessType, LabelTimelessType:
		return 1
	}
	return 0
}

// hasNames 是否按特征名存放值（BBOX和TIMESTAMPS是整体值）
func (ft FeatureType) hasNames() bool {
	return ft != BBoxType && ft != TimestampsType
}

// Feature 特征标识：类型 + 名称
type Feature struct {
	Type FeatureType
	Name string
}

func (f Feature) String() string {
	if f.Name == "" {
		return string(f.Type)
	}
	return fmt.Sprintf("(%s, %s)", f.Type, f.Name)
}

// forbiddenChars 特征名中不允许出现的字符
const forbiddenChars = "./\\|;:\n\t"

// ValidateFeatureName 校验特征名合法性
func ValidateFeatureName(ft FeatureType, name string) error {
	if name == "" {
		return fmt.Errorf("特征名不能为空: %s", ft)
	}
	if i := strings.IndexAny(name, forbiddenChars); i >= 0 {
		return fmt.Errorf("特征 (%s, %s) 的名称包含非法字符 %q", ft, name, name[i])
	}
	return nil
}
