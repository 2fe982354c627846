// Package eodatatest 提供测试用的Patch生成工具
package eodatatest

import (
	"math/rand"
	"time"

	"github.com/LENAX/eoflow/pkg/core/eodata"
)

// DefaultBBox 测试默认空间范围
var DefaultBBox = eodata.BBox{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100, CRS: "EPSG:32633"}

// Config 生成配置
type Config struct {
	NumTimestamps   int
	Start           time.Time
	RasterHeight    int
	RasterWidth     int
	Depth           int
	MaxIntegerValue int
}

// DefaultConfig 默认生成配置（小尺寸，便于测试）
func DefaultConfig() Config {
	return Config{
		NumTimestamps:   5,
		Start:           time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		RasterHeight:    4,
		RasterWidth:     6,
		Depth:           2,
		MaxIntegerValue: 256,
	}
}

// GeneratePatch 生成带随机数据的Patch
// 相同的seed总是生成相同的数据
func GeneratePatch(features []eodata.Feature, seed int64, cfg Config) *eodata.Patch {
	rng := rand.New(rand.NewSource(seed))

	timestamps := make([]time.Time, cfg.NumTimestamps)
	for i := range timestamps {
		timestamps[i] = cfg.Start.AddDate(0, 0, 7*i)
	}
	bbox := DefaultBBox
	patch := eodata.New(&bbox, timestamps)

	for _, f := range features {
		if !f.Type.IsArray() {
			continue
		}
		shape := featureShape(f.Type, cfg)
		arr, _ := eodata.NewArray(shape, nil)
		for i := range arr.Data {
			if f.Type.IsDiscrete() {
				arr.Data[i] = float64(rng.Intn(cfg.MaxIntegerValue))
			} else {
				arr.Data[i] = rng.NormFloat64()
			}
		}
		_ = patch.Set(f.Type, f.Name, arr)
	}
	return patch
}

func featureShape(ft eodata.FeatureType, cfg Config) []int {
	if ft.IsSpatial() {
		if ft.IsTemporal() {
			return []int{cfg.NumTimestamps, cfg.RasterHeight, cfg.RasterWidth, cfg.Depth}
		}
		return []int{cfg.RasterHeight, cfg.RasterWidth, cfg.Depth}
	}
	if ft.IsTemporal() {
		return []int{cfg.NumTimestamps, cfg.Depth}
	}
	return []int{cfg.Depth}
}
