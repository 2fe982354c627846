package eodata

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPatch(t *testing.T) *Patch {
	t.Helper()
	bbox, err := NewBBox(0, 0, 10, 10, "EPSG:4326")
	require.NoError(t, err)
	ts := []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)}
	return New(bbox, ts)
}

func mustArray(t *testing.T, shape []int, value float64) *Array {
	t.Helper()
	arr, err := Full(shape, value)
	require.NoError(t, err)
	return arr
}

func TestFeatureType_Predicates(t *testing.T) {
	assert.True(t, DataType.IsSpatial())
	assert.True(t, DataType.IsTemporal())
	assert.True(t, DataType.IsImage())
	assert.False(t, ScalarType.IsSpatial())
	assert.True(t, MaskTimelessType.IsTimeless())
	assert.True(t, LabelType.IsDiscrete())
	assert.True(t, BBoxType.IsMeta())
	assert.False(t, BBoxType.IsTimeless())
	assert.True(t, VectorType.IsVector())
	assert.False(t, VectorType.IsArray())
	assert.Equal(t, 4, MaskType.NDim())
	assert.Equal(t, 1, LabelTimelessType.NDim())
	assert.Equal(t, 0, MetaInfoType.NDim())

	ft, err := ParseFeatureType("DATA_TIMELESS")
	require.NoError(t, err)
	assert.Equal(t, DataTimelessType, ft)
	_, err = ParseFeatureType("bands")
	assert.Error(t, err)
}

func TestPatch_SetValidation(t *testing.T) {
	p := newTestPatch(t)

	// 维度不匹配
	err := p.Set(DataType, "BANDS", mustArray(t, []int{2, 3}, 1))
	assert.Error(t, err)

	// 离散类型要求整数
	err = p.Set(MaskType, "CLM", mustArray(t, []int{2, 2, 2, 1}, 0.5))
	assert.Error(t, err)

	// 非法字符
	err = p.Set(MetaInfoType, "a/b", 1)
	assert.Error(t, err)
	err = p.Set(MetaInfoType, "", 1)
	assert.Error(t, err)

	require.NoError(t, p.Set(DataType, "BANDS", mustArray(t, []int{2, 2, 2, 3}, 0.25)))
	require.NoError(t, p.Set(MetaInfoType, "resolution", 10))
	assert.True(t, p.Has(DataType, "BANDS"))
	assert.Equal(t, []Feature{
		{Type: DataType, Name: "BANDS"},
		{Type: MetaInfoType, Name: "resolution"},
		{Type: BBoxType},
		{Type: TimestampsType},
	}, p.Features())
}

func TestPatch_Delete(t *testing.T) {
	p := newTestPatch(t)
	require.NoError(t, p.Set(MetaInfoType, "k", "v"))

	require.NoError(t, p.Delete(MetaInfoType, "k"))
	assert.False(t, p.Has(MetaInfoType, "k"))
	assert.Error(t, p.Delete(MetaInfoType, "k"))

	assert.Error(t, p.Delete(BBoxType, ""))
	require.NoError(t, p.Delete(TimestampsType, ""))
	assert.Empty(t, p.Timestamps)
}

func TestPatch_CopyShallowSharesValues(t *testing.T) {
	p := newTestPatch(t)
	arr := mustArray(t, []int{3}, 1)
	require.NoError(t, p.Set(ScalarTimelessType, "x", arr))

	shallow := p.Copy(false)
	got, err := shallow.Array(ScalarTimelessType, "x")
	require.NoError(t, err)
	assert.Same(t, arr, got)

	// 结构独立：在副本上删除不影响原Patch
	require.NoError(t, shallow.Delete(ScalarTimelessType, "x"))
	assert.True(t, p.Has(ScalarTimelessType, "x"))
}

func TestPatch_CopyDeepDuplicatesValues(t *testing.T) {
	p := newTestPatch(t)
	require.NoError(t, p.Set(ScalarTimelessType, "x", mustArray(t, []int{3}, 1)))
	require.NoError(t, p.Set(MetaInfoType, "info", map[string]any{"tags": []any{"a"}}))

	deep := p.Copy(true)
	arr, err := deep.Array(ScalarTimelessType, "x")
	require.NoError(t, err)
	arr.Data[0] = 42

	orig, err := p.Array(ScalarTimelessType, "x")
	require.NoError(t, err)
	assert.Equal(t, 1.0, orig.Data[0])

	info, _ := deep.Get(MetaInfoType, "info")
	info.(map[string]any)["tags"] = nil
	origInfo, _ := p.Get(MetaInfoType, "info")
	assert.Equal(t, []any{"a"}, origInfo.(map[string]any)["tags"])

	deep.BBox.MaxX = 99
	assert.Equal(t, 10.0, p.BBox.MaxX)
}

func TestMerge_DisjointKeys(t *testing.T) {
	a := newTestPatch(t)
	b := newTestPatch(t)
	require.NoError(t, a.Set(DataType, "BANDS", mustArray(t, []int{2, 1, 1, 1}, 1)))
	require.NoError(t, b.Set(MaskType, "CLM", mustArray(t, []int{2, 1, 1, 1}, 0)))

	merged, err := Merge(a, b)
	require.NoError(t, err)
	assert.True(t, merged.Has(DataType, "BANDS"))
	assert.True(t, merged.Has(MaskType, "CLM"))
	assert.True(t, merged.BBox.Equal(a.BBox))
	assert.Len(t, merged.Timestamps, 2)

	// 输入不被修改
	assert.False(t, a.Has(MaskType, "CLM"))
	assert.False(t, b.Has(DataType, "BANDS"))
}

func TestMerge_CollisionLaterWins(t *testing.T) {
	a := newTestPatch(t)
	b := newTestPatch(t)
	require.NoError(t, a.Set(MetaInfoType, "stage", "a"))
	require.NoError(t, b.Set(MetaInfoType, "stage", "b"))

	merged, err := Merge(a, b)
	require.NoError(t, err)
	v, _ := merged.Get(MetaInfoType, "stage")
	assert.Equal(t, "b", v)
}

func TestMerge_IncompatibleMetadata(t *testing.T) {
	a := newTestPatch(t)
	b := newTestPatch(t)
	b.BBox = &BBox{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2, CRS: "EPSG:4326"}

	_, err := Merge(a, b)
	require.Error(t, err)
	var mergeErr *IncompatibleMergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, BBoxType, mergeErr.Field)
	assert.ErrorIs(t, err, ErrIncompatibleMerge)

	c := newTestPatch(t)
	c.Timestamps = c.Timestamps[:1]
	_, err = Merge(a, c)
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, TimestampsType, mergeErr.Field)
}

func TestMerge_UnsetMetadataAdopted(t *testing.T) {
	a := New(nil, nil)
	b := newTestPatch(t)

	merged, err := Merge(a, b)
	require.NoError(t, err)
	assert.True(t, merged.BBox.Equal(b.BBox))
	assert.Len(t, merged.Timestamps, 2)
}

func TestPatch_JSONRoundTrip(t *testing.T) {
	p := newTestPatch(t)
	require.NoError(t, p.Set(DataTimelessType, "DEM", mustArray(t, []int{1, 2, 1}, 3.5)))
	require.NoError(t, p.Set(MetaInfoType, "source", "s2"))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Patch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, p.Equal(&decoded))
}

func TestPatch_NonFiniteValues(t *testing.T) {
	p := newTestPatch(t)
	arr, err := NewArray([]int{1, 4, 1}, []float64{1, math.NaN(), math.Inf(1), math.Inf(-1)})
	require.NoError(t, err)
	require.NoError(t, p.Set(DataTimelessType, "DEM", arr))

	assert.True(t, p.Equal(p.Copy(true)))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Patch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, p.Equal(&decoded))

	got, err := decoded.Array(DataTimelessType, "DEM")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Data[1]))
	assert.True(t, math.IsInf(got.Data[2], 1))
	assert.True(t, math.IsInf(got.Data[3], -1))
}

func TestArray_ShapeMismatchRejected(t *testing.T) {
	var arr Array
	err := json.Unmarshal([]byte(`{"shape":[100,100,1],"data":[1]}`), &arr)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"shape":[2],"data":[1,"bogus"]}`), &arr)
	assert.Error(t, err)

	var p Patch
	err = json.Unmarshal([]byte(`{"features":{"data_timeless":{"DEM":{"shape":[100,100,1],"data":[1]}}}}`), &p)
	assert.Error(t, err)

	q := newTestPatch(t)
	err = q.Set(DataTimelessType, "DEM", &Array{Shape: []int{2, 2, 1}, Data: []float64{1}})
	assert.Error(t, err)
	assert.False(t, q.Has(DataTimelessType, "DEM"))
}
