package eodata

import (
	"encoding/json"
	"fmt"
	"time"
)

// patchJSON Patch的序列化结构
type patchJSON struct {
	BBox       *BBox                                       `json:"bbox,omitempty"`
	Timestamps []time.Time                                 `json:"timestamps,omitempty"`
	Features   map[FeatureType]map[string]json.RawMessage `json:"features,omitempty"`
}

// MarshalJSON 序列化Patch
func (p *Patch) MarshalJSON() ([]byte, error) {
	out := patchJSON{
		BBox:       p.BBox,
		Timestamps: p.Timestamps,
		Features:   make(map[FeatureType]map[string]json.RawMessage, len(p.features)),
	}
	for ft, values := range p.features {
		m := make(map[string]json.RawMessage, len(values))
		for name, v := range values {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("序列化特征 %s 失败: %w", Feature{Type: ft, Name: name}, err)
			}
			m[name] = raw
		}
		out.Features[ft] = m
	}
	return json.Marshal(out)
}

// UnmarshalJSON 反序列化Patch，数组类型的特征会被还原为*Array
func (p *Patch) UnmarshalJSON(data []byte) error {
	var in patchJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	decoded := New(in.BBox, in.Timestamps)
	for ft, values := range in.Features {
		if _, err := ParseFeatureType(string(ft)); err != nil {
			return err
		}
		for name, raw := range values {
			var v any
			if ft.IsArray() {
				arr := &Array{}
				if err := json.Unmarshal(raw, arr); err != nil {
					return fmt.Errorf("反序列化特征 %s 失败: %w", Feature{Type: ft, Name: name}, err)
				}
				v = arr
			} else if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("反序列化特征 %s 失败: %w", Feature{Type: ft, Name: name}, err)
			}
			if err := decoded.Set(ft, name, v); err != nil {
				return err
			}
		}
	}
	*p = *decoded
	return nil
}
