package geojson

import (
	"encoding/json"
	"math"

	"github.com/John-Robertt/burstsort/internal/domain"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

// Encode 把记录转成 GeoJSON FeatureCollection。
//
// 规则：
// - 记录顺序由调用方决定（通常已按拍摄时间升序）
// - 缺少经纬度或经纬度不是有限值的记录直接跳过
// - properties 固定为空对象；features 为空时输出 []，不输出 null
func Encode(records []domain.PhotoRecord) ([]byte, error) {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Features: make([]feature, 0, len(records)),
	}
	for _, r := range records {
		if !r.HasLatLon() || !finite(*r.Latitude) || !finite(*r.Longitude) {
			continue
		}
		fc.Features = append(fc.Features, feature{
			Type: "Feature",
			Geometry: point{
				Type:        "Point",
				Coordinates: []float64{*r.Longitude, *r.Latitude},
			},
			Properties: map[string]any{},
		})
	}

	b, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
