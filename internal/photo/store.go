// Package photo 维护一次运行内的照片记录集合。
package photo

import (
	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/normalize"
)

// Filter 决定一条记录是否进入集合。拒绝是筛选结果，不是错误。
type Filter func(domain.PhotoRecord) bool

// AcceptAll 接受所有记录。
func AcceptAll(domain.PhotoRecord) bool { return true }

// RequireGeo 只接受经纬度都存在且不同时为 0 的记录。
func RequireGeo(r domain.PhotoRecord) bool {
	if !r.HasLatLon() {
		return false
	}
	return *r.Latitude != 0 || *r.Longitude != 0
}

// Store 是按加入顺序保存的记录集合。
//
// 约束：
// - 每次运行构建一次，由聚类引擎消费一次
// - Records 返回副本；排序必须在副本上进行，原始顺序保留用于诊断与测试
// - 非并发安全：并行解码的结果必须先汇聚到单一 goroutine 再 Add
type Store struct {
	accept   Filter
	records  []domain.PhotoRecord
	rejected int
}

func NewStore(accept Filter) *Store {
	if accept == nil {
		accept = AcceptAll
	}
	return &Store{
		accept:  accept,
		records: make([]domain.PhotoRecord, 0, 256),
	}
}

// Add 把一条解码结果规范化后加入集合；被筛掉时返回 false。
func (s *Store) Add(path string, size int64, meta domain.RawMeta) bool {
	rec := domain.PhotoRecord{
		Path:       path,
		Size:       size,
		CaptureRaw: normalize.CleanRaw(meta.CaptureTimeRaw),
		Capture:    normalize.CaptureTime(meta.CaptureTimeRaw, meta.SubSecond),
		Latitude:   copyFloat(meta.Latitude),
		Longitude:  copyFloat(meta.Longitude),
		Altitude:   copyFloat(meta.Altitude),
	}
	if !s.accept(rec) {
		s.rejected++
		return false
	}
	s.records = append(s.records, rec)
	return true
}

// Records 返回按加入顺序的记录副本。
func (s *Store) Records() []domain.PhotoRecord {
	return append([]domain.PhotoRecord(nil), s.records...)
}

func (s *Store) Len() int { return len(s.records) }

func (s *Store) Rejected() int { return s.rejected }

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
