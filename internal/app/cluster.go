package app

import (
	"fmt"
	"math"
	"sort"

	"github.com/John-Robertt/burstsort/internal/domain"
)

const (
	// DefaultGapSeconds 是相邻两张照片仍算同一连拍的最大间隔（不含）。
	DefaultGapSeconds = 1.5
	// DefaultMinBurstSize：成员数必须严格大于该值才算连拍。
	DefaultMinBurstSize = 10
)

// Policy 是聚类参数。
type Policy struct {
	GapSeconds   float64
	MinBurstSize int
}

func DefaultPolicy() Policy {
	return Policy{GapSeconds: DefaultGapSeconds, MinBurstSize: DefaultMinBurstSize}
}

func (p Policy) Validate() error {
	if math.IsNaN(p.GapSeconds) || math.IsInf(p.GapSeconds, 0) || p.GapSeconds <= 0 {
		return fmt.Errorf("gap_threshold_seconds 必须是正数，实际是 %v", p.GapSeconds)
	}
	if p.MinBurstSize < 0 {
		return fmt.Errorf("min_burst_size 不能为负数，实际是 %d", p.MinBurstSize)
	}
	return nil
}

// Clustering 是一次聚类的完整输出。
//
// 不变量：Groups 的成员数之和 + len(Ungrouped) == 输入记录数。
type Clustering struct {
	Groups    []domain.BurstGroup
	Ungrouped []domain.PhotoRecord
}

// Grouped 返回所有 burst 成员的总数。
func (c Clustering) Grouped() int {
	n := 0
	for _, g := range c.Groups {
		n += g.Len()
	}
	return n
}

// SortByCapture 返回按拍摄时间排序的新切片（不修改输入）。
//
// 排序策略（固定）：
// - Unknown 排在所有 Known 之前，彼此保持输入顺序
// - Known 按秒升序；相同时间保持输入顺序
func SortByCapture(records []domain.PhotoRecord) []domain.PhotoRecord {
	out := append([]domain.PhotoRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Capture.Seconds()
		b, bok := out[j].Capture.Seconds()
		switch {
		case !aok:
			return bok
		case !bok:
			return false
		default:
			return a < b
		}
	})
	return out
}

// ClusterBursts 对已排序的记录做单遍扫描，切分出连拍。
//
// 相邻两条记录 (prev, cur) 连通，当且仅当两者时间都已知且 cur-prev < GapSeconds。
// 连续连通的记录构成候选；候选成员数 > MinBurstSize 才成为 BurstGroup，
// 否则其成员全部记为 ungrouped。Unknown 记录永远是边界，不参与数值比较。
func ClusterBursts(sorted []domain.PhotoRecord, p Policy) Clustering {
	out := Clustering{
		Groups:    make([]domain.BurstGroup, 0, 8),
		Ungrouped: make([]domain.PhotoRecord, 0, len(sorted)),
	}

	// [start, i) 是当前候选；start<0 表示没有打开的候选。
	start := -1
	closeRun := func(end int) {
		run := sorted[start:end]
		if len(run) > p.MinBurstSize {
			out.Groups = append(out.Groups, domain.BurstGroup{
				Members: append([]domain.PhotoRecord(nil), run...),
			})
		} else {
			out.Ungrouped = append(out.Ungrouped, run...)
		}
		start = -1
	}

	for i := range sorted {
		if i > 0 && withinGap(sorted[i-1], sorted[i], p.GapSeconds) {
			if start < 0 {
				start = i - 1
			}
			continue
		}
		if start >= 0 {
			closeRun(i)
		}
		// sorted[i] 不与前一条连通：它要么开启新的候选，要么单独落入 ungrouped。
		if i+1 >= len(sorted) || !withinGap(sorted[i], sorted[i+1], p.GapSeconds) {
			out.Ungrouped = append(out.Ungrouped, sorted[i])
		}
	}
	if start >= 0 {
		closeRun(len(sorted))
	}
	return out
}

// DetectBursts = SortByCapture + ClusterBursts。
func DetectBursts(records []domain.PhotoRecord, p Policy) Clustering {
	return ClusterBursts(SortByCapture(records), p)
}

func withinGap(prev, cur domain.PhotoRecord, gapSeconds float64) bool {
	gap, ok := cur.Capture.Since(prev.Capture)
	if !ok {
		return false
	}
	return gap < gapSeconds
}
