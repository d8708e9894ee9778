package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed  = "processed"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusUnreadable = "unreadable"
)

const (
	FileStatusPlanned = "planned"
	FileStatusMoved   = "moved"
	FileStatusPresent = "present"
	FileStatusFailed  = "failed"
)

const (
	ErrCodeExifUnreadable    = "exif_unreadable"
	ErrCodeScanFailed        = "scan_failed"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeMoveFailed        = "move_failed"
	ErrCodeCrossDevice       = "cross_device"
	ErrCodeCopyBackFailed    = "copy_back_failed"
	ErrCodeJournalFailed     = "journal_failed"
	ErrCodeExportFailed      = "export_failed"
	ErrCodeCancelled         = "cancelled"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
	BurstsRoot string `json:"bursts_root"`
	DryRun     bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

// ReportSummary 的前半部分由 run 层直接填写（记录数、聚类结果），
// 后半部分由 Finalize 从 items 计算。
type ReportSummary struct {
	Photos    int `json:"photos"`
	Rejected  int `json:"rejected"`
	Bursts    int `json:"bursts"`
	Grouped   int `json:"grouped"`
	Ungrouped int `json:"ungrouped"`

	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Unreadable int `json:"unreadable"`
}

// ItemResult 对应一个 burst；Burst=="" 表示合成条目（不可读文件、run 级失败）。
type ItemResult struct {
	Burst  string `json:"burst"`
	Anchor string `json:"anchor"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Files []FileResult `json:"files"`
}

// FileResult 是 burst 内单个成员的结果；ErrorCode 记录该成员自己的失败原因（可能与 item 的首个原因不同）。
type FileResult struct {
	Src        string `json:"src"`
	Dst        string `json:"dst"`
	Status     string `json:"status"`
	CopiedBack bool   `json:"copied_back"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 burst 字典序；burst=="" 的条目排在最后
// 3) summary 中与条目相关的计数由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Burst
		b := r.Items[j].Burst
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	s := r.Summary
	s.Processed, s.Skipped, s.Failed, s.Unreadable = 0, 0, 0, 0
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusUnreadable:
			s.Unreadable++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
