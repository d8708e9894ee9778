package run

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/burstsort/internal/app/planner"
	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/infra/fsx"
)

// 可在测试中替换，用于模拟跨盘、回拷失败等场景。
var (
	renameFile = fsx.Rename
	copyFile   = fsx.CopyFile
)

type moveKind int

const (
	moveTodo     moveKind = iota // 目标不存在，需要移动
	movePresent                  // 已就位（之前的运行已落地）
	moveConflict                 // 目标被无关文件占用
)

// materialize 执行（或在 dry-run 下只规划）一个 burst。
//
// 规则：
// - 目标已存在：源已不在 => present；成员 0 且源与目标大小一致（回拷副本）=> present；否则 target_conflict
// - 单个成员失败不影响其他成员；绝不覆盖已有文件
// - 成员 0 移动成功后回拷到原路径
func materialize(eff config.EffectiveConfig, p domain.BurstPlan, st domain.BurstDirState) domain.ItemResult {
	item := domain.ItemResult{
		Burst:  p.Name,
		Anchor: p.Anchor,
		Status: domain.StatusProcessed,
		Files:  buildFileResults(eff, p),
	}

	if eff.Apply {
		if err := ensureDir(p.Dir); err != nil {
			code := domain.ErrCodeIOFailed
			if fsx.IsPathTypeConflict(err) {
				code = domain.ErrCodeTargetConflict
			}
			failItem(&item, code, err.Error())
			return item
		}
	}

	pending := 0
	for i, mv := range p.Moves {
		kind, err := classifyMove(st, mv)
		if err != nil {
			failFile(&item, i, domain.ErrCodeIOFailed, err.Error())
			continue
		}
		switch kind {
		case movePresent:
			item.Files[i].Status = domain.FileStatusPresent
			continue
		case moveConflict:
			failFile(&item, i, domain.ErrCodeTargetConflict, fmt.Sprintf("目标已存在且不是本 burst 的落地结果：%q", mv.DstAbs))
			continue
		}

		pending++
		if !eff.Apply {
			continue
		}

		if err := renameFile(mv.SrcAbs, mv.DstAbs); err != nil {
			code := domain.ErrCodeMoveFailed
			if fsx.IsCrossDevice(err) {
				code = domain.ErrCodeCrossDevice
			}
			failFile(&item, i, code, err.Error())
			continue
		}
		item.Files[i].Status = domain.FileStatusMoved

		if mv.CopyBack {
			if err := copyFile(mv.DstAbs, mv.SrcAbs); err != nil {
				// 移动已生效，只记录回拷失败。
				item.Files[i].ErrorCode = domain.ErrCodeCopyBackFailed
				item.Files[i].Error = err.Error()
				markFailed(&item, domain.ErrCodeCopyBackFailed, fmt.Sprintf("回拷 %q 失败：%v", mv.SrcAbs, err))
				continue
			}
			item.Files[i].CopiedBack = true
		}
	}

	if item.Status != domain.StatusFailed && pending == 0 {
		item.Status = domain.StatusSkipped
	}
	return item
}

// classifyMove 判定单个成员的目标现状。st 是本 burst 落地前读取的目录状态。
func classifyMove(st domain.BurstDirState, mv domain.MovePlan) (moveKind, error) {
	if !planner.Exists(st, mv) {
		return moveTodo, nil
	}

	src, err := os.Stat(mv.SrcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return movePresent, nil
		}
		return moveTodo, err
	}
	if !mv.CopyBack {
		return moveConflict, nil
	}

	dst, err := os.Stat(mv.DstAbs)
	if err != nil {
		return moveTodo, err
	}
	if dst.Mode().IsRegular() && dst.Size() == src.Size() {
		return movePresent, nil
	}
	return moveConflict, nil
}

func buildFileResults(eff config.EffectiveConfig, p domain.BurstPlan) []domain.FileResult {
	out := make([]domain.FileResult, 0, len(p.Moves))
	for _, mv := range p.Moves {
		out = append(out, domain.FileResult{
			Src:    relOrAbs(eff.Path, mv.SrcAbs),
			Dst:    relOrAbs(eff.BurstsRoot, mv.DstAbs),
			Status: domain.FileStatusPlanned,
		})
	}
	return out
}

// relOrAbs 尽量输出相对 base 的路径；失败则输出原始 abs（至少可追溯）。
func relOrAbs(base, abs string) string {
	if rel, err := filepath.Rel(base, abs); err == nil {
		return rel
	}
	return abs
}

func failItem(item *domain.ItemResult, code, msg string) {
	markFailed(item, code, msg)
	for i := range item.Files {
		item.Files[i].Status = domain.FileStatusFailed
		item.Files[i].ErrorCode = code
	}
}

func failFile(item *domain.ItemResult, i int, code, msg string) {
	item.Files[i].Status = domain.FileStatusFailed
	item.Files[i].ErrorCode = code
	item.Files[i].Error = msg
	markFailed(item, code, msg)
}

// markFailed 把 item 标为失败；error_code/error_msg 只保留第一个失败原因。
func markFailed(item *domain.ItemResult, code, msg string) {
	item.Status = domain.StatusFailed
	if item.ErrorCode == "" {
		item.ErrorCode = code
		item.ErrorMsg = msg
	}
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
