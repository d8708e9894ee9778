package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/infra/fsx"
)

// DirName 把锚点的原始时间文本转成目录名：所有 ':' 替换为 '-'。
// 例如 "2015-06-11 14:22:05" => "2015-06-11 14-22-05"。
func DirName(anchorRaw string) string {
	return strings.ReplaceAll(anchorRaw, ":", "-")
}

// MemberName 返回第 i 个成员在 burst 目录内的文件名：<i>_<原文件名>。
func MemberName(i int, srcAbs string) string {
	return fmt.Sprintf("%d_%s", i, filepath.Base(srcAbs))
}

// ReadBurstState 读取 <root>/<name>/ 的现状（只做 ReadDir，不读文件内容）。
// 若目录不存在，返回空状态且不报错。
func ReadBurstState(root, name string) (domain.BurstDirState, error) {
	dir := filepath.Join(root, name)
	st := domain.BurstDirState{
		Dir:           dir,
		ExistingNames: map[string]struct{}{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		if fi, serr := os.Stat(dir); serr == nil && !fi.IsDir() {
			return domain.BurstDirState{}, &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
		}
		return domain.BurstDirState{}, err
	}

	st.Exists = true
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanBurst 基于 BurstGroup + 目录现状生成确定性的执行计划（不做任何写入/移动）。
//
// 目标文件名固定为 <i>_<原文件名>，不做冲突改名：
// 目标已存在时由执行层判定为“已就位”或冲突，绝不覆盖。
func PlanBurst(g domain.BurstGroup, st domain.BurstDirState) (domain.BurstPlan, error) {
	if g.Len() == 0 {
		return domain.BurstPlan{}, errors.New("burst 没有成员")
	}
	anchor := g.Anchor()
	if strings.TrimSpace(anchor.CaptureRaw) == "" {
		return domain.BurstPlan{}, fmt.Errorf("锚点 %q 缺少原始拍摄时间", anchor.Path)
	}

	moves := make([]domain.MovePlan, 0, g.Len())
	for i, m := range g.Members {
		moves = append(moves, domain.MovePlan{
			SrcAbs:   m.Path,
			DstAbs:   filepath.Join(st.Dir, MemberName(i, m.Path)),
			CopyBack: i == 0,
		})
	}

	return domain.BurstPlan{
		Name:   filepath.Base(st.Dir),
		Anchor: anchor.CaptureRaw,
		Dir:    st.Dir,
		Moves:  moves,
	}, nil
}

// Exists 判断计划中的目标文件是否已在目录内。
func Exists(st domain.BurstDirState, mv domain.MovePlan) bool {
	if !st.Exists {
		return false
	}
	_, ok := st.ExistingNames[filepath.Base(mv.DstAbs)]
	return ok
}
