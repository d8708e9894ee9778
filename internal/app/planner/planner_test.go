package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/infra/fsx"
)

func TestDirName_ReplacesColons(t *testing.T) {
	if got := DirName("2015-06-11 14:22:05"); got != "2015-06-11 14-22-05" {
		t.Fatalf("期望 %q，实际 %q", "2015-06-11 14-22-05", got)
	}
	if got := DirName("2015:06:11 14:22:05"); got != "2015-06-11 14-22-05" {
		t.Fatalf("EXIF 原生写法也应得到同一目录名，实际 %q", got)
	}
}

func TestReadBurstState_MissingDir(t *testing.T) {
	root := t.TempDir()

	st, err := ReadBurstState(root, "2015-06-11 14-22-05")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if st.Exists || len(st.ExistingNames) != 0 {
		t.Fatalf("期望空状态：%+v", st)
	}
	if st.Dir != filepath.Join(root, "2015-06-11 14-22-05") {
		t.Fatalf("dir 不符合预期：%q", st.Dir)
	}
}

func TestReadBurstState_DirIsFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "2015-06-11 14-22-05"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	_, err := ReadBurstState(root, "2015-06-11 14-22-05")
	if !fsx.IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际 %v", err)
	}
}

func TestReadBurstState_ExistingFiles(t *testing.T) {
	root := t.TempDir()
	name := "2015-06-11 14-22-05"
	write(t, filepath.Join(root, name, "0_IMG_1.JPG"))

	st, err := ReadBurstState(root, name)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !st.Exists {
		t.Fatalf("期望 Exists=true")
	}
	if _, ok := st.ExistingNames["0_IMG_1.JPG"]; !ok {
		t.Fatalf("缺少已有文件：%+v", st.ExistingNames)
	}
}

func TestPlanBurst_IndexPrefixAndCopyBack(t *testing.T) {
	root := t.TempDir()
	g := domain.BurstGroup{Members: []domain.PhotoRecord{
		{Path: "/src/IMG_1.JPG", CaptureRaw: "2015-06-11 14:22:05", Capture: domain.KnownAt(1)},
		{Path: "/src/IMG_2.JPG", CaptureRaw: "2015-06-11 14:22:05", Capture: domain.KnownAt(1.5)},
		{Path: "/src/IMG_3.JPG", CaptureRaw: "2015-06-11 14:22:06", Capture: domain.KnownAt(2)},
	}}

	st, err := ReadBurstState(root, DirName(g.Anchor().CaptureRaw))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	plan, err := PlanBurst(g, st)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if plan.Name != "2015-06-11 14-22-05" || plan.Anchor != "2015-06-11 14:22:05" {
		t.Fatalf("plan 头信息不符合预期：%+v", plan)
	}
	want := []string{"0_IMG_1.JPG", "1_IMG_2.JPG", "2_IMG_3.JPG"}
	if len(plan.Moves) != len(want) {
		t.Fatalf("期望 %d 条 move，实际 %d", len(want), len(plan.Moves))
	}
	for i, mv := range plan.Moves {
		if mv.DstAbs != filepath.Join(root, plan.Name, want[i]) {
			t.Fatalf("move[%d] dst=%q", i, mv.DstAbs)
		}
		if mv.CopyBack != (i == 0) {
			t.Fatalf("只有第一个成员需要 copy-back：move[%d]=%+v", i, mv)
		}
	}
}

func TestPlanBurst_InvalidGroup(t *testing.T) {
	st := domain.BurstDirState{Dir: "/bursts/x", ExistingNames: map[string]struct{}{}}

	if _, err := PlanBurst(domain.BurstGroup{}, st); err == nil {
		t.Fatalf("空 burst 必须报错")
	}

	g := domain.BurstGroup{Members: []domain.PhotoRecord{{Path: "/src/IMG_1.JPG"}}}
	if _, err := PlanBurst(g, st); err == nil {
		t.Fatalf("锚点缺少原始时间必须报错")
	}
}

func TestExists(t *testing.T) {
	st := domain.BurstDirState{Dir: "/b/x", Exists: true, ExistingNames: map[string]struct{}{"0_A.JPG": {}}}
	if !Exists(st, domain.MovePlan{DstAbs: "/b/x/0_A.JPG"}) {
		t.Fatalf("期望已存在")
	}
	if Exists(st, domain.MovePlan{DstAbs: "/b/x/1_B.JPG"}) {
		t.Fatalf("不期望已存在")
	}

	// 目录不存在时，目录内自然没有任何目标文件。
	st.Exists = false
	if Exists(st, domain.MovePlan{DstAbs: "/b/x/0_A.JPG"}) {
		t.Fatalf("目录不存在时不应判定为已存在")
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
