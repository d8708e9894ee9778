package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/exifmeta"
	"github.com/John-Robertt/burstsort/internal/infra/journal"
)

type fakeDecoder map[string]domain.RawMeta

func (d fakeDecoder) Decode(path string) (domain.RawMeta, error) {
	m, ok := d[filepath.Base(path)]
	if !ok {
		return domain.RawMeta{}, &exifmeta.Error{Stage: "decode", Path: path, Err: errors.New("no exif")}
	}
	return m, nil
}

// withPhotos 在临时目录准备 3 张连拍 + 1 张孤立照片，并替换解码器。
func withPhotos(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	metas := fakeDecoder{
		"a.JPG": {CaptureTimeRaw: "2015-06-11 14:22:05", SubSecond: "000"},
		"b.JPG": {CaptureTimeRaw: "2015-06-11 14:22:05", SubSecond: "400"},
		"c.JPG": {CaptureTimeRaw: "2015-06-11 14:22:06", SubSecond: "100"},
		"z.JPG": {CaptureTimeRaw: "2015-06-11 18:00:00"},
	}
	for name := range metas {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0o644); err != nil {
			t.Fatalf("写入照片失败：%v", err)
		}
	}

	prev := newDecoder
	newDecoder = func() exifmeta.Decoder { return metas }
	t.Cleanup(func() { newDecoder = prev })
	return root
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := withPhotos(t)

	code, stdout, stderr := runCLI(t, "run", root, "--min-size", "2")
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s\nstdout=%s", code, stderr, stdout)
	}

	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if !rr.DryRun || rr.Summary.Bursts != 1 || rr.Summary.Grouped != 3 {
		t.Fatalf("report 不符合预期：%+v", rr.Summary)
	}
	if strings.Contains(stdout, "配置（生效）") || strings.Contains(stdout, "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout)
	}
	if !strings.Contains(stderr, "完成：bursts=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "bursts")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 bursts/，但 Stat err=%v", err)
	}
}

func TestCLI_Apply_WritesReportFile(t *testing.T) {
	root := withPhotos(t)

	code, stdout, stderr := runCLI(t, "run", root, "--min-size=2", "--apply")
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s\nstdout=%s", code, stderr, stdout)
	}

	b, err := os.ReadFile(filepath.Join(root, "bursts", ".burstsort", ReportFileName))
	if err != nil {
		t.Fatalf("apply 应写出 report.json：%v", err)
	}
	var rr domain.RunReport
	if err := json.Unmarshal(b, &rr); err != nil {
		t.Fatalf("report.json 无法解析：%v", err)
	}
	if rr.DryRun || rr.RunID == "" || rr.Summary.Processed != 1 {
		t.Fatalf("report.json 内容不符合预期：%+v", rr)
	}
	if _, err := os.Stat(filepath.Join(root, "bursts", "2015-06-11 14-22-05", "2_c.JPG")); err != nil {
		t.Fatalf("c 应已落地：%v", err)
	}
}

func TestCLI_ConfigNotFound_ExitOneWithReport(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	code, stdout, _ := runCLI(t, "run")
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigNotFound {
		t.Fatalf("期望 config_not_found：%+v", rr.Items)
	}
}

func TestCLI_UsageErrors_ExitTwo(t *testing.T) {
	for _, args := range [][]string{
		{"run", "--no-such-flag"},
		{"run", "a", "b"},
		{"run", "--gap", "abc"},
		{"nope"},
	} {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Fatalf("args=%q 期望退出码 2，实际 %d", args, code)
		}
	}
}

func TestCLI_ConfigPrintsEffectiveYAML(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "burstsort.yaml"), []byte("min_burst_size: 5\n"), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}

	code, stdout, stderr := runCLI(t, "config", root, "--gap", "0.8")
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	for _, want := range []string{
		"gap_threshold_seconds: 0.8",
		"min_burst_size: 5",
		"bursts_root: " + filepath.Join(root, "bursts"),
		"journal: true",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("config 输出缺少 %q：\n%s", want, stdout)
		}
	}
}

func TestCLI_HistoryByBurstAndRun(t *testing.T) {
	root := withPhotos(t)

	// 还没有任何 apply：没有 journal，且查询不能创建它。
	if code, _, _ := runCLI(t, "history", root, "--burst", "2015-06-11 14-22-05"); code != 1 {
		t.Fatalf("无 journal 时期望退出码 1，实际 %d", code)
	}
	if _, err := os.Stat(journal.Path(filepath.Join(root, "bursts"))); !os.IsNotExist(err) {
		t.Fatalf("history 不应创建 journal：%v", err)
	}

	code, stdout, stderr := runCLI(t, "run", root, "--min-size=2", "--apply")
	if code != 0 {
		t.Fatalf("apply 期望退出码 0，实际 %d：%s", code, stderr)
	}
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v", err)
	}

	code, stdout, stderr = runCLI(t, "history", root, "--burst", "2015-06-11 14-22-05")
	if code != 0 {
		t.Fatalf("history 期望退出码 0，实际 %d：%s", code, stderr)
	}
	var entries []journal.Entry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("history 输出不是 JSON 数组：%v\n%s", err, stdout)
	}
	if len(entries) != 3 || entries[0].Src != "a.JPG" || !entries[0].CopiedBack || entries[0].RunID != rr.RunID {
		t.Fatalf("history 内容不符合预期：%+v", entries)
	}

	code, stdout, _ = runCLI(t, "history", root, "--run", rr.RunID)
	if code != 0 || !strings.Contains(stdout, "2_c.JPG") {
		t.Fatalf("按 run_id 查询失败：code=%d\n%s", code, stdout)
	}

	// --burst 与 --run 必须且只能给一个。
	for _, args := range [][]string{
		{"history", root},
		{"history", root, "--burst", "x", "--run", "y"},
	} {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Fatalf("args=%q 期望退出码 2，实际 %d", args, code)
		}
	}
}
