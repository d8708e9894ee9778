package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Summary:    ReportSummary{Photos: 30, Bursts: 2, Grouped: 24, Ungrouped: 6},
		Items: []ItemResult{
			{Burst: "2015-06-11 14-22-05", Status: StatusSkipped},
			{Burst: "", Status: StatusFailed}, // run 级合成项
			{Burst: "2015-06-11 09-00-00", Status: StatusProcessed},
			{Burst: "", Status: StatusUnreadable},
		},
	}

	r.Finalize()

	// burst=="" 必须排在最后；其内部顺序保持稳定（SliceStable）。
	got := []string{r.Items[0].Burst, r.Items[1].Burst, r.Items[2].Burst, r.Items[3].Burst}
	if got[0] != "2015-06-11 09-00-00" || got[1] != "2015-06-11 14-22-05" || got[2] != "" || got[3] != "" {
		t.Fatalf("items 排序不符合契约：%q", got)
	}
	if r.Items[2].Status != StatusFailed || r.Items[3].Status != StatusUnreadable {
		t.Fatalf("合成项顺序不稳定：%+v", r.Items[2:])
	}
	s := r.Summary
	if s.Processed != 1 || s.Skipped != 1 || s.Failed != 1 || s.Unreadable != 1 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	// run 层填写的计数不应被 Finalize 覆盖。
	if s.Photos != 30 || s.Bursts != 2 || s.Grouped != 24 || s.Ungrouped != 6 {
		t.Fatalf("summary 的记录计数被改写：%+v", s)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunReport_Finalize_Idempotent(t *testing.T) {
	r := RunReport{Items: []ItemResult{{Burst: "b", Status: StatusFailed}}}
	r.Finalize()
	r.Finalize()
	if r.Summary.Failed != 1 {
		t.Fatalf("重复 Finalize 不应累加计数：%+v", r.Summary)
	}
}

func TestCaptureTime_UnknownNeverComparable(t *testing.T) {
	k := KnownAt(10.5)
	u := UnknownTime()

	if _, ok := u.Seconds(); ok {
		t.Fatalf("未知时间不应返回数值")
	}
	if _, ok := k.Since(u); ok {
		t.Fatalf("与未知时间求差必须失败")
	}
	if _, ok := u.Since(k); ok {
		t.Fatalf("与未知时间求差必须失败")
	}
	gap, ok := KnownAt(12).Since(k)
	if !ok || gap != 1.5 {
		t.Fatalf("期望 gap=1.5，实际 gap=%v ok=%v", gap, ok)
	}
	if u.String() != "unknown" {
		t.Fatalf("String() 不符合预期：%q", u.String())
	}
}
