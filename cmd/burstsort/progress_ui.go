package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/John-Robertt/burstsort/internal/app/run"
	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无 burst 完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total   int
	done    int
	ok      int
	fail    int
	skip    int
	current string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不创建目录/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] burstsort run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	if eff.Source != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.Source)
	}
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  gap: %gs  min_burst_size: %d\n", eff.GapSeconds, eff.MinBurstSize)
	fmt.Fprintf(p.w, "  extensions: %s (case_insensitive=%s)\n", formatStringListJSON(eff.Extensions), onOff(eff.ExtCaseInsensitive))
	fmt.Fprintf(p.w, "  recursive: %s  require_geo: %s\n", onOff(eff.Recursive), onOff(eff.RequireGeo))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 bursts_root\n", formatStringListJSON(eff.ExcludeDirs))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  bursts: %s\n", eff.BurstsRoot)
	if eff.Apply {
		fmt.Fprintf(p.w, "  report: %s\n", reportPath(eff.BurstsRoot))
		fmt.Fprintf(p.w, "  journal: %s\n", onOff(eff.Journal))
		fmt.Fprintf(p.w, "  geojson: %s\n", onOff(eff.GeoJSON))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "extract":
		fmt.Fprintf(p.w, "解码: photos=%d rejected=%d unreadable=%d workers=%d (%s)\n",
			intField(fields, "photos"),
			intField(fields, "rejected"),
			intField(fields, "unreadable"),
			intField(fields, "workers"),
			formatShortDuration(dur),
		)
	case "cluster":
		p.total = intField(fields, "bursts")
		fmt.Fprintf(p.w, "聚类: bursts=%d grouped=%d ungrouped=%d (%s)\n\n",
			p.total, intField(fields, "grouped"), intField(fields, "ungrouped"), formatShortDuration(dur),
		)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "materialize":
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "落地: bursts=%d (%s)\n", intField(fields, "bursts"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, burst string, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total
	p.current = burst

	status := strings.ToUpper(res.Status)
	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		status = "OK"
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	case domain.StatusSkipped:
		p.skip++
		status = "SKIP"
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, burst, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		fmt.Fprintf(p.w, "[%d/%d] %s %s (已落地，无需移动) (%s)\n",
			idx, total, burst, status, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			idx, total, burst, status, formatFileCounts(res.Files), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, skip int, current string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printProgressLocked(done, total, ok, fail, skip, current, elapsed)
}

func (p *progressUI) printProgressLocked(done, total, ok, fail, skip int, current string, elapsed time.Duration) {
	line := fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s",
		done, total, ok, fail, skip, formatElapsed(elapsed),
	)
	if current != "" {
		line += " last=" + current
	}
	fmt.Fprintln(p.w, line)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					p.printProgressLocked(p.done, p.total, p.ok, p.fail, p.skip, p.current, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// formatFileCounts 汇总一个 burst 内各文件状态，例如 "moved=3 present=1"。
func formatFileCounts(files []domain.FileResult) string {
	order := []string{domain.FileStatusPlanned, domain.FileStatusMoved, domain.FileStatusPresent, domain.FileStatusFailed}
	counts := make(map[string]int, len(order))
	copied := 0
	for _, f := range files {
		counts[f.Status]++
		if f.CopiedBack {
			copied++
		}
	}
	parts := make([]string, 0, len(order)+1)
	for _, s := range order {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
		}
	}
	if copied > 0 {
		parts = append(parts, fmt.Sprintf("copied_back=%d", copied))
	}
	if len(parts) == 0 {
		return "files=0"
	}
	return strings.Join(parts, " ")
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// truncate 按字符（rune）截断，避免把中文错误信息切成半个字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
