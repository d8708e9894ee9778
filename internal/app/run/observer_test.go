package run

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
	totals     []int
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, burst string, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, burst)
	o.totals = append(o.totals, total)
}

func (o *recordObserver) OnProgress(done, total, ok, fail, skip int, current string, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}

func TestExecuteWithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	root := t.TempDir()
	writePhotos(t, root, "a.JPG", "b.JPG", "c.JPG", "z.JPG")

	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), testConfig(root, false), stubDecoder{metas: fixtureMetas()}, obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}

	wantPhases := []string{"scan", "extract", "cluster", "materialize"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	if len(obs.items) != 1 || obs.items[0] != burstDir || obs.totals[0] != 1 {
		t.Fatalf("条目事件不符合预期：items=%v totals=%v", obs.items, obs.totals)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	root := t.TempDir()
	writePhotos(t, root, "a.JPG", "b.JPG", "c.JPG", "z.JPG", "broken.JPG")

	cfg := testConfig(root, false)
	dec := stubDecoder{metas: fixtureMetas()}

	a := Execute(context.Background(), cfg, dec)
	b := ExecuteWithObserver(context.Background(), cfg, dec, nil)

	// 时间字段与 run_id 每次运行都不同；对比时归零。
	a.StartedAt, a.FinishedAt, a.RunID = time.Time{}, time.Time{}, ""
	b.StartedAt, b.FinishedAt, b.RunID = time.Time{}, time.Time{}, ""

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
