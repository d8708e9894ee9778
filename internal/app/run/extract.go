package run

import (
	"context"
	"sync"

	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/exifmeta"
)

type extraction struct {
	idx  int
	meta domain.RawMeta
	err  error
}

// extractAll 用 worker pool 并发解码 files，并按 files 的顺序返回结果。
//
// ctx 取消后停止派发新任务；已派发的任务会跑完（Decoder 不接收 ctx），
// 随后返回 ctx.Err()，调用方不得使用部分结果。
func extractAll(ctx context.Context, files []domain.PhotoFile, dec exifmeta.Decoder, workers int) ([]extraction, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	jobs := make(chan int)
	results := make(chan extraction, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				meta, err := dec.Decode(files[idx].AbsPath)
				results <- extraction{idx: idx, meta: meta, err: err}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for i := range files {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	// 单一汇聚点：结果落到各自下标，保证输出顺序与扫描顺序一致。
	out := make([]extraction, len(files))
	for r := range results {
		out[r.idx] = r
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
