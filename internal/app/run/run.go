package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/burstsort/internal/app"
	"github.com/John-Robertt/burstsort/internal/app/planner"
	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/exifmeta"
	"github.com/John-Robertt/burstsort/internal/geojson"
	"github.com/John-Robertt/burstsort/internal/infra/fsx"
	"github.com/John-Robertt/burstsort/internal/infra/journal"
	"github.com/John-Robertt/burstsort/internal/photo"
	"github.com/John-Robertt/burstsort/internal/scan"
)

// GeoJSONFileName 是 <burstsRoot> 下导出的 GeoJSON 文件名。
const GeoJSONFileName = "photos.geojson"

func logger() *slog.Logger {
	return slog.Default().With("module", "run")
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, dec exifmeta.Decoder) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, dec, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 阶段：scan -> extract -> cluster -> materialize。
// 聚类只在全部解码完成后进行；ctx 取消时返回合成失败且不做任何移动。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, dec exifmeta.Decoder, obs Observer) domain.RunReport {
	started := time.Now().UTC()
	log := logger()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Path:       eff.Path,
		BurstsRoot: eff.BurstsRoot,
		DryRun:     !eff.Apply,
		StartedAt:  started,
		Items:      make([]domain.ItemResult, 0, 64),
	}
	log = log.With("run_id", rr.RunID)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	policy := app.Policy{GapSeconds: eff.GapSeconds, MinBurstSize: eff.MinBurstSize}
	if err := policy.Validate(); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, err.Error()))
		return finish()
	}
	if dec == nil {
		dec = exifmeta.GoExif{}
	}

	// scan
	scanStarted := time.Now()
	files, err := scan.ScanPhotos(eff.Path, eff.BurstsRoot, scan.Options{
		Extensions:      eff.Extensions,
		CaseInsensitive: eff.ExtCaseInsensitive,
		Recursive:       eff.Recursive,
		ExcludeDirs:     eff.ExcludeDirs,
	})
	if err != nil {
		log.Error("扫描失败", "path", eff.Path, "error", err)
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeScanFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(scanStarted))
	}

	// extract
	extractStarted := time.Now()
	results, err := extractAll(ctx, files, dec, eff.Concurrency)
	if err != nil {
		log.Warn("运行被取消", "error", err)
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCancelled, fmt.Sprintf("运行被取消：%v", err)))
		return finish()
	}

	filter := photo.AcceptAll
	if eff.RequireGeo {
		filter = photo.RequireGeo
	}
	store := photo.NewStore(filter)
	unreadable := 0
	for _, r := range results {
		f := files[r.idx]
		if r.err != nil {
			unreadable++
			log.Debug("无法读取 EXIF", "file", f.RelPath, "stage", exifmeta.StageOf(r.err), "error", r.err)
			rr.Items = append(rr.Items, unreadableItem(f, r.err))
			continue
		}
		store.Add(f.AbsPath, f.Size, r.meta)
	}
	if obs != nil {
		obs.OnPhaseDone("extract", map[string]any{
			"photos":     store.Len(),
			"rejected":   store.Rejected(),
			"unreadable": unreadable,
			"workers":    eff.Concurrency,
		}, time.Since(extractStarted))
	}

	// cluster
	clusterStarted := time.Now()
	records := store.Records()
	for _, rec := range records {
		if !rec.Capture.Known() {
			log.Debug("拍摄时间无法解析，按未知处理", "file", relOrAbs(eff.Path, rec.Path), "raw", rec.CaptureRaw)
		}
	}
	sorted := app.SortByCapture(records)
	clustering := app.ClusterBursts(sorted, policy)

	rr.Summary.Photos = store.Len()
	rr.Summary.Rejected = store.Rejected()
	rr.Summary.Bursts = len(clustering.Groups)
	rr.Summary.Grouped = clustering.Grouped()
	rr.Summary.Ungrouped = len(clustering.Ungrouped)
	if obs != nil {
		obs.OnPhaseDone("cluster", map[string]any{
			"bursts":    rr.Summary.Bursts,
			"grouped":   rr.Summary.Grouped,
			"ungrouped": rr.Summary.Ungrouped,
		}, time.Since(clusterStarted))
	}

	if eff.Apply && eff.GeoJSON {
		if err := exportGeoJSON(eff.BurstsRoot, sorted); err != nil {
			log.Warn("导出 GeoJSON 失败", "error", err)
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeExportFailed, fmt.Sprintf("导出 GeoJSON 失败：%v", err)))
		}
	}

	// materialize：按时间顺序逐个 burst 串行执行。
	var jr *journal.Store
	if eff.Apply && eff.Journal && len(clustering.Groups) > 0 {
		jr, err = journal.Open(eff.BurstsRoot)
		if err != nil {
			log.Warn("打开 journal 失败，本次不记录", "error", err)
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeJournalFailed, fmt.Sprintf("打开 journal 失败：%v", err)))
			jr = nil
		}
	}
	defer func() {
		if err := jr.Close(); err != nil {
			log.Warn("关闭 journal 失败", "error", err)
		}
	}()

	materializeStarted := time.Now()
	var journalErr error
	total := len(clustering.Groups)
	for i, g := range clustering.Groups {
		oneStarted := time.Now()
		res := materializeGroup(eff, g)
		rr.Items = append(rr.Items, res)

		if jr != nil && journalErr == nil {
			if err := jr.Record(rr.RunID, res); err != nil {
				journalErr = err
				log.Warn("写入 journal 失败", "burst", res.Burst, "error", err)
			}
		}
		if res.Status == domain.StatusFailed {
			log.Warn("burst 处理失败", "burst", res.Burst, "error_code", res.ErrorCode, "error", res.ErrorMsg)
		}
		if obs != nil {
			obs.OnItemDone(i+1, total, res.Burst, res, time.Since(oneStarted))
		}
	}
	if journalErr != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeJournalFailed, fmt.Sprintf("写入 journal 失败：%v", journalErr)))
	}
	if obs != nil {
		obs.OnPhaseDone("materialize", map[string]any{
			"bursts": total,
			"apply":  eff.Apply,
		}, time.Since(materializeStarted))
	}

	return finish()
}

func materializeGroup(eff config.EffectiveConfig, g domain.BurstGroup) domain.ItemResult {
	anchor := g.Anchor()
	name := planner.DirName(anchor.CaptureRaw)

	st, err := planner.ReadBurstState(eff.BurstsRoot, name)
	if err != nil {
		return failedGroupItem(eff, g, name, err)
	}
	p, err := planner.PlanBurst(g, st)
	if err != nil {
		return failedGroupItem(eff, g, name, err)
	}
	return materialize(eff, p, st)
}

func failedGroupItem(eff config.EffectiveConfig, g domain.BurstGroup, name string, err error) domain.ItemResult {
	code := domain.ErrCodeIOFailed
	if fsx.IsPathTypeConflict(err) {
		code = domain.ErrCodeTargetConflict
	}
	out := domain.ItemResult{
		Burst:     name,
		Anchor:    g.Anchor().CaptureRaw,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  fmt.Sprintf("规划 burst 失败：%v", err),
		Files:     make([]domain.FileResult, 0, g.Len()),
	}
	for _, m := range g.Members {
		out.Files = append(out.Files, domain.FileResult{
			Src:       relOrAbs(eff.Path, m.Path),
			Status:    domain.FileStatusFailed,
			ErrorCode: code,
		})
	}
	return out
}

func exportGeoJSON(burstsRoot string, sorted []domain.PhotoRecord) error {
	b, err := geojson.Encode(sorted)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(burstsRoot, GeoJSONFileName, b)
}

func unreadableItem(f domain.PhotoFile, err error) domain.ItemResult {
	msg := err.Error()
	var ee *exifmeta.Error
	if errors.As(err, &ee) && ee.Stage == "decode" {
		msg = fmt.Sprintf("无法解析 EXIF（文件可能不是 JPEG 或不含 EXIF）：%v", ee.Err)
	}
	return domain.ItemResult{
		Burst:     "",
		Status:    domain.StatusUnreadable,
		ErrorCode: domain.ErrCodeExifUnreadable,
		ErrorMsg:  msg,
		Files: []domain.FileResult{{
			Src:       f.RelPath,
			Status:    domain.FileStatusFailed,
			ErrorCode: domain.ErrCodeExifUnreadable,
		}},
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Burst:     "",
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Files:     []domain.FileResult{},
	}
}
