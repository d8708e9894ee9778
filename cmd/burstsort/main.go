package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/burstsort/internal/app/run"
	"github.com/John-Robertt/burstsort/internal/config"
	"github.com/John-Robertt/burstsort/internal/domain"
	"github.com/John-Robertt/burstsort/internal/exifmeta"
	"github.com/John-Robertt/burstsort/internal/infra/fsx"
	"github.com/John-Robertt/burstsort/internal/infra/journal"
)

// ReportFileName 是 apply 模式写入 <burstsRoot>/.burstsort/ 的报告文件名。
const ReportFileName = "report.json"

// newDecoder 可在测试中替换（避免依赖真实 EXIF 样本）。
var newDecoder = func() exifmeta.Decoder { return exifmeta.GoExif{} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// execute 运行 CLI 并返回退出码：0 成功；1 存在失败/不可读条目或配置错误；2 用法错误。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := 0
	root := newRootCommand(stdout, stderr, &code)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return code
}

// runFlags 收集 run/config 共享的 CLI 参数；是否显式指定由 cobra 的 Changed 判断。
type runFlags struct {
	burstsRoot string
	gap        float64
	minSize    int
	exts       []string
	recursive  bool
	requireGeo bool
	geoJSON    bool
	apply      bool
}

func newRootCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "burstsort",
		Short:         "把连拍照片按拍摄时间归入独立目录",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(stderr, verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志到 stderr")

	rootCmd.AddCommand(
		runCommand(stdout, stderr, code),
		configCommand(stdout, stderr, code),
		historyCommand(stdout, stderr, code),
	)
	return rootCmd
}

func runCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "运行流程（默认 dry-run；--apply 才移动文件）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runMain(cmd, args, rf, stdout, stderr)
			return nil
		},
	}
	setupFlags(cmd, &rf)
	return cmd
}

func configCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "config [path]",
		Short: "打印合并后的生效配置（YAML）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
				*code = 1
				return nil
			}
			eff, err := config.LoadEffective(cwd, cliArgs(cmd, args, rf))
			if err != nil {
				fmt.Fprintf(stderr, "%v\n", err)
				*code = 1
				return nil
			}
			b, err := yaml.Marshal(eff)
			if err != nil {
				fmt.Fprintf(stderr, "序列化配置失败：%v\n", err)
				*code = 1
				return nil
			}
			_, _ = stdout.Write(b)
			return nil
		},
	}
	setupFlags(cmd, &rf)
	return cmd
}

func setupFlags(cmd *cobra.Command, rf *runFlags) {
	f := cmd.Flags()
	f.StringVar(&rf.burstsRoot, "bursts-root", "", "burst 目录的根（默认 <path>/bursts；相对路径以 path 为基准）")
	f.Float64Var(&rf.gap, "gap", config.DefaultGapSeconds, "相邻照片的最大间隔（秒，严格小于）")
	f.IntVar(&rf.minSize, "min-size", config.DefaultMinBurstSize, "成组门槛：成员数必须大于该值")
	f.StringArrayVar(&rf.exts, "ext", nil, "扩展名过滤（可重复；默认 .JPG，大小写敏感）")
	f.BoolVar(&rf.recursive, "recursive", false, "递归扫描子目录")
	f.BoolVar(&rf.requireGeo, "require-geo", false, "只处理带经纬度的照片")
	f.BoolVar(&rf.geoJSON, "geojson", false, "apply 时导出 <bursts_root>/photos.geojson")
	f.BoolVar(&rf.apply, "apply", false, "执行移动（默认 dry-run）；支持 --apply=false 覆盖配置中的 apply: true")
}

func cliArgs(cmd *cobra.Command, args []string, rf runFlags) config.CLIArgs {
	changed := cmd.Flags().Changed
	cli := config.CLIArgs{
		BurstsRoot:    rf.burstsRoot,
		Gap:           rf.gap,
		GapSet:        changed("gap"),
		MinSize:       rf.minSize,
		MinSizeSet:    changed("min-size"),
		Extensions:    rf.exts,
		Recursive:     rf.recursive,
		RecursiveSet:  changed("recursive"),
		RequireGeo:    rf.requireGeo,
		RequireGeoSet: changed("require-geo"),
		GeoJSON:       rf.geoJSON,
		GeoJSONSet:    changed("geojson"),
		Apply:         rf.apply,
		ApplySet:      changed("apply"),
	}
	if len(args) > 0 {
		cli.Path = args[0]
	}
	return cli
}

func runMain(cmd *cobra.Command, args []string, rf runFlags, stdout, stderr io.Writer) int {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	cli := cliArgs(cmd, args, rf)
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		slog.Default().With("module", "cli").Error("加载配置失败", "error", err)
		emitReport(stdout, stderr, reportForConfigError(cwdAbs, cli, err))
		return 1
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(cmd.Context(), eff, newDecoder(), obs)

	// apply：写入 <bursts_root>/.burstsort/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.BurstsRoot, rr); err != nil {
			fmt.Fprintf(stderr, "写入 report.json 失败：%v\n", err)
			emitReport(stdout, stderr, rr)
			return 1
		}
	}

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 && rr.Summary.Unreadable == 0 {
		return 0
	}
	return 1
}

func setupLogger(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：bursts=%d processed=%d skipped=%d failed=%d unreadable=%d",
		rr.Summary.Bursts, rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unreadable,
	)

	if isTTY(stdout) {
		fmt.Fprintln(stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusUnreadable {
				continue
			}
			key := it.Burst
			if key == "" && len(it.Files) > 0 {
				// 不可读/合成条目：用首个输入文件路径做定位锚点。
				key = it.Files[0].Src
			}
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summary)
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
			Files:     []domain.FileResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func reportPath(burstsRoot string) string {
	return filepath.Join(burstsRoot, journal.StateDirName, ReportFileName)
}

func writeReportFile(burstsRoot string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	p := reportPath(burstsRoot)
	return fsx.WriteFileAtomicReplace(filepath.Dir(p), filepath.Base(p), b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", reportPath(eff.BurstsRoot))
	}
	fmt.Fprintf(w, "bursts: %s\n", eff.BurstsRoot)
}
