package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	DefaultGapSeconds   = 1.5
	DefaultMinBurstSize = 10
	DefaultConcurrency  = 4
	// DefaultBurstsDir 是未配置 bursts_root 时，相对照片目录的输出目录。
	DefaultBurstsDir = "bursts"
)

// FileNames 是配置文件的候选名（按顺序取第一个存在的）。
var FileNames = []string{"burstsort.yaml", "burstsort.yml", "burstsort.json"}

// DefaultExtensions 是扩展名过滤的默认值（大小写敏感）。
var DefaultExtensions = []string{".JPG"}

// CLIArgs 包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply: true。
type CLIArgs struct {
	Path string

	BurstsRoot string

	Gap    float64
	GapSet bool

	MinSize    int
	MinSizeSet bool

	Extensions []string

	Recursive    bool
	RecursiveSet bool

	RequireGeo    bool
	RequireGeoSet bool

	GeoJSON    bool
	GeoJSONSet bool

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 burstsort.{yaml,yml,json} 的解析结构。
// 指针字段用于区分“未写”与“写了零值”。
type FileConfig struct {
	Path               string   `mapstructure:"path"`
	BurstsRoot         string   `mapstructure:"bursts_root"`
	GapSeconds         *float64 `mapstructure:"gap_threshold_seconds"`
	MinBurstSize       *int     `mapstructure:"min_burst_size"`
	Extensions         []string `mapstructure:"extensions"`
	ExtCaseInsensitive bool     `mapstructure:"ext_case_insensitive"`
	Recursive          *bool    `mapstructure:"recursive"`
	RequireGeo         *bool    `mapstructure:"require_geo"`
	Apply              *bool    `mapstructure:"apply"`
	Concurrency        int      `mapstructure:"concurrency"`
	ExcludeDirs        []string `mapstructure:"exclude_dirs"`
	GeoJSON            *bool    `mapstructure:"geojson"`
	Journal            *bool    `mapstructure:"journal"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path       string `yaml:"path"`
	BurstsRoot string `yaml:"bursts_root"`

	Apply bool `yaml:"apply"`

	GapSeconds   float64 `yaml:"gap_threshold_seconds"`
	MinBurstSize int     `yaml:"min_burst_size"`

	Extensions         []string `yaml:"extensions"`
	ExtCaseInsensitive bool     `yaml:"ext_case_insensitive"`
	Recursive          bool     `yaml:"recursive"`
	ExcludeDirs        []string `yaml:"exclude_dirs"`

	RequireGeo  bool `yaml:"require_geo"`
	Concurrency int  `yaml:"concurrency"`
	GeoJSON     bool `yaml:"geojson"`
	Journal     bool `yaml:"journal"`

	// Source 是实际读取的配置文件（未读取则为空）。
	Source string `yaml:"source,omitempty"`
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/burstsort.{yaml,yml,json}（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/burstsort.{yaml,yml,json}（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：CLI > 配置文件 > 默认值；未暴露到 CLI 的字段只由配置文件控制。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath, found := findConfig(absPath)

		var fc FileConfig
		if found {
			fc, err = readFileConfig(cfgPath)
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
			}
		} else {
			cfgPath = ""
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath, found := findConfig(cwdAbs)
	if !found {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileNames[0]), Err: os.ErrNotExist}
	}
	fc, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	// 配置文件中的相对 path 以配置文件所在目录为基准。
	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		p := cfgPath
		if p == "" {
			p = absPath
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}

	// path 是否存在由扫描阶段判定（scan_failed），这里只做形态校验。

	// bursts_root：CLI > config > 默认 <path>/bursts；相对路径以 path 为基准。
	burstsRoot := filepath.Join(absPath, DefaultBurstsDir)
	if strings.TrimSpace(cli.BurstsRoot) != "" {
		burstsRoot = absCleanFrom(absPath, cli.BurstsRoot)
	} else if strings.TrimSpace(fc.BurstsRoot) != "" {
		burstsRoot = absCleanFrom(absPath, fc.BurstsRoot)
	}
	if burstsRoot == absPath {
		return invalid(fmt.Errorf("bursts_root 不能与 path 相同：%q", burstsRoot))
	}
	// bursts_root 在扫描时整棵排除：若它包含 path，扫描结果必然为空。
	if isUnder(absPath, burstsRoot) {
		return invalid(fmt.Errorf("bursts_root 不能是 path 的上级目录：%q 包含 %q", burstsRoot, absPath))
	}

	gap := DefaultGapSeconds
	if cli.GapSet {
		gap = cli.Gap
	} else if fc.GapSeconds != nil {
		gap = *fc.GapSeconds
	}
	if math.IsNaN(gap) || math.IsInf(gap, 0) || gap <= 0 {
		return invalid(fmt.Errorf("gap_threshold_seconds 必须是正数，实际是 %v", gap))
	}

	minSize := DefaultMinBurstSize
	if cli.MinSizeSet {
		minSize = cli.MinSize
	} else if fc.MinBurstSize != nil {
		minSize = *fc.MinBurstSize
	}
	if minSize < 0 {
		return invalid(fmt.Errorf("min_burst_size 不能为负数，实际是 %d", minSize))
	}

	exts := DefaultExtensions
	if len(cli.Extensions) > 0 {
		exts = cli.Extensions
	} else if len(fc.Extensions) > 0 {
		exts = fc.Extensions
	}
	exts, err := normalizeExtensions(exts)
	if err != nil {
		return invalid(err)
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围建议 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	excludeDirs := make([]string, 0, len(fc.ExcludeDirs))
	for _, x := range fc.ExcludeDirs {
		if strings.TrimSpace(x) == "" {
			continue
		}
		excludeDirs = append(excludeDirs, absCleanFrom(absPath, x))
	}

	return EffectiveConfig{
		Path:               absPath,
		BurstsRoot:         burstsRoot,
		Apply:              pickBool(cli.ApplySet, cli.Apply, fc.Apply, false),
		GapSeconds:         gap,
		MinBurstSize:       minSize,
		Extensions:         exts,
		ExtCaseInsensitive: fc.ExtCaseInsensitive,
		Recursive:          pickBool(cli.RecursiveSet, cli.Recursive, fc.Recursive, false),
		ExcludeDirs:        excludeDirs,
		RequireGeo:         pickBool(cli.RequireGeoSet, cli.RequireGeo, fc.RequireGeo, false),
		Concurrency:        concurrency,
		GeoJSON:            pickBool(cli.GeoJSONSet, cli.GeoJSON, fc.GeoJSON, false),
		Journal:            pickBool(false, false, fc.Journal, true),
		Source:             cfgPath,
	}, nil
}

// pickBool：CLI（显式指定）> config > 默认。
func pickBool(cliSet, cliVal bool, fileVal *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func normalizeExtensions(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ContainsAny(e, `/\`) || e == "." {
			return nil, fmt.Errorf("非法扩展名：%q", e)
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, errors.New("extensions 不能为空")
	}
	return out, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// findConfig 在 dir 下按 FileNames 顺序查找第一个存在的配置文件。
func findConfig(dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// readFileConfig 用 viper 读取并解析配置文件（格式由扩展名决定）。
func readFileConfig(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(base, string(filepath.Separator))+string(filepath.Separator))
}
