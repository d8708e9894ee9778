package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/burstsort/internal/domain"
)

// Options 控制扫描范围与扩展名过滤。
type Options struct {
	// Extensions 为空时使用 DefaultExtensions。
	Extensions []string
	// CaseInsensitive=false 时扩展名按原样大小写匹配（".JPG" 不匹配 ".jpg"）。
	CaseInsensitive bool
	Recursive       bool
	// ExcludeDirs 均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string
}

// DefaultExtensions 是未配置时的扩展名过滤（大小写敏感）。
var DefaultExtensions = []string{".JPG"}

// ScanPhotos 扫描 root 下的照片文件。
//
// 规则（硬约束）：
// - 永久排除：burstsRoot（若位于 root 之下）
// - Recursive=false 时只看 root 的直接子项
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanPhotos(root, burstsRoot string, opts Options) ([]domain.PhotoFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, burstsRoot, opts.ExcludeDirs)
	match := extMatcher(opts.Extensions, opts.CaseInsensitive)

	files := make([]domain.PhotoFile, 0, 256)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		// 跳过隐式文件（包括 fsx 的临时文件 ".<name>.tmp-*"）。
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !match(filepath.Ext(name)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, domain.PhotoFile{
			AbsPath: path,
			RelPath: rel,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func extMatcher(exts []string, caseInsensitive bool) func(string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if caseInsensitive {
			e = strings.ToLower(e)
		}
		set[e] = struct{}{}
	}
	return func(ext string) bool {
		if caseInsensitive {
			ext = strings.ToLower(ext)
		}
		_, ok := set[ext]
		return ok
	}
}

func buildExcluded(root, burstsRoot string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	// bursts_root 只有位于 root 之下时才需要排除；位于 root 之外（或是 root 的上级）时排除它会吞掉整棵树。
	if strings.TrimSpace(burstsRoot) != "" {
		if br := absFrom(root, burstsRoot); br != root && isUnder(br, root) {
			excluded = append(excluded, br)
		}
	}
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		excluded = append(excluded, absFrom(root, x))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func absFrom(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(root, p))
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
