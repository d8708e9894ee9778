package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/burstsort/internal/domain"
)

// 支持的拍摄时间布局：
// - "2006-01-02 15:04:05"：已规范化的文本
// - "2006:01:02 15:04:05"：EXIF 原生写法（DateTimeOriginal）
var captureLayouts = []string{
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
}

// CaptureTime 把原始拍摄时间（可选附带毫秒字符串）转换为带标签的时间。
//
// 规则：
// - 时间文本没有时区，按 UTC 墙钟解释
// - 任何解析失败都返回 Unknown，不报错（大量照片本来就没有可靠的 EXIF 时间）
// - subSec 视为毫秒：/1000 后叠加；无法转换时跳过叠加，整秒结果不受影响
func CaptureTime(raw, subSec string) domain.CaptureTime {
	raw = CleanRaw(raw)
	if raw == "" {
		return domain.UnknownTime()
	}

	var (
		t   time.Time
		err error
	)
	for _, layout := range captureLayouts {
		t, err = time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			break
		}
	}
	if err != nil {
		return domain.UnknownTime()
	}

	sec := float64(t.Unix())
	if ms, ok := parseMillis(subSec); ok {
		sec += ms / 1000.0
	}
	return domain.KnownAt(sec)
}

// CleanRaw 去掉厂商写入的首尾空白与 NUL 填充。
func CleanRaw(raw string) string {
	return strings.TrimSpace(strings.TrimRight(raw, "\x00"))
}

func parseMillis(s string) (float64, bool) {
	s = CleanRaw(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
