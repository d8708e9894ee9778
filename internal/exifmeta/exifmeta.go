// Package exifmeta 把 EXIF 解码限制在一个包内部；核心流程只依赖 Decoder 接口与 domain.RawMeta。
package exifmeta

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/John-Robertt/burstsort/internal/domain"
)

// Decoder 从照片文件中提取原始元数据。
//
// 约束：
// - 只做读取，不修改文件
// - 缺少某个 tag 不是错误（对应字段留空）；只有文件不可读/EXIF 无法解析才返回错误
// - 实现必须并发安全（会被解码 worker pool 并发调用）
type Decoder interface {
	Decode(path string) (domain.RawMeta, error)
}

// Error 是解码阶段的结构化错误。
type Error struct {
	Stage string // "open" | "decode"
	Path  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("exif %s 失败：%q：%v", e.Stage, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StageOf 从 error 中提取失败阶段；若不是 *Error 则返回空串。
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// GoExif 基于 github.com/rwcarlsen/goexif 的 Decoder 实现（无状态）。
type GoExif struct{}

var _ Decoder = GoExif{}

func (GoExif) Decode(path string) (domain.RawMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawMeta{}, &Error{Stage: "open", Path: path, Err: err}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		if x == nil || exif.IsCriticalError(err) {
			return domain.RawMeta{}, &Error{Stage: "decode", Path: path, Err: err}
		}
		// 子 IFD（GPS/Interop）损坏：主 IFD 与 Exif IFD 仍可用。
		slog.Default().With("module", "exifmeta").Debug("EXIF 子目录损坏，忽略", "file", path, "error", err)
	}
	return fromExif(x), nil
}

func fromExif(x *exif.Exif) domain.RawMeta {
	var m domain.RawMeta

	m.CaptureTimeRaw = stringTag(x, exif.DateTimeOriginal)
	m.SubSecond = stringTag(x, exif.SubSecTimeOriginal)

	if lat, lon, err := x.LatLong(); err == nil && finite(lat) && finite(lon) {
		m.Latitude = &lat
		m.Longitude = &lon
	}

	if tag, err := x.Get(exif.GPSAltitude); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			alt := float64(num) / float64(den)
			// GPSAltitudeRef=1 表示海平面以下。
			if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if v, err := ref.Int(0); err == nil && v == 1 {
					alt = -alt
				}
			}
			m.Altitude = &alt
		}
	}
	return m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimRight(s, "\x00")
}
