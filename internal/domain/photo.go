package domain

// PhotoFile 描述一次扫描得到的照片文件（只做 stat，不读文件内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Size 在扫描时取得，后续不再刷新
type PhotoFile struct {
	AbsPath string
	RelPath string
	Size    int64
}

// RawMeta 是 EXIF 解码器交给核心的原始元数据（不做任何解释）。
//
// CaptureTimeRaw 与 SubSecond 保持文本原样；经纬度/海拔缺失时为 nil。
type RawMeta struct {
	CaptureTimeRaw string
	SubSecond      string

	Latitude  *float64
	Longitude *float64
	Altitude  *float64
}

// PhotoRecord 是进入聚类引擎的单张照片记录。
type PhotoRecord struct {
	Path string
	Size int64

	// CaptureRaw 是元数据里的原始时间文本，用于生成 burst 目录名。
	CaptureRaw string
	Capture    CaptureTime

	Latitude  *float64
	Longitude *float64
	Altitude  *float64
}

// HasLatLon 表示经纬度是否同时存在。
func (r PhotoRecord) HasLatLon() bool {
	return r.Latitude != nil && r.Longitude != nil
}
