package domain

import "strconv"

// CaptureTime 是带标签的拍摄时间：要么已知（Unix 秒，含小数），要么未知。
//
// 约束：未知时间没有数值；任何比较/求差都必须先判断 Known，
// 不允许用哨兵数值参与排序或间隔计算。
type CaptureTime struct {
	seconds float64
	known   bool
}

// KnownAt 构造已知时间。
func KnownAt(seconds float64) CaptureTime {
	return CaptureTime{seconds: seconds, known: true}
}

// UnknownTime 构造未知时间。
func UnknownTime() CaptureTime {
	return CaptureTime{}
}

func (c CaptureTime) Known() bool { return c.known }

// Seconds 返回 Unix 秒；未知时 ok=false。
func (c CaptureTime) Seconds() (sec float64, ok bool) {
	return c.seconds, c.known
}

// Since 计算 c - earlier；任一方未知则 ok=false。
func (c CaptureTime) Since(earlier CaptureTime) (gap float64, ok bool) {
	if !c.known || !earlier.known {
		return 0, false
	}
	return c.seconds - earlier.seconds, true
}

func (c CaptureTime) String() string {
	if !c.known {
		return "unknown"
	}
	return strconv.FormatFloat(c.seconds, 'f', 3, 64)
}
