package domain

// BurstGroup 是一组确认的连拍照片。
//
// 不变量：
// - Members 按拍摄时间升序，且全部为已知时间
// - 相邻成员的时间间隔严格小于聚类阈值
// - len(Members) 严格大于最小连拍张数
type BurstGroup struct {
	Members []PhotoRecord
}

// Anchor 返回最早的成员（其原始时间文本决定目标目录名）。
// 调用方必须保证 Members 非空。
func (g BurstGroup) Anchor() PhotoRecord {
	return g.Members[0]
}

func (g BurstGroup) Len() int { return len(g.Members) }
