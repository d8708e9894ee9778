package domain

// MovePlan 规划一次文件移动。
//
// CopyBack=true 表示移动成功后需要把目标文件复制回 SrcAbs（仅 burst 的第一个成员）。
type MovePlan struct {
	SrcAbs   string
	DstAbs   string
	CopyBack bool
}

// BurstPlan 是对单个 burst 的执行计划（只描述，不做任何写入/移动）。
type BurstPlan struct {
	Name   string // 目录名（已替换 ':'）
	Anchor string // 锚点成员的原始时间文本
	Dir    string // <burstsRoot>/<Name>
	Moves  []MovePlan
}

// BurstDirState 描述 <burstsRoot>/<Name>/ 的现状（只做 ReadDir，不读内容）。
type BurstDirState struct {
	Dir    string
	Exists bool

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 判定目标是否已存在。
	ExistingNames map[string]struct{}
}
