package constant

// GenerationKind 区分一次生成占用哪类账号配额
type GenerationKind string

const (
	GenerationImage GenerationKind = "image"
	GenerationVideo GenerationKind = "video"
)

func (k GenerationKind) IsValid() bool {
	return k == GenerationImage || k == GenerationVideo
}

// 上游任务轮询用到的归一化状态
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)
