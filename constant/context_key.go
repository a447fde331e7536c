package constant

type ContextKey string

const (
	ContextKeyRequestStartTime ContextKey = "request_start_time"
	ContextKeyGenerationKind   ContextKey = "generation_kind"
	ContextKeyTaskId           ContextKey = "task_id"
)
