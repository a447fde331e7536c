package sora

// 适配器动作名
const (
	ActionCreate  = "create"
	ActionTask    = "task"
	ActionPending = "pending"
	ActionMe      = "me"
	ActionLimits  = "limits"
)

const (
	createPath  = "/backend/nf/create"
	taskPathFmt = "/backend/nf/task/%s"
	pendingPath = "/backend/nf/pending"
	mePath      = "/backend/me"
	limitsPath  = "/backend/nf/limits"
)

// 上游任务参数
const (
	KindVideo = "video"
	KindImage = "image"

	// Sora 2 视频生成的内部模型号
	VideoModel = "sy_8"

	DefaultSize = "small"
	// 30fps，默认 15 秒
	DefaultNFrames  = 450
	FramesPerSecond = 30

	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// 上游任务状态
const (
	UpstreamStatusRunning   = "running"
	UpstreamStatusCompleted = "completed"
	UpstreamStatusSucceeded = "succeeded"
	UpstreamStatusFailed    = "failed"
	UpstreamStatusRejected  = "rejected"
)

// chromeHeaders Chrome 131 的请求头模板，装配时原样压上。
// zstd 这边解不了，Accept-Encoding 只报能处理的编码
var chromeHeaders = map[string]string{
	"Accept":             "application/json, text/plain, */*",
	"Accept-Encoding":    "gzip, deflate, br",
	"Accept-Language":    "en-US,en;q=0.9",
	"Cache-Control":      "no-cache",
	"Origin":             "https://sora.chatgpt.com",
	"Pragma":             "no-cache",
	"Priority":           "u=1, i",
	"Referer":            "https://sora.chatgpt.com/",
	"Sec-Ch-Ua":          `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-origin",
}
