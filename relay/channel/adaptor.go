package channel

import (
	"net/http"

	"github.com/hancat/sora2api/model"
)

// RelayInfo 一次上游调用的装配上下文，由编排层填好后交给渠道适配器
type RelayInfo struct {
	Account *model.Account
	// 已按账号代理配置解析好的客户端
	Client    *http.Client
	BaseURL   string
	UserAgent string
	// openai-sentinel-token，仅生成类请求需要
	SentinelToken string
	// 适配器自定义的动作名，决定请求 URL
	Action string
	TaskId string
	// Cloudflare 放行 cookie，可为空
	Cookies map[string]string
}

// TaskAdaptor 把一次任务动作装配成具体的上游请求
type TaskAdaptor interface {
	BuildRequestURL(info *RelayInfo) (string, error)
	BuildRequestHeader(req *http.Request, info *RelayInfo)
}
