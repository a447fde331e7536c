package sora

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hancat/sora2api/relay/channel"
)

// Adaptor 装配 sora.chatgpt.com 的后端请求
type Adaptor struct{}

func (a *Adaptor) BuildRequestURL(info *channel.RelayInfo) (string, error) {
	switch info.Action {
	case ActionCreate:
		return info.BaseURL + createPath, nil
	case ActionTask:
		if info.TaskId == "" {
			return "", errors.New("task id is empty")
		}
		return info.BaseURL + fmt.Sprintf(taskPathFmt, info.TaskId), nil
	case ActionPending:
		return info.BaseURL + pendingPath, nil
	case ActionMe:
		return info.BaseURL + mePath, nil
	case ActionLimits:
		return info.BaseURL + limitsPath, nil
	}
	return "", errors.Errorf("unknown sora action: %s", info.Action)
}

func (a *Adaptor) BuildRequestHeader(req *http.Request, info *channel.RelayInfo) {
	for key, value := range chromeHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("Authorization", "Bearer "+info.Account.Token)
	req.Header.Set("User-Agent", info.UserAgent)
	if req.Method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}
	if info.SentinelToken != "" {
		req.Header.Set("openai-sentinel-token", info.SentinelToken)
	}
	for name, value := range info.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}
