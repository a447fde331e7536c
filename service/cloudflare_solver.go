package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/setting"
)

const (
	cloudflareSolverTimeout = 120 * time.Second

	// 放行 cookie 的有效期远超十分钟，共享池内缓存复用，省掉重复求解
	clearanceCacheKey = "sora2api:cf_clearance"
	clearanceCacheTTL = 10 * time.Minute
)

// CloudflareClearance 外部 solver 换回的放行凭证
type CloudflareClearance struct {
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent"`
}

// IsCloudflareChallenge 判断上游响应是否被 Cloudflare 盾拦下
func IsCloudflareChallenge(statusCode int, header http.Header, body string) bool {
	if statusCode != http.StatusForbidden && statusCode != http.StatusTooManyRequests {
		return false
	}
	if header.Get("cf-mitigated") != "" {
		return true
	}
	return strings.Contains(body, "Just a moment") || strings.Contains(body, "challenge-platform")
}

// SolveCloudflareChallenge 调外部 solver 服务换放行 cookie，带退避重试。
// Redis 可用时放行凭证跨实例共享
func SolveCloudflareChallenge(ctx context.Context, maxRetries int) (*CloudflareClearance, error) {
	if !setting.CloudflareEnabled() || setting.CloudflareApiURL() == "" {
		return nil, errors.New("cloudflare solver 未配置")
	}
	if cached := cachedClearance(); cached != nil {
		logger.LogDebug(ctx, "cloudflare clearance cache hit")
		return cached, nil
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	apiURL := setting.CloudflareApiURL()
	client := NewTimeoutClient(GetHttpClient(), cloudflareSolverTimeout)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		clearance, err := requestClearance(ctx, client, apiURL)
		if err == nil {
			storeClearance(clearance)
			return clearance, nil
		}
		lastErr = err
		logger.LogWarn(ctx, fmt.Sprintf("cloudflare solver 第 %d/%d 次失败: %s", attempt, maxRetries, err.Error()))
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt*2) * time.Second):
			}
		}
	}
	return nil, lastErr
}

func cachedClearance() *CloudflareClearance {
	if !common.RedisEnabled {
		return nil
	}
	raw, err := common.RedisGet(clearanceCacheKey)
	if err != nil {
		return nil
	}
	clearance := &CloudflareClearance{}
	if err := common.Unmarshal([]byte(raw), clearance); err != nil || len(clearance.Cookies) == 0 {
		return nil
	}
	return clearance
}

func storeClearance(clearance *CloudflareClearance) {
	if !common.RedisEnabled || clearance == nil {
		return
	}
	raw, err := common.Marshal(clearance)
	if err != nil {
		return
	}
	if err := common.RedisSet(clearanceCacheKey, string(raw), clearanceCacheTTL); err != nil {
		common.SysError("failed to cache cloudflare clearance: " + err.Error())
	}
}

func requestClearance(ctx context.Context, client *http.Client, apiURL string) (*CloudflareClearance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build solver request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "solver request failed")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, errors.Wrap(err, "read solver response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("solver status %d", resp.StatusCode)
	}
	if !gjson.GetBytes(data, "success").Bool() {
		return nil, errors.Errorf("solver failed: %s", gjson.GetBytes(data, "error").String())
	}

	clearance := &CloudflareClearance{
		Cookies:   make(map[string]string),
		UserAgent: gjson.GetBytes(data, "user_agent").String(),
	}
	gjson.GetBytes(data, "cookies").ForEach(func(key, value gjson.Result) bool {
		clearance.Cookies[key.String()] = value.String()
		return true
	})
	logger.LogInfo(ctx, fmt.Sprintf("cloudflare solver 成功，耗时 %.2fs", gjson.GetBytes(data, "elapsed_seconds").Float()))
	return clearance, nil
}
