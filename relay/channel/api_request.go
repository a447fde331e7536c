package channel

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/logger"
)

// UpstreamError 上游返回的非 2xx 结果，状态码留给错误审计用
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

func DoTaskApiRequest(ctx context.Context, a TaskAdaptor, info *RelayInfo, method string, requestBody io.Reader) (*http.Response, error) {
	fullRequestURL, err := a.BuildRequestURL(info)
	if err != nil {
		return nil, fmt.Errorf("get request url failed: %w", err)
	}
	if common.DebugEnabled {
		println("fullRequestURL:", fullRequestURL)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullRequestURL, requestBody)
	if err != nil {
		return nil, fmt.Errorf("new request failed: %w", err)
	}
	a.BuildRequestHeader(req, info)

	if common.DebugEnabled {
		logger.LogDebug(ctx, fmt.Sprintf("Upstream headers: %v", req.Header))
	}

	resp, err := doRequest(ctx, req, info)
	if err != nil {
		return nil, fmt.Errorf("do request failed: %w", err)
	}
	return resp, nil
}

func doRequest(ctx context.Context, req *http.Request, info *RelayInfo) (*http.Response, error) {
	client := info.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.LogError(ctx, "do request failed: "+err.Error())
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("resp is nil")
	}
	return resp, nil
}

// ReadResponseBody 按 Content-Encoding 解包后读取。请求头里手动设置了
// Accept-Encoding，net/http 不会自动解压，gzip/br/deflate 都要自己处理
func ReadResponseBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader failed: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close()
		reader = fr
	}
	if limit > 0 {
		reader = io.LimitReader(reader, limit)
	}
	return io.ReadAll(reader)
}
