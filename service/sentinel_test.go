package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

type sentinelCapture struct {
	mu     sync.Mutex
	path   string
	header http.Header
	body   []byte
}

func (c *sentinelCapture) snapshot() (string, http.Header, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.header, c.body
}

func newSentinelServer(t *testing.T, capture *sentinelCapture, response string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capture.mu.Lock()
		capture.path = r.URL.Path
		capture.header = r.Header.Clone()
		capture.body = body
		capture.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
}

func TestSentinelMintWithPow(t *testing.T) {
	capture := &sentinelCapture{}
	// "ffffff" 的目标极宽，真解第 0 轮就能命中
	srv := newSentinelServer(t, capture, `{
		"turnstile": {"required": true, "dx": "dx-value"},
		"proofofwork": {"required": true, "seed": "0.42", "difficulty": "ffffff"},
		"token": "challenge-token"
	}`, http.StatusOK)
	defer srv.Close()

	builder := NewSentinelTokenBuilder(srv.Client(), srv.URL)
	header, challenge, err := builder.Mint(context.Background(), SentinelFlowCreateTask, "at-123", "UA-test")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	path, reqHeader, reqBody := capture.snapshot()
	if path != "/backend-api/sentinel/req" {
		t.Errorf("challenge must go to the sentinel endpoint, got %s", path)
	}
	if got := reqHeader.Get("Authorization"); got != "Bearer at-123" {
		t.Errorf("access token must ride along: %q", got)
	}
	if got := reqHeader.Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected content type %q", got)
	}
	reqTok := gjson.GetBytes(reqBody, "p").String()
	if !strings.HasPrefix(reqTok, PowPrefixThrowaway) {
		t.Errorf("challenge request carries the throwaway proof, got %q", reqTok)
	}
	if gjson.GetBytes(reqBody, "flow").String() != SentinelFlowCreateTask {
		t.Errorf("flow missing from challenge request: %s", reqBody)
	}

	if challenge.Token != "challenge-token" {
		t.Errorf("challenge token not parsed: %+v", challenge)
	}
	if !challenge.ProofOfWork.Required || challenge.ProofOfWork.Seed != "0.42" {
		t.Errorf("proofofwork block not parsed: %+v", challenge.ProofOfWork)
	}

	p := gjson.Get(header, "p").String()
	if !strings.HasPrefix(p, PowPrefixSolved) {
		t.Errorf("pow 必答时 p 必须是真解标记: %q", p)
	}
	if gjson.Get(header, "t").String() != "dx-value" {
		t.Errorf("t must carry turnstile dx: %s", header)
	}
	if gjson.Get(header, "c").String() != "challenge-token" {
		t.Errorf("c must carry the challenge token: %s", header)
	}
	if gjson.Get(header, "id").String() == "" {
		t.Error("id must be set")
	}
	if gjson.Get(header, "flow").String() != SentinelFlowCreateTask {
		t.Errorf("flow mismatch in header payload: %s", header)
	}
}

func TestSentinelMintWithoutPow(t *testing.T) {
	capture := &sentinelCapture{}
	srv := newSentinelServer(t, capture, `{
		"turnstile": {"required": false, "dx": ""},
		"proofofwork": {"required": false},
		"token": "tok-nopow"
	}`, http.StatusOK)
	defer srv.Close()

	builder := NewSentinelTokenBuilder(srv.Client(), srv.URL)
	header, _, err := builder.Mint(context.Background(), "", "", "")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	p := gjson.Get(header, "p").String()
	if !strings.HasPrefix(p, PowPrefixThrowaway) {
		t.Errorf("不要求 pow 时沿用一次性凭证: %q", p)
	}
	if gjson.Get(header, "c").String() != "tok-nopow" {
		t.Errorf("c must still carry the token: %s", header)
	}
	// flow 为空时退回默认流程名
	if gjson.Get(header, "flow").String() != SentinelFlowCreateTask {
		t.Errorf("empty flow must default: %s", header)
	}
	// 未带 access token 时不能出现 Authorization 头
	_, reqHeader, _ := capture.snapshot()
	if got := reqHeader.Get("Authorization"); got != "" {
		t.Errorf("unexpected authorization header %q", got)
	}
}

func TestSentinelMintLenientParse(t *testing.T) {
	capture := &sentinelCapture{}
	srv := newSentinelServer(t, capture, `{}`, http.StatusOK)
	defer srv.Close()

	builder := NewSentinelTokenBuilder(srv.Client(), srv.URL)
	header, challenge, err := builder.Mint(context.Background(), SentinelFlowCreateTask, "", "UA-test")
	if err != nil {
		t.Fatalf("上游结构缺块不是铸造失败: %v", err)
	}
	if challenge.Token != "" || challenge.ProofOfWork.Required {
		t.Errorf("missing blocks must parse to zero values: %+v", challenge)
	}
	if gjson.Get(header, "t").String() != "" || gjson.Get(header, "c").String() != "" {
		t.Errorf("empty challenge fields must stay empty in the payload: %s", header)
	}
}

func TestSentinelPayloadCompactSerialization(t *testing.T) {
	capture := &sentinelCapture{}
	srv := newSentinelServer(t, capture, `{
		"turnstile": {"required": true, "dx": "<dx&中文>"},
		"proofofwork": {"required": false},
		"token": "tok"
	}`, http.StatusOK)
	defer srv.Close()

	builder := NewSentinelTokenBuilder(srv.Client(), srv.URL)
	header, _, err := builder.Mint(context.Background(), SentinelFlowCreateTask, "", "UA-test")
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if strings.Contains(header, `": `) || strings.Contains(header, `", "`) {
		t.Errorf("payload must use compact separators: %s", header)
	}
	// HTML 字符和非 ASCII 都得原样保留，不要 \u 转义
	if !strings.Contains(header, "<dx&中文>") {
		t.Errorf("dx must survive as raw UTF-8: %s", header)
	}
	_, _, reqBody := capture.snapshot()
	if strings.Contains(string(reqBody), " ") {
		t.Errorf("challenge request body must be compact: %s", reqBody)
	}
}

func TestSentinelMintHTTPError(t *testing.T) {
	capture := &sentinelCapture{}
	srv := newSentinelServer(t, capture, `upstream exploded`, http.StatusInternalServerError)
	defer srv.Close()

	builder := NewSentinelTokenBuilder(srv.Client(), srv.URL)
	_, _, err := builder.Mint(context.Background(), SentinelFlowCreateTask, "", "UA-test")
	if err == nil {
		t.Fatal("non-200 challenge must fail the mint")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention the status: %v", err)
	}
}

func TestSentinelMintTransportError(t *testing.T) {
	capture := &sentinelCapture{}
	srv := newSentinelServer(t, capture, `{}`, http.StatusOK)
	client := srv.Client()
	url := srv.URL
	srv.Close()

	builder := NewSentinelTokenBuilder(client, url)
	_, _, err := builder.Mint(context.Background(), SentinelFlowCreateTask, "", "UA-test")
	if err == nil {
		t.Fatal("transport errors must propagate")
	}
}
