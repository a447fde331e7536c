package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/dto"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/setting"
)

const SentinelFlowCreateTask = "sora_2_create_task"

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const sentinelRequestTimeout = 10 * time.Second

// ResolveUserAgent prefers the configured UA, falling back to the pinned
// Chrome profile.
func ResolveUserAgent() string {
	if ua := setting.DefaultUserAgent(); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

// SentinelTokenBuilder mints openai-sentinel-token header values. One
// instance per upstream base URL; safe for concurrent use.
type SentinelTokenBuilder struct {
	client  *http.Client
	baseURL string
}

func NewSentinelTokenBuilder(client *http.Client, baseURL string) *SentinelTokenBuilder {
	if baseURL == "" {
		baseURL = setting.ChatGPTBaseURL()
	}
	return &SentinelTokenBuilder{
		client:  NewTimeoutClient(client, sentinelRequestTimeout),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Mint performs the full round trip: throwaway proof, challenge request,
// real proof when demanded, compact payload. Transport and HTTP-status
// failures come back as errors; a failed solve does not — the fallback
// token is embedded and the upstream gets to decide.
func (b *SentinelTokenBuilder) Mint(ctx context.Context, flow string, accessToken string, userAgent string) (string, *dto.SentinelChallengeResponse, error) {
	if flow == "" {
		flow = SentinelFlowCreateTask
	}
	if userAgent == "" {
		userAgent = ResolveUserAgent()
	}
	reqId := uuid.NewString()
	powToken := GetPowToken(userAgent)

	challenge, err := b.requestChallenge(ctx, powToken, flow, reqId, userAgent, accessToken)
	if err != nil {
		return "", nil, err
	}

	finalToken := powToken
	pow := challenge.ProofOfWork
	if pow.Required && pow.Seed != "" && pow.Difficulty != "" {
		env := NewPowEnvironment(userAgent)
		solution, ok := SolvePowAsync(ctx, pow.Seed, pow.Difficulty, env)
		finalToken = PowPrefixSolved + solution
		if !ok {
			logger.LogWarn(ctx, "PoW 求解失败，携带回退标记继续")
		}
	}

	payload := dto.SentinelPayload{
		P:    finalToken,
		T:    challenge.Turnstile.Dx,
		C:    challenge.Token,
		Id:   reqId,
		Flow: flow,
	}
	body, err := common.CompactJSON(payload)
	if err != nil {
		return "", nil, err
	}
	return string(body), challenge, nil
}

func (b *SentinelTokenBuilder) requestChallenge(ctx context.Context, powToken, flow, reqId, userAgent, accessToken string) (*dto.SentinelChallengeResponse, error) {
	reqBody, err := common.CompactJSON(dto.SentinelChallengeRequest{
		P:    powToken,
		Flow: flow,
		Id:   reqId,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/backend-api/sentinel/req", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://sora.chatgpt.com")
	req.Header.Set("Referer", "https://sora.chatgpt.com/")
	req.Header.Set("User-Agent", userAgent)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "sentinel challenge request")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read sentinel challenge response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("sentinel challenge status %d: %s", resp.StatusCode, TruncateString(string(data), 256))
	}
	return parseChallengeResponse(data), nil
}

// parseChallengeResponse 宽松取值：上游结构漂移时缺的字段按零值处理，
// 不让一次铸造失败
func parseChallengeResponse(data []byte) *dto.SentinelChallengeResponse {
	return &dto.SentinelChallengeResponse{
		Turnstile: dto.SentinelTurnstile{
			Required: gjson.GetBytes(data, "turnstile.required").Bool(),
			Dx:       gjson.GetBytes(data, "turnstile.dx").String(),
		},
		Token: gjson.GetBytes(data, "token").String(),
		ProofOfWork: dto.SentinelProofOfWork{
			Required:   gjson.GetBytes(data, "proofofwork.required").Bool(),
			Seed:       gjson.GetBytes(data, "proofofwork.seed").String(),
			Difficulty: gjson.GetBytes(data, "proofofwork.difficulty").String(),
		},
		ExpireAt:    gjson.GetBytes(data, "expire_at").Int(),
		ExpireAfter: gjson.GetBytes(data, "expire_after").Int(),
		Persona:     gjson.GetBytes(data, "persona").String(),
	}
}
