package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/setting"
)

const (
	// ChatGPT 客户端的 oauth client_id，账号记录里可以按账号覆盖
	defaultOAuthClientId = "pdlLIX2Y72MIl2rhLhTE9VV9bN905kBh"
	oauthTokenURL        = "https://auth.openai.com/oauth/token"

	credentialRefreshTimeout = 30 * time.Second
)

// TokenRefresher 负责两类后台维护：视频配额冷却到期后的余量恢复，
// 以及用 refresh token 续期临期的 access token。
type TokenRefresher struct {
	store model.AccountStore
	cache *model.AccountCache

	// 配额恢复按账号单飞，调度器在刷新落库前会反复触发
	inFlight sync.Map
}

func NewTokenRefresher(store model.AccountStore, cache *model.AccountCache) *TokenRefresher {
	return &TokenRefresher{store: store, cache: cache}
}

// RefreshVideoQuota 清掉已到期的冷却并把余量恢复为 总量-已消耗
func (r *TokenRefresher) RefreshVideoQuota(ctx context.Context, accountId int) {
	if _, dup := r.inFlight.LoadOrStore(accountId, struct{}{}); dup {
		return
	}
	defer r.inFlight.Delete(accountId)

	account, err := r.store.GetAccountById(accountId)
	if err != nil {
		logger.LogError(ctx, "配额恢复读取账号失败:", err.Error())
		return
	}
	if !account.Sora2CooldownElapsed(time.Now()) {
		// 已经被本进程或别的实例处理过了
		return
	}
	remaining := account.Sora2TotalCount - account.Sora2RedeemedCount
	if remaining < 0 {
		remaining = 0
	}
	fields := map[string]interface{}{
		"sora2_cooldown_until":  nil,
		"sora2_remaining_count": remaining,
	}
	if err := r.store.UpdateAccountFields(accountId, fields); err != nil {
		logger.LogError(ctx, "配额恢复写库失败:", err.Error())
		return
	}
	if fresh, err := r.store.GetAccountById(accountId); err == nil {
		r.cache.ApplyUpdate(fresh)
	}
	logger.LogInfo(ctx, "账号", accountId, "视频配额已恢复，余量", remaining)
}

// RefreshExpiringCredentials 扫一遍账号池，续期临期窗口内的 access token。
// 用命名锁保证多实例下同一时刻只有一份在跑。
func (r *TokenRefresher) RefreshExpiringCredentials(ctx context.Context) {
	release, ok := AcquireNamedLock("credential_refresh", time.Minute)
	if !ok {
		return
	}
	defer release()

	snap, err := r.cache.Snapshot()
	if err != nil {
		logger.LogError(ctx, "凭证检查读取账号池失败:", err.Error())
		return
	}
	window := setting.RefreshExpiryWindow()
	now := time.Now()
	for _, account := range snap.All {
		if !account.IsActive {
			continue
		}
		if account.RT == nil || *account.RT == "" {
			continue
		}
		if account.ExpiryTime == nil || account.ExpiryTime.Sub(now) > window {
			continue
		}
		if err := r.RefreshCredential(ctx, account.Id); err != nil {
			logger.LogWarn(ctx, "账号", account.Id, "凭证刷新失败:", err.Error())
		}
	}
}

// RefreshCredential 用 refresh token 换新的 access token 并回写账号
func (r *TokenRefresher) RefreshCredential(ctx context.Context, accountId int) error {
	account, err := r.store.GetAccountById(accountId)
	if err != nil {
		return err
	}
	if account.RT == nil || *account.RT == "" {
		return errors.New("账号没有配置 refresh token")
	}
	clientId := defaultOAuthClientId
	if account.ClientId != nil && *account.ClientId != "" {
		clientId = *account.ClientId
	}

	body, err := common.Marshal(map[string]string{
		"client_id":     clientId,
		"grant_type":    "refresh_token",
		"refresh_token": *account.RT,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build refresh request")
	}
	req.Header.Set("Content-Type", "application/json")

	base, err := ClientForAccount(account)
	if err != nil {
		return err
	}
	resp, err := NewTimeoutClient(base, credentialRefreshTimeout).Do(req)
	if err != nil {
		return errors.Wrap(err, "refresh request failed")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return errors.Wrap(err, "read refresh response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("refresh status %d: %s", resp.StatusCode, TruncateString(string(data), 256))
	}

	accessToken := gjson.GetBytes(data, "access_token").String()
	if accessToken == "" {
		return errors.New("刷新响应缺少 access_token")
	}
	fields := map[string]interface{}{"token": accessToken}
	if rt := gjson.GetBytes(data, "refresh_token").String(); rt != "" {
		fields["rt"] = rt
	}

	expiry := time.Time{}
	if exp, email, err := ParseAccessTokenClaims(accessToken); err == nil {
		expiry = exp
		if email != "" && account.Email == "" {
			fields["email"] = email
		}
	}
	if expiry.IsZero() {
		if expiresIn := gjson.GetBytes(data, "expires_in").Int(); expiresIn > 0 {
			expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
		}
	}
	if !expiry.IsZero() {
		fields["expiry_time"] = expiry
	}

	if err := r.store.UpdateAccountFields(accountId, fields); err != nil {
		return err
	}
	if fresh, err := r.store.GetAccountById(accountId); err == nil {
		r.cache.ApplyUpdate(fresh)
	}
	logger.LogInfo(ctx, "账号", accountId, "access token 已续期，过期时间", expiry.Format("2006-01-02 15:04:05"))
	return nil
}

// ParseAccessTokenClaims 只解析载荷不校验签名，取过期时间和邮箱
func ParseAccessTokenClaims(token string) (time.Time, string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, "", err
	}
	var expiry time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiry = exp.Time
	}
	email := ""
	if profile, ok := claims["https://api.openai.com/profile"].(map[string]interface{}); ok {
		if e, ok := profile["email"].(string); ok {
			email = e
		}
	}
	return expiry, email, nil
}
