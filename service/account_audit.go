package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/setting"
)

// 命中这些关键字说明凭证已经失效或账号被上游封禁，重试没有意义
var accountFatalKeywords = []string{
	"invalid_grant",
	"token_expired",
	"account_deactivated",
	"account_inactive",
	"invalid access token",
	"authentication failed",
	"user is banned",
	"has been suspended",
}

// 限流类关键字，账号进入冷却而不是停用
var accountRateLimitKeywords = []string{
	"rate limit",
	"too many requests",
	"try again later",
	"temporarily blocked",
}

// ShouldDisableAccount 判断上游错误是否属于凭证级失败
func ShouldDisableAccount(statusCode int, message string) bool {
	if statusCode == http.StatusUnauthorized {
		return true
	}
	hit, _ := AcSearch(message, accountFatalKeywords, true)
	return hit
}

// IsRateLimitError 判断上游错误是否属于限流
func IsRateLimitError(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	hit, _ := AcSearch(message, accountRateLimitKeywords, true)
	return hit
}

// DisableAccount 停用账号并写入原因，缓存同步更新
func DisableAccount(cache *model.AccountCache, accountId int, reason string) {
	fields := map[string]interface{}{
		"is_active": false,
		"remark":    TruncateString(reason, 255),
	}
	if err := model.UpdateAccountFields(accountId, fields); err != nil {
		common.SysError(fmt.Sprintf("failed to disable account %d: %s", accountId, err.Error()))
		return
	}
	if account, err := model.GetAccountById(accountId); err == nil && cache != nil {
		cache.ApplyUpdate(account)
	}
	common.SysLog(fmt.Sprintf("账号 %d 已自动停用：%s", accountId, TruncateString(reason, 128)))
}

// ApplyCooldown 将账号压入冷却期，期间不再参与调度
func ApplyCooldown(cache *model.AccountCache, accountId int, d time.Duration) {
	until := time.Now().Add(d)
	fields := map[string]interface{}{"cooled_until": &until}
	if err := model.UpdateAccountFields(accountId, fields); err != nil {
		common.SysError(fmt.Sprintf("failed to cool down account %d: %s", accountId, err.Error()))
		return
	}
	if account, err := model.GetAccountById(accountId); err == nil && cache != nil {
		cache.ApplyUpdate(account)
	}
	common.SysLog(fmt.Sprintf("账号 %d 进入冷却，至 %s", accountId, until.Format("2006-01-02 15:04:05")))
}

// RecordAccountSuccess 记录一次成功生成并清零连续失败
func RecordAccountSuccess(ctx context.Context, account *model.Account, kind constant.GenerationKind) {
	if err := model.RecordGenerationSuccess(account.Id, kind); err != nil {
		logger.LogError(ctx, "failed to record generation success:", err.Error())
	}
}

// RecordAccountFailure 累计连续失败并按需自动停用或冷却，返回账号是否被停用
func RecordAccountFailure(ctx context.Context, cache *model.AccountCache, account *model.Account, statusCode int, message string) bool {
	streak, err := model.RecordGenerationError(account.Id)
	if err != nil {
		logger.LogError(ctx, "failed to record generation error:", err.Error())
	}
	if ShouldDisableAccount(statusCode, message) {
		DisableAccount(cache, account.Id, message)
		return true
	}
	if IsRateLimitError(statusCode, message) {
		ApplyCooldown(cache, account.Id, setting.RateLimitCooldown())
		return false
	}
	if threshold := common.AccountErrorBanThreshold; threshold > 0 && streak >= threshold {
		DisableAccount(cache, account.Id, fmt.Sprintf("连续失败 %d 次：%s", streak, TruncateString(message, 128)))
		return true
	}
	return false
}
