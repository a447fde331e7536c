package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/pkg/errors"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/dto"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/model"
	relaychannel "github.com/hancat/sora2api/relay/channel"
	"github.com/hancat/sora2api/relay/channel/sora"
	"github.com/hancat/sora2api/setting"
)

var (
	ErrNoAccountAvailable = errors.New("当前没有可用的账号")
	ErrGenerationTimeout  = errors.New("生成任务等待超时")
)

// GenerationOptions 一次生成的入参，入口层从请求里映射出来
type GenerationOptions struct {
	Kind        constant.GenerationKind
	Prompt      string
	Orientation string
	// 视频时长（秒），0 用默认值
	Seconds int
}

// ProgressFunc 轮询进度回调，progress 取值 0~1
type ProgressFunc func(progress float64, status string)

// GenerationHandler 串起一次生成的完整链路：
// 选号、并发闸门、图片互斥锁、sentinel、建任务、轮询、统计与审计
type GenerationHandler struct {
	balancer    *LoadBalancer
	concurrency *ConcurrencyManager
	locker      AccountLocker
	sentinel    *SentinelTokenBuilder
	fileCache   *FileCache
	cache       *model.AccountCache
	store       model.AccountStore
}

func NewGenerationHandler(balancer *LoadBalancer, cm *ConcurrencyManager, locker AccountLocker,
	sentinel *SentinelTokenBuilder, fileCache *FileCache, cache *model.AccountCache, store model.AccountStore) *GenerationHandler {
	return &GenerationHandler{
		balancer:    balancer,
		concurrency: cm,
		locker:      locker,
		sentinel:    sentinel,
		fileCache:   fileCache,
		cache:       cache,
		store:       store,
	}
}

// Generate 执行一次完整生成。onProgress 可为 nil。
// 返回的 TaskResult 可能是失败态（内容被拒等），调用方自己翻译
func (h *GenerationHandler) Generate(ctx context.Context, opts GenerationOptions, onProgress ProgressFunc) (*dto.TaskResult, error) {
	account, err := h.balancer.SelectAccount(ctx, opts.Kind)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNoAccountAvailable
	}

	if !h.concurrency.TryAcquire(account, opts.Kind) {
		// 选号和抢坑之间被别的请求占满了
		return nil, ErrNoAccountAvailable
	}
	defer h.concurrency.Release(account.Id, opts.Kind)

	if opts.Kind == constant.GenerationImage {
		if !h.locker.Acquire(account.Id, setting.LockTimeout()) {
			return nil, ErrNoAccountAvailable
		}
		defer h.locker.Release(account.Id)
	}

	logger.LogInfo(ctx, "账号", account.Id, "开始", string(opts.Kind), "生成")
	start := time.Now()
	result, err := h.run(ctx, account, opts, onProgress)
	if err != nil {
		statusCode, message := classifyUpstreamFailure(err)
		model.RecordRequestLog(&model.RequestLog{
			AccountId:  account.Id,
			Operation:  string(opts.Kind),
			StatusCode: statusCode,
			DurationMs: time.Since(start).Milliseconds(),
			Error:      TruncateString(message, 512),
		})
		RecordAccountFailure(ctx, h.cache, account, statusCode, message)
		return nil, err
	}

	model.RecordRequestLog(&model.RequestLog{
		AccountId:  account.Id,
		Operation:  string(opts.Kind),
		TaskId:     result.TaskId,
		StatusCode: http.StatusOK,
		DurationMs: time.Since(start).Milliseconds(),
	})
	gopool.Go(func() {
		if err := model.MarkAccountUsed(account.Id); err != nil {
			common.SysError("mark account used failed: " + err.Error())
		}
	})
	if result.Status == constant.TaskStatusSucceeded {
		RecordAccountSuccess(ctx, account, opts.Kind)
		if opts.Kind == constant.GenerationVideo {
			// 成功后异步对齐上游余量，配额耗尽时顺带拿冷却截止时间
			gopool.Go(func() {
				h.syncVideoQuota(context.Background(), account)
			})
		}
	}
	return result, nil
}

func (h *GenerationHandler) run(ctx context.Context, account *model.Account, opts GenerationOptions, onProgress ProgressFunc) (*dto.TaskResult, error) {
	info, err := h.relayInfo(account)
	if err != nil {
		return nil, err
	}

	// sentinel 拿不到也要继续，上游偶尔接受缺省标记
	headerValue, _, err := h.sentinel.Mint(ctx, SentinelFlowCreateTask, account.Token, info.UserAgent)
	if err != nil {
		logger.LogWarn(ctx, "sentinel 获取失败，降级继续:", err.Error())
	} else {
		info.SentinelToken = headerValue
	}

	var payload *dto.SoraCreateTaskPayload
	if opts.Kind == constant.GenerationVideo {
		payload = sora.BuildVideoPayload(opts.Prompt, opts.Orientation, opts.Seconds)
	} else {
		payload = sora.BuildImagePayload(opts.Prompt, opts.Orientation)
	}

	taskId, err := sora.CreateTask(ctx, info, payload)
	if err != nil && setting.CloudflareEnabled() {
		if ue := asUpstreamError(err); ue != nil && IsCloudflareChallenge(ue.StatusCode, http.Header{}, ue.Message) {
			clearance, cfErr := SolveCloudflareChallenge(ctx, setting.SoraMaxRetries())
			if cfErr != nil {
				logger.LogWarn(ctx, "cloudflare 放行失败:", cfErr.Error())
			} else {
				info.Cookies = clearance.Cookies
				if clearance.UserAgent != "" {
					info.UserAgent = clearance.UserAgent
				}
				taskId, err = sora.CreateTask(ctx, info, payload)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	logger.LogInfo(ctx, "任务已提交:", taskId)

	return h.poll(ctx, info, taskId, opts.Kind, onProgress)
}

func (h *GenerationHandler) poll(ctx context.Context, info *relaychannel.RelayInfo, taskId string, kind constant.GenerationKind, onProgress ProgressFunc) (*dto.TaskResult, error) {
	timeout := setting.ImageTimeout()
	if kind == constant.GenerationVideo {
		timeout = setting.VideoTimeout()
	}
	deadline := time.Now().Add(timeout)
	interval := setting.SoraPollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxAttempts := setting.SoraMaxPollTimes()
	if maxAttempts <= 0 {
		maxAttempts = int(timeout/interval) + 1
	}

	for attempt := 0; attempt < maxAttempts && time.Now().Before(deadline); attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		result, err := sora.GetTaskProgress(ctx, info, taskId)
		if err != nil {
			// 单次轮询失败不终止，网络抖动很常见
			logger.LogWarn(ctx, "任务", taskId, "轮询失败:", err.Error())
			continue
		}
		if onProgress != nil {
			onProgress(result.Progress, result.Status)
		}
		switch result.Status {
		case constant.TaskStatusSucceeded:
			h.cacheArtifacts(ctx, info.Account, result)
			return result, nil
		case constant.TaskStatusFailed:
			logger.LogWarn(ctx, "任务", taskId, "失败:", result.FailReason)
			return result, nil
		}
	}
	return nil, errors.Wrapf(ErrGenerationTimeout, "task %s", taskId)
}

// cacheArtifacts 把产物落到本地盘，失败只记日志不影响返回
func (h *GenerationHandler) cacheArtifacts(ctx context.Context, account *model.Account, result *dto.TaskResult) {
	if h.fileCache == nil || !setting.FileCacheEnabled() || len(result.URLs) == 0 {
		return
	}
	client, err := ClientForAccount(account)
	if err != nil {
		return
	}
	downloadClient := NewTimeoutClient(client, 2*time.Minute)
	for _, rawURL := range result.URLs {
		relative, err := h.fileCache.SaveFromURL(ctx, downloadClient, rawURL)
		if err != nil {
			logger.LogWarn(ctx, "产物落盘失败:", err.Error())
			continue
		}
		result.LocalURLs = append(result.LocalURLs, LocalFileURL(relative))
	}
}

// syncVideoQuota 拉一次上游配额并回写账号
func (h *GenerationHandler) syncVideoQuota(ctx context.Context, account *model.Account) {
	info, err := h.relayInfo(account)
	if err != nil {
		return
	}
	snapshot, err := sora.FetchLimits(ctx, info)
	if err != nil {
		logger.LogWarn(ctx, "账号", account.Id, "配额同步失败:", err.Error())
		return
	}
	fields := map[string]interface{}{
		"sora2_remaining_count": snapshot.Remaining,
	}
	if snapshot.Total > 0 {
		fields["sora2_total_count"] = snapshot.Total
	}
	if snapshot.Remaining <= 0 && snapshot.ResetAt != nil {
		fields["sora2_cooldown_until"] = *snapshot.ResetAt
		logger.LogInfo(ctx, "账号", account.Id, "视频配额耗尽，冷却至", snapshot.ResetAt.Format("2006-01-02 15:04:05"))
	}
	if err := h.store.UpdateAccountFields(account.Id, fields); err != nil {
		logger.LogError(ctx, "配额回写失败:", err.Error())
		return
	}
	if fresh, err := h.store.GetAccountById(account.Id); err == nil {
		h.cache.ApplyUpdate(fresh)
	}
}

// InspectAccount 主动拉上游账号概况并回填记录，入池校验和手动刷新共用
func (h *GenerationHandler) InspectAccount(ctx context.Context, account *model.Account) (*sora.AccountProfile, error) {
	info, err := h.relayInfo(account)
	if err != nil {
		return nil, err
	}
	profile, err := sora.FetchProfile(ctx, info)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if profile.Username != "" {
		fields["username"] = profile.Username
	}
	if profile.Name != "" {
		fields["name"] = profile.Name
	}
	if profile.Email != "" && account.Email == "" {
		fields["email"] = profile.Email
	}
	if profile.PlanType != "" {
		fields["plan_type"] = profile.PlanType
	}
	if profile.PlanTitle != "" {
		fields["plan_title"] = profile.PlanTitle
	}
	if profile.SubscriptionEnd != nil {
		fields["subscription_end"] = *profile.SubscriptionEnd
	}
	fields["sora2_supported"] = profile.Sora2Supported
	if profile.InviteCode != "" {
		fields["sora2_invite_code"] = profile.InviteCode
		fields["sora2_redeemed_count"] = profile.RedeemedCount
		fields["sora2_total_count"] = profile.TotalCount
	}
	if err := h.store.UpdateAccountFields(account.Id, fields); err != nil {
		return nil, err
	}
	if fresh, err := h.store.GetAccountById(account.Id); err == nil {
		h.cache.ApplyUpdate(fresh)
	}
	return profile, nil
}

// RefreshAccountQuota 管理端手动触发的配额对齐
func (h *GenerationHandler) RefreshAccountQuota(ctx context.Context, account *model.Account) {
	h.syncVideoQuota(ctx, account)
}

func (h *GenerationHandler) relayInfo(account *model.Account) (*relaychannel.RelayInfo, error) {
	client, err := ClientForAccount(account)
	if err != nil {
		return nil, err
	}
	return &relaychannel.RelayInfo{
		Account:   account,
		Client:    NewTimeoutClient(client, setting.SoraTimeout()),
		BaseURL:   strings.TrimSuffix(setting.SoraBaseURL(), "/"),
		UserAgent: ResolveUserAgent(),
	}, nil
}

func classifyUpstreamFailure(err error) (int, string) {
	if ue := asUpstreamError(err); ue != nil {
		return ue.StatusCode, ue.Message
	}
	return 0, err.Error()
}

func asUpstreamError(err error) *relaychannel.UpstreamError {
	var ue *relaychannel.UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}
