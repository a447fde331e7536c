package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"

	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/setting"
)

// AccountRefresher 调度器触发的后台维护动作，具体实现见 TokenRefresher
type AccountRefresher interface {
	// RefreshVideoQuota 视频配额冷却到期后恢复余量
	RefreshVideoQuota(ctx context.Context, accountId int)
	// RefreshExpiringCredentials 批量刷新临期凭证
	RefreshExpiringCredentials(ctx context.Context)
}

// LoadBalancer 从账号池里为一次生成挑选账号。选不出账号不是错误，
// 返回 (nil, nil) 由调用方翻译成对外提示。
type LoadBalancer struct {
	cache       *model.AccountCache
	concurrency *ConcurrencyManager
	locker      AccountLocker
	refresher   AccountRefresher

	checkMu         sync.Mutex
	lastExpiryCheck time.Time
}

func NewLoadBalancer(cache *model.AccountCache, cm *ConcurrencyManager, locker AccountLocker, refresher AccountRefresher) *LoadBalancer {
	return &LoadBalancer{
		cache:       cache,
		concurrency: cm,
		locker:      locker,
		refresher:   refresher,
	}
}

// SelectAccount 按生成类型在候选集里随机挑一个账号
func (lb *LoadBalancer) SelectAccount(ctx context.Context, kind constant.GenerationKind) (*model.Account, error) {
	snap, err := lb.cache.Snapshot()
	if err != nil {
		return nil, err
	}
	lb.maybeScheduleExpiryRefresh(ctx)

	now := time.Now()
	candidates := make([]*model.Account, 0, len(snap.Active))
	for _, account := range snap.Active {
		if !lb.usable(ctx, account, kind, now) {
			continue
		}
		candidates = append(candidates, account)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[rand.Intn(len(candidates))], nil
}

func (lb *LoadBalancer) usable(ctx context.Context, account *model.Account, kind constant.GenerationKind, now time.Time) bool {
	if !account.FeatureEnabled(kind) {
		return false
	}
	switch kind {
	case constant.GenerationVideo:
		if !account.SupportsSora2() {
			return false
		}
		if account.Sora2Cooling(now) {
			return false
		}
		if account.Sora2CooldownElapsed(now) {
			// 冷却刚结束，先异步恢复配额，这一轮不派活
			lb.scheduleQuotaRefresh(ctx, account.Id)
			return false
		}
	case constant.GenerationImage:
		if lb.locker.IsLocked(account.Id) {
			return false
		}
	}
	return lb.concurrency.CanUse(account, kind)
}

func (lb *LoadBalancer) scheduleQuotaRefresh(ctx context.Context, accountId int) {
	if lb.refresher == nil {
		return
	}
	logger.LogInfo(ctx, "账号", accountId, "视频冷却已到期，触发配额恢复")
	gopool.Go(func() {
		lb.refresher.RefreshVideoQuota(context.Background(), accountId)
	})
}

// maybeScheduleExpiryRefresh 按配置的最小间隔触发一次临期凭证检查。
// 检查本身在后台跑，不拖慢当前请求。
func (lb *LoadBalancer) maybeScheduleExpiryRefresh(ctx context.Context) {
	if lb.refresher == nil || !setting.AutoRefreshEnabled() {
		return
	}
	interval := setting.RefreshCheckInterval()
	lb.checkMu.Lock()
	if time.Since(lb.lastExpiryCheck) < interval {
		lb.checkMu.Unlock()
		return
	}
	lb.lastExpiryCheck = time.Now()
	lb.checkMu.Unlock()

	logger.LogDebug(ctx, "触发临期凭证检查")
	gopool.Go(func() {
		lb.refresher.RefreshExpiringCredentials(context.Background())
	})
}
