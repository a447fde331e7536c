package service

import (
	"sync"

	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/model"
)

type concurrencyKey struct {
	accountId int
	kind      constant.GenerationKind
}

// ConcurrencyManager 按账号和生成类型统计在途请求，作为账号级并发闸门。
// 上限取自账号记录，-1 不限，0 等同于禁用该类型。
type ConcurrencyManager struct {
	mu       sync.Mutex
	inFlight map[concurrencyKey]int
}

func NewConcurrencyManager() *ConcurrencyManager {
	return &ConcurrencyManager{
		inFlight: make(map[concurrencyKey]int),
	}
}

func (cm *ConcurrencyManager) InFlight(accountId int, kind constant.GenerationKind) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.inFlight[concurrencyKey{accountId, kind}]
}

// CanUse 只读判断是否还有额度，不占坑，真正抢坑用 TryAcquire
func (cm *ConcurrencyManager) CanUse(account *model.Account, kind constant.GenerationKind) bool {
	limit := account.ConcurrencyLimit(kind)
	if limit < 0 {
		return true
	}
	return cm.InFlight(account.Id, kind) < limit
}

// TryAcquire 原子地检查并占用一个并发额度，成功后必须配对 Release
func (cm *ConcurrencyManager) TryAcquire(account *model.Account, kind constant.GenerationKind) bool {
	limit := account.ConcurrencyLimit(kind)
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key := concurrencyKey{account.Id, kind}
	if limit >= 0 && cm.inFlight[key] >= limit {
		return false
	}
	cm.inFlight[key]++
	return true
}

// Release 归还额度，重复归还不会把计数打成负数
func (cm *ConcurrencyManager) Release(accountId int, kind constant.GenerationKind) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	key := concurrencyKey{accountId, kind}
	if cm.inFlight[key] <= 1 {
		delete(cm.inFlight, key)
		return
	}
	cm.inFlight[key]--
}

// Totals 当前在途请求总数，供状态接口展示
func (cm *ConcurrencyManager) Totals() (image int, video int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for key, n := range cm.inFlight {
		switch key.kind {
		case constant.GenerationImage:
			image += n
		case constant.GenerationVideo:
			video += n
		}
	}
	return
}
