package service

import (
	"sync"
	"time"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/setting"
)

// AccountLocker 图片生成期间对单账号的互斥占用，同一账号同一时刻只跑一个图片任务
type AccountLocker interface {
	IsLocked(accountId int) bool
	// Acquire 抢占账号，ttl<=0 时用配置里的锁超时。抢占失败返回 false
	Acquire(accountId int, ttl time.Duration) bool
	Release(accountId int)
}

// TokenLock 进程内实现，带到期时间，持有方异常退出后锁会自动失效
type TokenLock struct {
	mu    sync.Mutex
	locks map[int]time.Time
}

func NewTokenLock() *TokenLock {
	return &TokenLock{locks: make(map[int]time.Time)}
}

func (l *TokenLock) IsLocked(accountId int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.locks[accountId]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		// 过期锁顺手清掉
		delete(l.locks, accountId)
		return false
	}
	return true
}

func (l *TokenLock) Acquire(accountId int, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = setting.LockTimeout()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.locks[accountId]; ok && time.Now().Before(exp) {
		return false
	}
	l.locks[accountId] = time.Now().Add(ttl)
	return true
}

func (l *TokenLock) Release(accountId int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, accountId)
}

// NewAccountLocker 按配置选择互斥实现，多实例共享池时切到 Redis
func NewAccountLocker() AccountLocker {
	if common.RedisEnabled && setting.RedisSharedPool() {
		common.SysLog("account locker: redis shared pool")
		return NewRedisTokenLock()
	}
	return NewTokenLock()
}
