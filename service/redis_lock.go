package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/setting"
)

// 只有持有方能删自己的锁，防止慢请求释放掉别人续上的锁
const redisLockReleaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisTokenLock 跨实例的账号互斥实现，value 是本进程生成的持有凭证
type RedisTokenLock struct {
	prefix string
	mu     sync.Mutex
	owners map[int]string
}

func NewRedisTokenLock() *RedisTokenLock {
	return &RedisTokenLock{
		prefix: "sora2api:account_lock:",
		owners: make(map[int]string),
	}
}

func (l *RedisTokenLock) key(accountId int) string {
	return l.prefix + strconv.Itoa(accountId)
}

func (l *RedisTokenLock) IsLocked(accountId int) bool {
	exists, err := common.RedisExists(context.Background(), l.key(accountId))
	if err != nil {
		common.SysError("redis lock check failed: " + err.Error())
		return false
	}
	return exists
}

func (l *RedisTokenLock) Acquire(accountId int, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = setting.LockTimeout()
	}
	owner := common.GetUUID()
	ok, err := common.RedisSetNX(context.Background(), l.key(accountId), owner, ttl)
	if err != nil {
		// Redis 故障时放行，宁可短暂并发也不能让整个池子卡死
		common.SysError("redis lock acquire failed: " + err.Error())
		return true
	}
	if !ok {
		return false
	}
	l.mu.Lock()
	l.owners[accountId] = owner
	l.mu.Unlock()
	return true
}

func (l *RedisTokenLock) Release(accountId int) {
	l.mu.Lock()
	owner, held := l.owners[accountId]
	delete(l.owners, accountId)
	l.mu.Unlock()
	if !held {
		return
	}
	if _, err := common.RedisEval(context.Background(), redisLockReleaseScript, []string{l.key(accountId)}, owner); err != nil {
		common.SysError("redis lock release failed: " + err.Error())
	}
}

// AcquireNamedLock 通用跨实例锁，用于凭证刷新这类全局只跑一份的任务。
// Redis 未启用时直接成功，单实例下由调用方自己的互斥保证。
// 拿锁失败时返回 (nil, false)。
func AcquireNamedLock(name string, ttl time.Duration) (func(), bool) {
	if !common.RedisEnabled {
		return func() {}, true
	}
	key := "sora2api:lock:" + name
	owner := common.GetUUID()
	ok, err := common.RedisSetNX(context.Background(), key, owner, ttl)
	if err != nil {
		common.SysError("redis named lock acquire failed: " + err.Error())
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	release := func() {
		if _, err := common.RedisEval(context.Background(), redisLockReleaseScript, []string{key}, owner); err != nil {
			common.SysError("redis named lock release failed: " + err.Error())
		}
	}
	return release, true
}
