package service

import (
	"testing"
	"time"
)

func TestTokenLockAcquire(t *testing.T) {
	t.Run("同一账号不能重复抢占", func(t *testing.T) {
		l := NewTokenLock()
		if !l.Acquire(1, time.Minute) {
			t.Fatal("first acquire should succeed")
		}
		if l.Acquire(1, time.Minute) {
			t.Fatal("second acquire on held lock should fail")
		}
		if !l.IsLocked(1) {
			t.Fatal("account should report locked")
		}
	})

	t.Run("不同账号互不影响", func(t *testing.T) {
		l := NewTokenLock()
		if !l.Acquire(1, time.Minute) {
			t.Fatal("acquire account 1 should succeed")
		}
		if !l.Acquire(2, time.Minute) {
			t.Fatal("acquire account 2 should succeed")
		}
	})

	t.Run("零值超时退回配置默认", func(t *testing.T) {
		l := NewTokenLock()
		if !l.Acquire(1, 0) {
			t.Fatal("acquire with zero ttl should succeed")
		}
		if !l.IsLocked(1) {
			t.Fatal("lock with default ttl should be held")
		}
	})
}

func TestTokenLockRelease(t *testing.T) {
	t.Run("释放后可以再次抢占", func(t *testing.T) {
		l := NewTokenLock()
		l.Acquire(1, time.Minute)
		l.Release(1)
		if l.IsLocked(1) {
			t.Fatal("released lock should not be held")
		}
		if !l.Acquire(1, time.Minute) {
			t.Fatal("acquire after release should succeed")
		}
	})

	t.Run("释放未持有的锁是空操作", func(t *testing.T) {
		l := NewTokenLock()
		l.Release(42)
		if l.IsLocked(42) {
			t.Fatal("unheld lock should not be locked")
		}
	})
}

func TestTokenLockExpiry(t *testing.T) {
	t.Run("锁到期后自动失效", func(t *testing.T) {
		l := NewTokenLock()
		if !l.Acquire(1, 20*time.Millisecond) {
			t.Fatal("acquire should succeed")
		}
		if !l.IsLocked(1) {
			t.Fatal("fresh lock should be held")
		}
		time.Sleep(50 * time.Millisecond)
		if l.IsLocked(1) {
			t.Fatal("expired lock should not be held")
		}
		if !l.Acquire(1, time.Minute) {
			t.Fatal("acquire after expiry should succeed")
		}
	})
}
