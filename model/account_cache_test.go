package model

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingStore 记录读库次数，账号数据全在内存里
type countingStore struct {
	mu       sync.Mutex
	accounts []*Account
	reads    atomic.Int64
}

func (s *countingStore) GetAllAccounts() ([]*Account, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *countingStore) GetAccountById(id int) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Id == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("账号 %d 不存在", id)
}

func (s *countingStore) UpdateAccountFields(id int, fields map[string]interface{}) error {
	return nil
}

func cacheTestAccount(id int) *Account {
	return &Account{
		Id:       id,
		Email:    fmt.Sprintf("acct%d@example.com", id),
		Token:    "tok",
		IsActive: true,
	}
}

func TestAccountCacheSingleReadUnderConcurrency(t *testing.T) {
	store := &countingStore{accounts: []*Account{cacheTestAccount(1), cacheTestAccount(2)}}
	cache := NewAccountCache(store, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cache.Snapshot()
			if err != nil {
				t.Error(err)
				return
			}
			if len(snap.All) != 2 {
				t.Errorf("expected 2 accounts, got %d", len(snap.All))
			}
		}()
	}
	wg.Wait()

	if got := store.reads.Load(); got != 1 {
		t.Errorf("并发读只允许打一次库, got %d reads", got)
	}
}

func TestAccountCacheStaleness(t *testing.T) {
	store := &countingStore{accounts: []*Account{cacheTestAccount(1)}}
	cache := NewAccountCache(store, 20*time.Millisecond)

	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if got := store.reads.Load(); got != 1 {
		t.Fatalf("TTL 内不应回源, got %d reads", got)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if got := store.reads.Load(); got != 2 {
		t.Errorf("过期后必须回源, got %d reads", got)
	}
}

func TestAccountCacheInvalidate(t *testing.T) {
	store := &countingStore{accounts: []*Account{cacheTestAccount(1)}}
	cache := NewAccountCache(store, time.Minute)

	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate()
	if !cache.IsStale() {
		t.Fatal("invalidate 后必须判定为过期")
	}
	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}
	if got := store.reads.Load(); got != 2 {
		t.Errorf("expected a fresh read after invalidate, got %d", got)
	}
}

func TestAccountCacheApplyUpdate(t *testing.T) {
	store := &countingStore{accounts: []*Account{cacheTestAccount(1)}}
	cache := NewAccountCache(store, time.Minute)
	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}

	t.Run("改写已有账号立即可见", func(t *testing.T) {
		updated := cacheTestAccount(1)
		updated.IsActive = false
		cache.ApplyUpdate(updated)

		got, err := cache.Get(1)
		if err != nil {
			t.Fatal(err)
		}
		if got.IsActive {
			t.Error("write must be visible without waiting for a refresh")
		}
		snap, _ := cache.Snapshot()
		if len(snap.Active) != 0 {
			t.Errorf("停用的账号不应再出现在 Active 里, got %d", len(snap.Active))
		}
	})

	t.Run("新账号直接并入快照", func(t *testing.T) {
		cache.ApplyUpdate(cacheTestAccount(7))
		got, err := cache.Get(7)
		if err != nil {
			t.Fatal(err)
		}
		if got.Email != "acct7@example.com" {
			t.Errorf("unexpected account: %+v", got)
		}
	})

	t.Run("合并写入不重置 TTL 也不回源", func(t *testing.T) {
		if got := store.reads.Load(); got != 1 {
			t.Errorf("ApplyUpdate 不应触发读库, got %d reads", got)
		}
	})
}

func TestAccountCacheApplyRemoval(t *testing.T) {
	store := &countingStore{accounts: []*Account{cacheTestAccount(1), cacheTestAccount(2)}}
	cache := NewAccountCache(store, time.Minute)
	if _, err := cache.Snapshot(); err != nil {
		t.Fatal(err)
	}

	cache.ApplyRemoval(1)
	if _, err := cache.Get(1); err == nil {
		t.Error("removed account must disappear from the snapshot")
	}
	snap, _ := cache.Snapshot()
	if len(snap.All) != 1 || snap.All[0].Id != 2 {
		t.Errorf("剩余账号不对: %+v", snap.All)
	}
	if got := store.reads.Load(); got != 1 {
		t.Errorf("removal must not hit the store, got %d reads", got)
	}
}

func TestAccountCacheActiveFiltering(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	inactive := cacheTestAccount(2)
	inactive.IsActive = false
	cooling := cacheTestAccount(3)
	cooling.CooledUntil = &future
	expired := cacheTestAccount(4)
	expired.ExpiryTime = &past
	recovered := cacheTestAccount(5)
	recovered.CooledUntil = &past // 冷却已过，应算活跃

	store := &countingStore{accounts: []*Account{
		cacheTestAccount(1), inactive, cooling, expired, recovered,
	}}
	cache := NewAccountCache(store, time.Minute)

	snap, err := cache.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.All) != 5 {
		t.Fatalf("expected 5 accounts total, got %d", len(snap.All))
	}
	if len(snap.Active) != 2 {
		t.Fatalf("只有 1 和 5 算活跃, got %d", len(snap.Active))
	}
	for _, a := range snap.Active {
		if a.Id != 1 && a.Id != 5 {
			t.Errorf("unexpected active account %d", a.Id)
		}
	}
}
