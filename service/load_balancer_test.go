package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/model"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts []*model.Account
}

func (s *fakeAccountStore) GetAllAccounts() ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

func (s *fakeAccountStore) GetAccountById(id int) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Id == id {
			return a, nil
		}
	}
	return nil, errors.New("account not found")
}

func (s *fakeAccountStore) UpdateAccountFields(id int, fields map[string]interface{}) error {
	return nil
}

type fakeRefresher struct {
	videoCalls chan int
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{videoCalls: make(chan int, 16)}
}

func (r *fakeRefresher) RefreshVideoQuota(ctx context.Context, accountId int) {
	r.videoCalls <- accountId
}

func (r *fakeRefresher) RefreshExpiringCredentials(ctx context.Context) {}

func testPoolAccount(id int) *model.Account {
	supported := true
	return &model.Account{
		Id:               id,
		Email:            fmt.Sprintf("account%d@example.com", id),
		Token:            "tok",
		IsActive:         true,
		ImageEnabled:     true,
		VideoEnabled:     true,
		Sora2Supported:   &supported,
		ImageConcurrency: -1,
		VideoConcurrency: -1,
	}
}

func newTestBalancer(store *fakeAccountStore, refresher AccountRefresher) (*LoadBalancer, *ConcurrencyManager, *TokenLock) {
	cache := model.NewAccountCache(store, time.Minute)
	cm := NewConcurrencyManager()
	locker := NewTokenLock()
	return NewLoadBalancer(cache, cm, locker, refresher), cm, locker
}

func TestLoadBalancerVideoSelection(t *testing.T) {
	t.Run("只挑支持视频且未冷却的账号", func(t *testing.T) {
		usable := testPoolAccount(1)

		unsupported := testPoolAccount(2)
		unsupported.Sora2Supported = nil

		cooling := testPoolAccount(3)
		coolUntil := time.Now().Add(time.Hour)
		cooling.Sora2CooldownUntil = &coolUntil

		disabled := testPoolAccount(4)
		disabled.VideoEnabled = false

		inactive := testPoolAccount(5)
		inactive.IsActive = false

		store := &fakeAccountStore{accounts: []*model.Account{usable, unsupported, cooling, disabled, inactive}}
		lb, _, _ := newTestBalancer(store, newFakeRefresher())

		for i := 0; i < 20; i++ {
			account, err := lb.SelectAccount(context.Background(), constant.GenerationVideo)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account == nil || account.Id != 1 {
				t.Fatalf("expected account 1, got %+v", account)
			}
		}
	})

	t.Run("冷却到期的账号触发配额恢复且本轮不派活", func(t *testing.T) {
		elapsed := testPoolAccount(1)
		pastCooldown := time.Now().Add(-time.Minute)
		elapsed.Sora2CooldownUntil = &pastCooldown

		store := &fakeAccountStore{accounts: []*model.Account{elapsed}}
		refresher := newFakeRefresher()
		lb, _, _ := newTestBalancer(store, refresher)

		account, err := lb.SelectAccount(context.Background(), constant.GenerationVideo)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if account != nil {
			t.Fatalf("elapsed-cooldown account should be excluded, got %d", account.Id)
		}

		select {
		case id := <-refresher.videoCalls:
			if id != 1 {
				t.Fatalf("expected refresh for account 1, got %d", id)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("quota refresh was not triggered")
		}
	})
}

func TestLoadBalancerImageSelection(t *testing.T) {
	t.Run("跳过被锁定的账号", func(t *testing.T) {
		a := testPoolAccount(1)
		b := testPoolAccount(2)
		store := &fakeAccountStore{accounts: []*model.Account{a, b}}
		lb, _, locker := newTestBalancer(store, newFakeRefresher())

		locker.Acquire(1, time.Minute)
		for i := 0; i < 20; i++ {
			account, err := lb.SelectAccount(context.Background(), constant.GenerationImage)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account == nil || account.Id != 2 {
				t.Fatalf("expected account 2, got %+v", account)
			}
		}
	})

	t.Run("并发额度用尽的账号被排除", func(t *testing.T) {
		limited := testPoolAccount(1)
		limited.ImageConcurrency = 1
		spare := testPoolAccount(2)
		store := &fakeAccountStore{accounts: []*model.Account{limited, spare}}
		lb, cm, _ := newTestBalancer(store, newFakeRefresher())

		if !cm.TryAcquire(limited, constant.GenerationImage) {
			t.Fatal("setup acquire should succeed")
		}
		for i := 0; i < 20; i++ {
			account, err := lb.SelectAccount(context.Background(), constant.GenerationImage)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account == nil || account.Id != 2 {
				t.Fatalf("expected account 2, got %+v", account)
			}
		}
	})

	t.Run("无候选账号返回空而不是错误", func(t *testing.T) {
		store := &fakeAccountStore{}
		lb, _, _ := newTestBalancer(store, newFakeRefresher())
		account, err := lb.SelectAccount(context.Background(), constant.GenerationImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if account != nil {
			t.Fatalf("expected nil account, got %d", account.Id)
		}
	})

	t.Run("多个候选时选择大致均匀", func(t *testing.T) {
		store := &fakeAccountStore{accounts: []*model.Account{
			testPoolAccount(1), testPoolAccount(2), testPoolAccount(3),
		}}
		lb, _, _ := newTestBalancer(store, newFakeRefresher())

		seen := make(map[int]int)
		for i := 0; i < 300; i++ {
			account, err := lb.SelectAccount(context.Background(), constant.GenerationImage)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account == nil {
				t.Fatal("expected a candidate")
			}
			seen[account.Id]++
		}
		for id := 1; id <= 3; id++ {
			if seen[id] == 0 {
				t.Fatalf("account %d was never selected: %v", id, seen)
			}
		}
	})
}
