package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/hancat/sora2api/common"
)

// AccountSnapshot is an immutable view of the pool. Readers keep whatever
// snapshot pointer they obtained; mutations swap in a fresh one.
type AccountSnapshot struct {
	All        []*Account
	Active     []*Account
	ByID       map[int]*Account
	CapturedAt time.Time
}

// AccountCache is a TTL read-through cache over the account store. One store
// read per staleness window, no matter how many goroutines hit it at once.
type AccountCache struct {
	store AccountStore
	ttl   time.Duration

	mu          sync.RWMutex // 保护下面三个字段
	snap        *AccountSnapshot
	lastRefresh time.Time
	dirty       bool

	refreshMu sync.Mutex // 刷新单写者
}

func NewAccountCache(store AccountStore, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AccountCache{
		store: store,
		ttl:   ttl,
		dirty: true,
	}
}

func (c *AccountCache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

func (c *AccountCache) staleLocked() bool {
	if c.dirty || c.snap == nil {
		return true
	}
	return time.Since(c.lastRefresh) > c.ttl
}

// Invalidate marks the cache dirty so the next read refreshes.
func (c *AccountCache) Invalidate() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Refresh reloads from the store if the cache is stale. Concurrent callers
// collapse onto a single store read via the double-check under refreshMu.
func (c *AccountCache) Refresh() error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.mu.RLock()
	stale := c.staleLocked()
	c.mu.RUnlock()
	if !stale {
		return nil
	}
	accounts, err := c.store.GetAllAccounts()
	if err != nil {
		return err
	}
	now := time.Now()
	snap := buildSnapshot(accounts, now)
	c.mu.Lock()
	c.snap = snap
	c.lastRefresh = now
	c.dirty = false
	c.mu.Unlock()
	if common.DebugEnabled {
		common.SysLog(fmt.Sprintf("account cache refreshed: %d total, %d active", len(snap.All), len(snap.Active)))
	}
	return nil
}

// Snapshot returns the current view, refreshing first when stale.
func (c *AccountCache) Snapshot() (*AccountSnapshot, error) {
	if c.IsStale() {
		if err := c.Refresh(); err != nil {
			return nil, err
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, nil
}

// Get returns one account from the (possibly refreshed) snapshot.
func (c *AccountCache) Get(id int) (*Account, error) {
	snap, err := c.Snapshot()
	if err != nil {
		return nil, err
	}
	account, ok := snap.ByID[id]
	if !ok {
		return nil, fmt.Errorf("账号 %d 不存在", id)
	}
	return account, nil
}

// ApplyUpdate folds a fresh account record into the snapshot immediately
// (read-your-writes) without resetting the TTL clock.
func (c *AccountCache) ApplyUpdate(account *Account) {
	if account == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		c.dirty = true
		return
	}
	all := make([]*Account, 0, len(c.snap.All)+1)
	replaced := false
	for _, a := range c.snap.All {
		if a.Id == account.Id {
			all = append(all, account)
			replaced = true
		} else {
			all = append(all, a)
		}
	}
	if !replaced {
		all = append(all, account)
	}
	snap := buildSnapshot(all, time.Now())
	snap.CapturedAt = c.snap.CapturedAt
	c.snap = snap
}

// ApplyRemoval drops an account from the snapshot immediately.
func (c *AccountCache) ApplyRemoval(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return
	}
	all := make([]*Account, 0, len(c.snap.All))
	for _, a := range c.snap.All {
		if a.Id != id {
			all = append(all, a)
		}
	}
	snap := buildSnapshot(all, time.Now())
	snap.CapturedAt = c.snap.CapturedAt
	c.snap = snap
}

func buildSnapshot(accounts []*Account, now time.Time) *AccountSnapshot {
	snap := &AccountSnapshot{
		All:        accounts,
		Active:     make([]*Account, 0, len(accounts)),
		ByID:       make(map[int]*Account, len(accounts)),
		CapturedAt: now,
	}
	for _, a := range accounts {
		snap.ByID[a.Id] = a
		if a.IsEligible(now) {
			snap.Active = append(snap.Active, a)
		}
	}
	return snap
}
