package service

import (
	"sync"
	"testing"

	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/model"
)

func testLimitedAccount(id, imageLimit, videoLimit int) *model.Account {
	return &model.Account{
		Id:               id,
		ImageConcurrency: imageLimit,
		VideoConcurrency: videoLimit,
	}
}

func TestConcurrencyManagerLimit(t *testing.T) {
	t.Run("并发抢占不超过上限", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(1, 4, -1)

		var wg sync.WaitGroup
		var mu sync.Mutex
		acquired := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if cm.TryAcquire(account, constant.GenerationImage) {
					mu.Lock()
					acquired++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if acquired != 4 {
			t.Fatalf("expected 4 acquisitions, got %d", acquired)
		}
		if got := cm.InFlight(1, constant.GenerationImage); got != 4 {
			t.Fatalf("expected 4 in flight, got %d", got)
		}
	})

	t.Run("负数上限表示不限并发", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(2, -1, -1)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !cm.TryAcquire(account, constant.GenerationVideo) {
					t.Error("unlimited account should always acquire")
				}
			}()
		}
		wg.Wait()

		if got := cm.InFlight(2, constant.GenerationVideo); got != 50 {
			t.Fatalf("expected 50 in flight, got %d", got)
		}
	})

	t.Run("上限为零时直接拒绝", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(3, 0, 0)
		if cm.CanUse(account, constant.GenerationImage) {
			t.Fatal("zero limit should not be usable")
		}
		if cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("zero limit should not acquire")
		}
	})
}

func TestConcurrencyManagerRelease(t *testing.T) {
	t.Run("归还后可以再次获取", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(1, 1, -1)

		if !cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("first acquire should succeed")
		}
		if cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("second acquire should fail at limit 1")
		}
		cm.Release(1, constant.GenerationImage)
		if !cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("acquire after release should succeed")
		}
	})

	t.Run("重复归还不会出现负计数", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(2, 2, -1)

		cm.TryAcquire(account, constant.GenerationImage)
		cm.Release(2, constant.GenerationImage)
		cm.Release(2, constant.GenerationImage)
		if got := cm.InFlight(2, constant.GenerationImage); got != 0 {
			t.Fatalf("expected 0 in flight, got %d", got)
		}
		if !cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("acquire should succeed after over-release")
		}
	})

	t.Run("图片和视频额度互不影响", func(t *testing.T) {
		cm := NewConcurrencyManager()
		account := testLimitedAccount(3, 1, 1)

		if !cm.TryAcquire(account, constant.GenerationImage) {
			t.Fatal("image acquire should succeed")
		}
		if !cm.TryAcquire(account, constant.GenerationVideo) {
			t.Fatal("video acquire should not be blocked by image slot")
		}
		image, video := cm.Totals()
		if image != 1 || video != 1 {
			t.Fatalf("expected totals (1,1), got (%d,%d)", image, video)
		}
	})
}
