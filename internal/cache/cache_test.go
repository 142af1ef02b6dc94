package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoad_CachesValue(t *testing.T) {
	c := New[int](10, time.Minute)
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		if err != nil {
			t.Fatalf("GetOrLoad() error = %v", err)
		}
		if v != 42 {
			t.Errorf("GetOrLoad() = %d, want 42", v)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[string](10, time.Minute)
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad() error = %v, want %v", err, boom)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("failed load should not be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[int](10, time.Minute)
	n := 0
	load := func(ctx context.Context) (int, error) {
		n++
		return n, nil
	}

	first, _ := c.GetOrLoad(context.Background(), "k", load)
	c.Invalidate("k")
	second, _ := c.GetOrLoad(context.Background(), "k", load)
	if first == second {
		t.Errorf("GetOrLoad() after Invalidate = %d, want a fresh value", second)
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d, want 0", c.Len())
	}
}

func TestGetOrLoad_Expiry(t *testing.T) {
	c := New[int](10, 20*time.Millisecond)
	var n atomic.Int32
	load := func(ctx context.Context) (int, error) {
		return int(n.Add(1)), nil
	}

	c.GetOrLoad(context.Background(), "k", load)
	time.Sleep(60 * time.Millisecond)
	v, _ := c.GetOrLoad(context.Background(), "k", load)
	if v != 2 {
		t.Errorf("GetOrLoad() after ttl = %d, want 2", v)
	}
}

func TestGetOrLoad_SharesConcurrentLoads(t *testing.T) {
	c := New[int](10, time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.GetOrLoad(context.Background(), "k", load); err != nil || v != 7 {
				t.Errorf("GetOrLoad() = %d, %v, want 7, nil", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("load called %d times, want 1", got)
	}
}

func TestInvalidate_DuringLoad(t *testing.T) {
	c := New[int](10, time.Minute)
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int)
	go func() {
		v, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		if err != nil {
			t.Errorf("GetOrLoad() error = %v", err)
		}
		done <- v
	}()

	<-started
	c.Invalidate("k")
	close(release)
	if v := <-done; v != 1 {
		t.Errorf("in-flight GetOrLoad() = %d, want 1", v)
	}

	if v, ok := c.Get("k"); ok {
		t.Errorf("Get() = %d after invalidation during load, want miss", v)
	}
	v, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (int, error) { return 2, nil })
	if err != nil || v != 2 {
		t.Errorf("GetOrLoad() after invalidation = %d, %v; want 2", v, err)
	}
}

func TestPurge_DuringLoad(t *testing.T) {
	c := New[int](10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()

	<-started
	c.Purge()
	close(release)
	<-done

	if _, ok := c.Get("k"); ok {
		t.Error("Get() hit after purge during load, want miss")
	}
}
