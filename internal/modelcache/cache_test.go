package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iabetor/narrator/internal/runtime"
)

type fakeModel struct {
	name   string
	closed atomic.Bool
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

func loaderFor(m *fakeModel, calls *int32) LoadFunc {
	return func(ctx context.Context) (runtime.Model, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return m, nil
	}
}

func TestGetOrLoad_HitHasNoSideEffect(t *testing.T) {
	c := New(2)
	ctx := context.Background()
	key := Key{"xtts", "internal"}
	var calls int32
	m := &fakeModel{name: "a"}

	h1, err := c.GetOrLoad(ctx, key, loaderFor(m, &calls))
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	h2, err := c.GetOrLoad(ctx, key, loaderFor(&fakeModel{}, &calls))
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
	if h2.Model() != m {
		t.Error("second lookup returned a different model")
	}
	h1.Release()
	h2.Release()
	if m.closed.Load() {
		t.Error("resident model closed after release")
	}
}

func TestGetOrLoad_FlushAllOnOverflow(t *testing.T) {
	var released []string
	c := New(2, WithReleaser(runtime.ReleaserFunc(func(d string) { released = append(released, d) }), "cuda"))
	ctx := context.Background()

	a, b, d := &fakeModel{name: "a"}, &fakeModel{name: "b"}, &fakeModel{name: "d"}
	for _, tc := range []struct {
		key Key
		m   *fakeModel
	}{
		{Key{"xtts", "internal"}, a},
		{Key{"vits", "internal"}, b},
	} {
		h, err := c.GetOrLoad(ctx, tc.key, loaderFor(tc.m, nil))
		if err != nil {
			t.Fatal(err)
		}
		h.Release()
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	h, err := c.GetOrLoad(ctx, Key{"bark", "internal"}, loaderFor(d, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 after flush", c.Len())
	}
	if !a.closed.Load() || !b.closed.Load() {
		t.Error("flushed models were not closed")
	}
	if d.closed.Load() {
		t.Error("new model closed")
	}
	if len(released) != 1 || released[0] != "cuda" {
		t.Errorf("releaser calls = %v, want [cuda]", released)
	}
}

func TestGetOrLoad_NeverExceedsCapacity(t *testing.T) {
	c := New(3)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		key := Key{"vits", string(rune('a' + i))}
		h, err := c.GetOrLoad(ctx, key, loaderFor(&fakeModel{}, nil))
		if err != nil {
			t.Fatal(err)
		}
		h.Release()
		if c.Len() > c.Capacity() {
			t.Fatalf("Len = %d exceeds capacity %d", c.Len(), c.Capacity())
		}
	}
}

func TestGetOrLoad_FailureLeavesCacheEmpty(t *testing.T) {
	c := New(2)
	ctx := context.Background()
	a := &fakeModel{}
	h, _ := c.GetOrLoad(ctx, Key{"xtts", "internal"}, loaderFor(a, nil))
	h.Release()

	boom := errors.New("checkpoint corrupt")
	_, err := c.GetOrLoad(ctx, Key{"vits", "internal"}, func(ctx context.Context) (runtime.Model, error) {
		return nil, boom
	})
	if !errors.Is(err, ErrLoad) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrLoad wrapping cause, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 after failed load", c.Len())
	}
	if c.Contains(Key{"vits", "internal"}) {
		t.Error("failed key stored")
	}
	if !a.closed.Load() {
		t.Error("previous model not closed after failed load")
	}
}

func TestGetOrLoad_NilModelIsFailure(t *testing.T) {
	c := New(1)
	_, err := c.GetOrLoad(context.Background(), Key{"bark", "internal"}, func(ctx context.Context) (runtime.Model, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrLoad) {
		t.Errorf("expected ErrLoad, got %v", err)
	}
}

func TestRelease_RetiredModelClosedOnLastRelease(t *testing.T) {
	c := New(1)
	ctx := context.Background()
	a := &fakeModel{}

	h, _ := c.GetOrLoad(ctx, Key{"xtts", "internal"}, loaderFor(a, nil))
	c.Flush()

	if c.Contains(Key{"xtts", "internal"}) {
		t.Error("flushed key still resident")
	}
	if a.closed.Load() {
		t.Fatal("model in use closed by flush")
	}
	h.Release()
	h.Release()
	if !a.closed.Load() {
		t.Error("retired model not closed on last release")
	}
}

func TestGetOrLoad_SerializesLoads(t *testing.T) {
	c := New(4)
	ctx := context.Background()

	var active, maxActive int32
	load := func(ctx context.Context) (runtime.Model, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &fakeModel{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.GetOrLoad(ctx, Key{"vits", string(rune('a' + i))}, load)
			if err != nil {
				t.Error(err)
				return
			}
			h.Release()
		}(i)
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent loads = %d, want 1", maxActive)
	}
}

func TestGetOrLoad_ConcurrentSameKeyLoadsOnce(t *testing.T) {
	c := New(2)
	ctx := context.Background()
	var calls int32
	m := &fakeModel{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.GetOrLoad(ctx, Key{"xtts", "internal"}, loaderFor(m, &calls))
			if err != nil {
				t.Error(err)
				return
			}
			h.Release()
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}
