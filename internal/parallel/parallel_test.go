package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	err := For(context.Background(), n, func(_ int) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_VisitsEachIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	n := 257
	hits := make([]int32, n)
	err := For(context.Background(), n, func(i int) error {
		atomic.AddInt32(&hits[i], 1)
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	err := For(context.Background(), 100, func(_ int) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	// Test that small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	err := For(context.Background(), n, func(_ int) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	for _, cfg := range []Config{
		{Enabled: false},
		{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	} {
		err := For(context.Background(), 64, func(i int) error {
			if i == 17 {
				return boom
			}
			return nil
		}, cfg)
		if !errors.Is(err, boom) {
			t.Errorf("cfg %+v: expected boom, got %v", cfg, err)
		}
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	err := For(context.Background(), 0, func(_ int) error {
		called = true
		return nil
	}, DefaultConfig())
	if err != nil || called {
		t.Errorf("expected no-op, got err=%v called=%v", err, called)
	}
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			_ = For(context.Background(), n, func(j int) error {
				atomic.AddInt64(&sum, int64(j))
				return nil
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		seq := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			var sum int64
			_ = For(context.Background(), n, func(j int) error {
				atomic.AddInt64(&sum, int64(j))
				return nil
			}, seq)
		}
	})
}
