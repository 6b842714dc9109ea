package noteapi

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRotateConcurrencySingleWinner(t *testing.T) {
	h := newTestEngine(t, nil)

	pair, err := h.engine.Issue(context.Background(), "alice")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := h.engine.Rotate(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	reused := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrTokenReused) {
			reused++
			continue
		}
		t.Fatalf("unexpected rotate error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one rotation success, got %d", success)
	}
	if reused != n-1 {
		t.Fatalf("expected %d reuse rejections, got %d", n-1, reused)
	}

	if got := h.metrics.Value(MetricReuseDetected); got != n-1 {
		t.Fatalf("expected %d reuse detections recorded, got %d", n-1, got)
	}
}
