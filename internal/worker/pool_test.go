package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockResult struct {
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{err: errors.New("job error")}
	}
	return &mockResult{err: nil}
}

func TestNewPool_Defaults(t *testing.T) {
	if p := NewPool(context.Background(), 0); p.workers != 1 {
		t.Errorf("expected 1 worker for 0 input, got %d", p.workers)
	}
	if p := NewPool(nil, -1); p.workers != 1 {
		t.Errorf("expected 1 worker for negative input, got %d", p.workers)
	}
	if p := NewPool(context.Background(), 5); p.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 10
	for i := 0; i < count; i++ {
		pool.Submit(&mockJob{executed: &executed})
	}
	pool.Close()

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
}

func TestPool_ConcurrentSubmitter(t *testing.T) {
	// Far more jobs than the queue and result buffers hold for 2 workers.
	// The submitter runs alongside Wait, so nothing may wedge.
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 50
	go func() {
		for i := 0; i < count; i++ {
			pool.Submit(&mockJob{executed: &executed})
		}
		pool.Close()
	}()

	done := make(chan []Result, 1)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != count {
			t.Errorf("expected %d results, got %d", count, len(results))
		}
		if atomic.LoadInt32(&executed) != int32(count) {
			t.Errorf("expected %d executed jobs, got %d", count, executed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool deadlocked with a concurrent submitter")
	}
}

func TestPool_ErrorsCollected(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	pool.Submit(&mockJob{shouldErr: true})
	pool.Submit(&mockJob{})
	pool.Close()

	results := pool.Wait()

	var errCount int
	for _, r := range results {
		if r.GetError() != nil {
			errCount++
		}
	}
	if errCount != 1 {
		t.Errorf("expected 1 error result, got %d", errCount)
	}
}

func TestPool_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 2)
	pool.Start()

	var executed int32
	for i := 0; i < 4; i++ {
		pool.Submit(&mockJob{duration: time.Second, executed: &executed})
	}

	cancel()
	pool.Shutdown()

	// Workers must be gone; Submit after cancellation must not block.
	done := make(chan struct{})
	go func() {
		pool.Submit(&mockJob{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after cancellation")
	}
}

func TestSearchLimiter_GlobalCap(t *testing.T) {
	limiter := NewSearchLimiter(100, 1)

	if !limiter.Allow() {
		t.Fatal("first call should be admitted")
	}
	// Burst of 1 consumed; immediate second call must be throttled.
	if limiter.Allow() {
		t.Error("second immediate call should be throttled")
	}
}

func TestSearchLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewSearchLimiter(0.001, 1)
	limiter.Allow() // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("Wait should fail once the context is done")
	}
}

func TestSearchLimiter_PerDomainIndependent(t *testing.T) {
	limiter := NewSearchLimiter(1000, 100)
	limiter.SetDomainRate("slow.example", 0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// First call drains slow.example's burst.
	if err := limiter.WaitDomain(ctx, "slow.example"); err != nil {
		t.Fatalf("first domain call should pass: %v", err)
	}
	// Other domains are unaffected.
	if err := limiter.WaitDomain(ctx, "fast.example"); err != nil {
		t.Fatalf("independent domain should pass: %v", err)
	}
	// slow.example is now throttled beyond the context deadline.
	if err := limiter.WaitDomain(ctx, "slow.example"); err == nil {
		t.Error("throttled domain should time out")
	}
}
