package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckReportsEachDependency(t *testing.T) {
	m := NewMonitor(map[string]Check{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, time.Minute, time.Second, nil)

	got := m.Check(context.Background())
	if got["store"] != StatusOK {
		t.Fatalf("expected store ok, got %q", got["store"])
	}
	if got["redis"] != "connection refused" {
		t.Fatalf("unexpected redis status %q", got["redis"])
	}
	if Healthy(got) {
		t.Fatalf("expected unhealthy")
	}
	if snap := m.Snapshot(); snap["redis"] != "connection refused" {
		t.Fatalf("snapshot not recorded: %+v", snap)
	}
}

func TestCheckAppliesTimeout(t *testing.T) {
	m := NewMonitor(map[string]Check{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, time.Second, 20*time.Millisecond, nil)

	got := m.Check(context.Background())
	if got["slow"] != context.DeadlineExceeded.Error() {
		t.Fatalf("expected deadline error, got %q", got["slow"])
	}
}

func TestStartRunsUntilCanceled(t *testing.T) {
	var calls atomic.Int32
	m := NewMonitor(map[string]Check{
		"store": func(context.Context) error {
			calls.Add(1)
			return nil
		},
	}, 10*time.Millisecond, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.Start(ctx)
	deadline := time.Now().Add(time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if calls.Load() < 3 {
		t.Fatalf("expected repeated checks, got %d", calls.Load())
	}
	if !Healthy(m.Snapshot()) {
		t.Fatalf("expected healthy snapshot")
	}
}
