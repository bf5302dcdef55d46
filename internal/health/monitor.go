package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const StatusOK = "ok"

// Check probes a single dependency.
type Check func(ctx context.Context) error

// Monitor runs dependency checks on demand and, once started, on an interval,
// logging whenever a dependency changes state.
type Monitor struct {
	checks    map[string]Check
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	startOnce sync.Once

	mu   sync.RWMutex
	last map[string]string
}

// NewMonitor constructs a monitor for the named checks.
func NewMonitor(checks map[string]Check, interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checks:   checks,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		last:     map[string]string{},
	}
}

// Start begins the monitoring loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil || len(m.checks) == 0 {
		return
	}
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs every probe concurrently and returns name -> "ok" or the error text.
func (m *Monitor) Check(ctx context.Context) map[string]string {
	results := make(map[string]string, len(m.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range m.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			status := StatusOK
			if err := check(timeoutCtx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	m.record(ctx, results)
	return results
}

// Snapshot returns the most recent results.
func (m *Monitor) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// Healthy reports whether every result is ok.
func Healthy(results map[string]string) bool {
	for _, status := range results {
		if status != StatusOK {
			return false
		}
	}
	return true
}

func (m *Monitor) record(ctx context.Context, results map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := results[name]
		prev, seen := m.last[name]
		switch {
		case status != StatusOK && prev != status:
			m.logger.WarnContext(ctx, "dependency unhealthy", slog.String("dependency", name), slog.String("error", status))
		case status == StatusOK && seen && prev != StatusOK:
			m.logger.InfoContext(ctx, "dependency recovered", slog.String("dependency", name))
		}
		m.last[name] = status
	}
}
