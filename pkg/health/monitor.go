package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"
)

// Config tunes the monitor
type Config struct {
	// Interval between rounds of checks
	Interval time.Duration
	// Timeout bounds a single plugin's check
	Timeout time.Duration
	// Threshold is how many consecutive failures make a plugin unhealthy
	Threshold int
}

// DefaultConfig checks every 30s and gives up on a check after 10s
func DefaultConfig() Config {
	return Config{
		Interval:  30 * time.Second,
		Timeout:   10 * time.Second,
		Threshold: 1,
	}
}

type watched struct {
	checker Checker
	report  Report
}

// Monitor checks watched plugins on demand and, once started, on a timer
type Monitor struct {
	cfg    Config
	logger *log.Logger

	mu      sync.RWMutex
	plugins map[string]*watched

	loop    tomb.Tomb
	running bool
}

// NewMonitor creates a monitor. A threshold below one is treated as one.
func NewMonitor(cfg Config, logger *log.Logger) *Monitor {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		plugins: make(map[string]*watched),
	}
}

// Start runs a round of checks every interval until Stop
func (m *Monitor) Start() error {
	if m.cfg.Interval <= 0 {
		return fmt.Errorf("health check interval must be positive, got %s", m.cfg.Interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("health monitor already started")
	}
	m.running = true

	m.loop.Go(func() error {
		ctx := m.loop.Context(context.Background())
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.loop.Dying():
				return nil
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	})
	m.logger.WithField("interval", m.cfg.Interval).Info("Plugin health monitor started")
	return nil
}

// Stop ends periodic checks. It is safe to call on a monitor that never
// started.
func (m *Monitor) Stop() error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return nil
	}

	m.loop.Kill(nil)
	err := m.loop.Wait()
	m.logger.Info("Plugin health monitor stopped")
	return err
}

// Watch starts tracking a plugin, replacing any earlier checker under the
// same name. Its status is Unknown until checked.
func (m *Monitor) Watch(name string, checker Checker) {
	m.mu.Lock()
	m.plugins[name] = &watched{checker: checker, report: Report{Plugin: name}}
	m.mu.Unlock()

	m.logger.WithField("plugin", name).Debug("Watching plugin health")
}

// Forget stops tracking a plugin
func (m *Monitor) Forget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plugins, name)
}

// Report returns the latest report for a plugin
func (m *Monitor) Report(name string) (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.plugins[name]
	if !ok {
		return Report{}, false
	}
	return w.report, true
}

// Reports returns every plugin's latest report, ordered by name
func (m *Monitor) Reports() []Report {
	m.mu.RLock()
	reports := make([]Report, 0, len(m.plugins))
	for _, w := range m.plugins {
		reports = append(reports, w.report)
	}
	m.mu.RUnlock()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Plugin < reports[j].Plugin })
	return reports
}

// Healthy reports whether every watched plugin passed its last check
func (m *Monitor) Healthy() bool {
	for _, r := range m.Reports() {
		if r.Status != Healthy {
			return false
		}
	}
	return true
}

// Failing names the unhealthy plugins in order
func (m *Monitor) Failing() []string {
	var names []string
	for _, r := range m.Reports() {
		if r.Status == Unhealthy {
			names = append(names, r.Plugin)
		}
	}
	return names
}

// CheckNow checks every watched plugin concurrently and returns once all
// results are in
func (m *Monitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.plugins))
	for name, w := range m.plugins {
		checkers[name] = w.checker
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			m.check(ctx, name, checker)
		}(name, checker)
	}
	wg.Wait()
}

func (m *Monitor) check(ctx context.Context, name string, checker Checker) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := checker.HealthCheck(ctx)
	latency := time.Since(start)

	m.mu.Lock()
	w, ok := m.plugins[name]
	var changed bool
	var report Report
	if ok {
		changed = w.report.record(err, latency, m.cfg.Threshold)
		report = w.report
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entry := m.logger.WithFields(log.Fields{
		"plugin":  name,
		"latency": latency,
	})
	switch {
	case changed:
		entry.WithField("failures", report.Failures).Infof("Plugin is now %s", report.Status)
	case err != nil:
		entry.WithError(err).Warn("Plugin health check failed")
	default:
		entry.Debug("Plugin health check passed")
	}
}
