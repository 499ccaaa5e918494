package host

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// RegisterTask runs task every interval until the host stops. A failing
// run is logged and the task keeps its schedule.
func (h *Host) RegisterTask(name string, interval time.Duration, task func(context.Context) error) error {
	if name == "" || task == nil {
		return fmt.Errorf("task name and function are required")
	}
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive, got %s", name, interval)
	}

	h.taskMu.Lock()
	defer h.taskMu.Unlock()

	if h.stopped {
		return fmt.Errorf("task %s: host is stopped", name)
	}
	if h.taskNames[name] {
		return fmt.Errorf("task %s already registered", name)
	}
	h.taskNames[name] = true

	ctx := h.tasks.Context(context.Background())
	h.tasks.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.tasks.Dying():
				return nil
			case <-ticker.C:
				h.runTask(ctx, name, task)
			}
		}
	})

	h.logger.WithFields(log.Fields{
		"task":     name,
		"interval": interval,
	}).Info("Task registered")
	return nil
}

func (h *Host) runTask(ctx context.Context, name string, task func(context.Context) error) {
	start := time.Now()
	err := task(ctx)

	logger := h.logger.WithFields(log.Fields{
		"task":     name,
		"duration": time.Since(start),
	})
	if err != nil {
		logger.WithError(err).Warn("Task failed")
		return
	}
	logger.Debug("Task completed")
}

func (h *Host) stopTasks() {
	h.taskMu.Lock()
	h.stopped = true
	running := len(h.taskNames) > 0
	h.taskMu.Unlock()

	// A tomb that never tracked a goroutine never dies
	if !running {
		return
	}
	h.tasks.Kill(nil)
	h.tasks.Wait()
}
