// Package health keeps track of whether each loaded plugin is working and
// serves that state under /health.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tintoy/confluence-docfx-import/pkg/plugin"
)

// Status is a plugin's health as of its last check
type Status int

const (
	// Unknown until the first check completes
	Unknown Status = iota
	Healthy
	Unhealthy
)

var statusNames = [...]string{"unknown", "healthy", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[Unknown]
	}
	return statusNames[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Report is the outcome of the checks run against one plugin
type Report struct {
	Plugin    string        `json:"name"`
	Status    Status        `json:"status"`
	CheckedAt time.Time     `json:"lastCheckTime"`
	HealthyAt time.Time     `json:"lastHealthyTime"`
	Failures  int           `json:"failureCount"`
	Error     string        `json:"errorMessage,omitempty"`
	Latency   time.Duration `json:"responseTime"`
}

// record folds one check result into r and reports whether the status
// changed. A plugin turns unhealthy after threshold consecutive failures.
func (r *Report) record(err error, latency time.Duration, threshold int) bool {
	before := r.Status
	r.CheckedAt = time.Now()
	r.Latency = latency

	if err == nil {
		r.Status = Healthy
		r.HealthyAt = r.CheckedAt
		r.Failures = 0
		r.Error = ""
	} else {
		r.Failures++
		r.Error = err.Error()
		if r.Failures >= threshold {
			r.Status = Unhealthy
		}
	}
	return r.Status != before
}

// Checker is implemented by plugins that can test themselves
type Checker interface {
	HealthCheck(ctx context.Context) error
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// CheckerFor picks how p is checked: its own HealthCheck if it has one,
// otherwise whether it reports itself initialized. Plugins offering
// neither always pass.
func CheckerFor(p plugin.Plugin) Checker {
	switch v := p.(type) {
	case Checker:
		return v
	case plugin.Initializable:
		return checkFunc(func(context.Context) error {
			if v.IsInitialized() {
				return nil
			}
			return fmt.Errorf("plugin %s is not initialized", p.Name())
		})
	default:
		return checkFunc(func(context.Context) error { return nil })
	}
}
