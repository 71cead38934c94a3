// Package health reports the state of the gaze daemon's moving parts.
//
// Components register a Check; the Checker runs them concurrently with a
// per-component timeout and aggregates the results. Critical components
// make the daemon unhealthy when they fail, others only degrade it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 2 * time.Second

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check performs a health check.
type Check func(ctx context.Context) CheckResult

// Component is a health-checkable part of the daemon.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

// NewChecker creates a new Checker.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register adds a component. A component with the same name is replaced.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a check by name.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs all registered checks concurrently.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := run(ctx, comp)

			mu.Lock()
			results[comp.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, result := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = result
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check with its timeout. Panics are reported as
// unhealthy results.
func run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(r)}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: checkCtx.Err().Error()}
	}
	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// Results returns the last result of every component.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		results[k] = v
	}
	return results
}

// OverallStatus aggregates the last results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false
	for name, result := range c.results {
		comp := c.components[name]
		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	switch {
	case hasUnknown:
		return StatusUnknown
	case hasDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Response is the body of the health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Failing    []string               `json:"failing,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs every check and builds the endpoint response.
func (c *Checker) Report(ctx context.Context) Response {
	components := c.Check(ctx)

	var failing []string
	for name, r := range components {
		if r.Status == StatusUnhealthy || r.Status == StatusDegraded {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	c.mu.RLock()
	ready := c.ready
	uptime := time.Since(c.startTime).Round(time.Second)
	c.mu.RUnlock()

	return Response{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Failing:    failing,
		Timestamp:  time.Now(),
	}
}

// Handler serves the health report. Unhealthy and not-ready daemons
// answer 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := c.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		switch {
		case !response.Ready, response.Status == StatusUnhealthy, response.Status == StatusUnknown:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	})
}

// PingCheck wraps a connectivity check such as a database ping.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: what + " unreachable", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " ok"}
	}
}

// LatencyCheck measures a round trip such as a no-op posted to the
// dispatch loop. Round trips slower than slow degrade the component.
func LatencyCheck(roundTrip func(ctx context.Context) error, slow time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		if err := roundTrip(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "round trip failed", Error: err.Error()}
		}
		latency := time.Since(start)
		result := CheckResult{
			Status:  StatusHealthy,
			Details: map[string]any{"latency": latency.String()},
		}
		if latency > slow {
			result.Status = StatusDegraded
			result.Message = "slow round trip"
		}
		return result
	}
}

// FreshnessCheck degrades when the last event, as reported by last, is
// older than maxAge. A zero time means nothing arrived yet, which is
// reported but not treated as a failure.
func FreshnessCheck(what string, last func() time.Time, maxAge time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		t := last()
		if t.IsZero() {
			return CheckResult{Status: StatusHealthy, Message: "no " + what + " yet"}
		}
		age := time.Since(t)
		result := CheckResult{
			Status:  StatusHealthy,
			Details: map[string]any{"age": age.Round(time.Millisecond).String()},
		}
		if age > maxAge {
			result.Status = StatusDegraded
			result.Message = what + " stale"
		}
		return result
	}
}
