package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthy(context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		register func(c *Checker)
		want     Status
	}{
		{"empty", func(c *Checker) {}, StatusHealthy},
		{"all healthy", func(c *Checker) {
			c.RegisterFunc("a", true, healthy)
			c.RegisterFunc("b", false, healthy)
		}, StatusHealthy},
		{"critical failure", func(c *Checker) {
			c.RegisterFunc("a", true, unhealthy)
			c.RegisterFunc("b", false, healthy)
		}, StatusUnhealthy},
		{"optional failure", func(c *Checker) {
			c.RegisterFunc("a", true, healthy)
			c.RegisterFunc("b", false, unhealthy)
		}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.register(c)
			c.Check(context.Background())
			if got := c.OverallStatus(); got != tt.want {
				t.Errorf("OverallStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, healthy)
	if got := c.OverallStatus(); got != StatusUnknown {
		t.Errorf("OverallStatus() before any check = %s, want unknown", got)
	}
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("broken", false, func(context.Context) CheckResult { panic("boom") })

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy || results["slow"].Message != "check timed out" {
		t.Errorf("slow result = %+v", results["slow"])
	}
	if results["broken"].Status != StatusUnhealthy || results["broken"].Error != "boom" {
		t.Errorf("broken result = %+v", results["broken"])
	}
	if got := c.Results()["slow"].Status; got != StatusUnhealthy {
		t.Errorf("stored result = %s", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, PingCheck("journal", func(context.Context) error { return nil }))
	c.RegisterFunc("tracker", false, FreshnessCheck("samples", func() time.Time {
		return time.Now().Add(-time.Minute)
	}, time.Second))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready: status = %d, want 503", rec.Code)
	}

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: status = %d, want 200", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
	if len(resp.Failing) != 1 || resp.Failing[0] != "tracker" {
		t.Errorf("failing = %v", resp.Failing)
	}
}

func TestPingCheck(t *testing.T) {
	check := PingCheck("journal", func(context.Context) error { return errors.New("locked") })
	r := check(context.Background())
	if r.Status != StatusUnhealthy || r.Error != "locked" {
		t.Errorf("result = %+v", r)
	}
}

func TestLatencyCheck(t *testing.T) {
	fast := LatencyCheck(func(context.Context) error { return nil }, time.Second)
	if r := fast(context.Background()); r.Status != StatusHealthy {
		t.Errorf("fast = %+v", r)
	}

	slow := LatencyCheck(func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, time.Millisecond)
	if r := slow(context.Background()); r.Status != StatusDegraded {
		t.Errorf("slow = %+v", r)
	}

	failed := LatencyCheck(func(context.Context) error { return errors.New("stopped") }, time.Second)
	if r := failed(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("failed = %+v", r)
	}
}

func TestFreshnessCheckWithoutEvents(t *testing.T) {
	check := FreshnessCheck("samples", func() time.Time { return time.Time{} }, time.Second)
	if r := check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("result = %+v", r)
	}
}
