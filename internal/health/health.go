// Package health provides the liveness and readiness endpoints served by
// the gateway and the shop services.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Check is a named readiness check.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// checkFunc adapts a function to the Check interface.
type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c *checkFunc) Name() string                    { return c.name }
func (c *checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheckFunc creates a Check from a function.
func NewCheckFunc(name string, fn func(ctx context.Context) error) Check {
	return &checkFunc{name: name, fn: fn}
}

// NewHTTPCheck creates a Check that probes an HTTP endpoint. Any response
// below 500 counts as healthy; an auth challenge still proves the target
// is serving.
func NewHTTPCheck(name, url string, timeout time.Duration) Check {
	client := &http.Client{Timeout: timeout}

	return NewCheckFunc(name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("unhealthy status %d", resp.StatusCode)
		}

		return nil
	})
}

// Checker aggregates readiness checks and the draining flag used during
// graceful shutdown.
type Checker struct {
	version string

	mu       sync.RWMutex
	checks   []Check
	draining bool
}

// NewChecker creates a checker reporting the given version.
func NewChecker(version string) *Checker {
	return &Checker{version: version}
}

// AddCheck registers a readiness check.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// SetDraining marks the process as draining; readiness fails from then on
// so load balancers stop routing while in-flight requests finish.
func (c *Checker) SetDraining(draining bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = draining
}

// Draining reports whether the process is draining.
func (c *Checker) Draining() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draining
}

// Version returns the reported version.
func (c *Checker) Version() string {
	return c.version
}

// Run executes all checks and returns the per-check errors, nil values
// included, keyed by check name.
func (c *Checker) Run(ctx context.Context) map[string]error {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for _, check := range checks {
		results[check.Name()] = check.Check(ctx)
	}

	return results
}
