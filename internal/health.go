package internal

import (
	"context"
	"sync"
	"time"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthCheck checks one dependency of the service.
type HealthCheck func(ctx context.Context) error

// HealthReport is the outcome of CheckHealth. Checks maps each check name
// to "ok" or the error it returned.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (r HealthReport) Healthy() bool {
	return r.Status == HealthOK
}

// CheckHealth runs all checks concurrently. Each check gets at most timeout;
// zero means 5 seconds.
func CheckHealth(ctx context.Context, checks map[string]HealthCheck, timeout time.Duration) HealthReport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := HealthReport{Status: HealthOK, Checks: make(map[string]string, len(checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := HealthOK
			if err := check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = result
			if result != HealthOK {
				report.Status = HealthDegraded
			}
		}()
	}
	wg.Wait()
	return report
}
