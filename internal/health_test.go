package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status string
		want   map[string]string
	}{
		{
			name:   "no checks",
			checks: nil,
			status: HealthOK,
			want:   map[string]string{},
		},
		{
			name: "all healthy",
			checks: map[string]HealthCheck{
				"storage": func(context.Context) error { return nil },
				"archive": func(context.Context) error { return nil },
			},
			status: HealthOK,
			want:   map[string]string{"storage": "ok", "archive": "ok"},
		},
		{
			name: "one failing",
			checks: map[string]HealthCheck{
				"storage": func(context.Context) error { return nil },
				"archive": func(context.Context) error { return errors.New("head bucket b: NotFound") },
			},
			status: HealthDegraded,
			want:   map[string]string{"storage": "ok", "archive": "head bucket b: NotFound"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := CheckHealth(context.Background(), tt.checks, 0)
			assert.Equal(t, tt.status, report.Status)
			assert.Equal(t, tt.want, report.Checks)
			assert.Equal(t, tt.status == HealthOK, report.Healthy())
		})
	}
}

func TestCheckHealth_Timeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	start := time.Now()
	report := CheckHealth(context.Background(), map[string]HealthCheck{"storage": slow}, 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, report.Healthy())
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["storage"])
}

func TestCheckHealth_StorePing(t *testing.T) {
	repo, err := OpenKVFormRepository(MemoryPath)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	store := NewFormStore(repo, nil)

	report := CheckHealth(context.Background(), map[string]HealthCheck{"storage": store.Ping}, time.Second)
	assert.True(t, report.Healthy())

	store.Close()
	report = CheckHealth(context.Background(), map[string]HealthCheck{"storage": store.Ping}, time.Second)
	assert.False(t, report.Healthy())
}
