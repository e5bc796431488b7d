package db

import (
	"errors"
	"testing"
)

func TestUnhealthy_MarksReport(t *testing.T) {
	report := &HealthReport{
		Status: "healthy",
		Pool:   &PoolStats{TotalConns: 4, MaxConns: 20, Healthy: true},
	}

	got := unhealthy(report, errors.New("connection refused"))

	if got.Status != "unhealthy" {
		t.Errorf("expected status unhealthy, got %q", got.Status)
	}
	if got.Error != "connection refused" {
		t.Errorf("expected error message to be copied, got %q", got.Error)
	}
	if got.Pool.Healthy {
		t.Error("expected pool to be marked unhealthy")
	}
	if got.Pool.TotalConns != 4 {
		t.Errorf("expected pool stats to be preserved, got %d", got.Pool.TotalConns)
	}
}
