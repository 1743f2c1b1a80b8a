package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthChecker_Check(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		checker  HealthChecker
		want     string
		services []Service
	}{
		{
			name:    "AllUp",
			checker: HealthChecker{Remote: up, Redis: up},
			want:    "healthy",
			services: []Service{
				{Name: "API", Status: "up"},
				{Name: "Redis", Status: "up"},
			},
		},
		{
			name:    "RedisDown",
			checker: HealthChecker{Remote: up, Redis: down},
			want:    "degraded",
			services: []Service{
				{Name: "API", Status: "up"},
				{Name: "Redis", Status: "down", Message: "connection refused"},
			},
		},
		{
			name: "RealtimeDownStaysHealthy",
			checker: HealthChecker{Remote: up, Realtime: func() (bool, string) {
				return false, "connecting"
			}},
			want: "healthy",
			services: []Service{
				{Name: "API", Status: "up"},
				{Name: "Realtime", Status: "down", Message: "connecting"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.checker.Check(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q", got.Status, tt.want)
			}
			if diff := cmp.Diff(tt.services, got.Services, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Services mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
