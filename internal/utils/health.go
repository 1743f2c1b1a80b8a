package utils

import (
	"context"
	"time"
)

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  []Service `json:"services"`
}

type Service struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker pings the agent's dependencies. Nil pingers are skipped.
// The push channel is reported but never degrades the status, since
// refetching works without it.
type HealthChecker struct {
	Remote   Pinger
	Redis    Pinger
	Realtime func() (connected bool, state string)
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	var services []Service
	overallStatus := "healthy"

	check := func(name string, p Pinger) {
		service := Service{Name: name}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			service.Status = "down"
			service.Message = err.Error()
			overallStatus = "degraded"
		} else {
			service.Status = "up"
		}
		services = append(services, service)
	}

	if h.Remote != nil {
		check("API", h.Remote)
	}
	if h.Redis != nil {
		check("Redis", h.Redis)
	}
	if h.Realtime != nil {
		service := Service{Name: "Realtime", Status: "up"}
		if connected, state := h.Realtime(); !connected {
			service.Status = "down"
			service.Message = state
		}
		services = append(services, service)
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
}
