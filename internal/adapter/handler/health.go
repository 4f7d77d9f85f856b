package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthTimeout = 2 * time.Second

// Pinger is a backing store the service cannot serve without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecks maps a dependency name to its pinger.
type HealthChecks map[string]Pinger

// Check pings every dependency. ok is false when any of them failed.
func (c HealthChecks) Check(ctx context.Context) (statuses map[string]string, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	statuses = make(map[string]string, len(c))
	ok = true
	for name, p := range c {
		if err := p.Ping(ctx); err != nil {
			statuses[name] = err.Error()
			ok = false
			continue
		}
		statuses[name] = "ok"
	}
	return statuses, ok
}

// Watch mirrors Check into the gRPC health status of service every interval
// until ctx is done.
func (c HealthChecks) Watch(ctx context.Context, server *health.Server, service string, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		statuses, ok := c.Check(ctx)
		if ok == serving {
			continue
		}
		serving = ok

		status := healthpb.HealthCheckResponse_SERVING
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn().Interface("dependencies", statuses).Msg("dependency check failed")
		} else {
			log.Info().Msg("dependencies recovered")
		}
		server.SetServingStatus(service, status)
	}
}
