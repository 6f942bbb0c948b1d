package api

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/scantrack/internal/timeutil"
)

// TrackingService is the health service that follows the onboard
// computer. The empty service name reports the process itself.
const TrackingService = "scantrack.Tracking"

// Tracker reports whether the shoot list has a resolved track manager.
type Tracker interface {
	Tracking() bool
}

// HealthServer is the gRPC health service. TrackingService is SERVING
// while the onboard computer is tracking and NOT_SERVING otherwise.
type HealthServer struct {
	*health.Server
	tracker Tracker

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthServer returns a health server whose status already reflects t.
func NewHealthServer(t Tracker) *HealthServer {
	h := &HealthServer{
		Server:  health.NewServer(),
		tracker: t,
		last:    healthpb.HealthCheckResponse_UNKNOWN,
	}
	h.Server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.Refresh()
	return h
}

// Register adds the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.Server)
}

// Refresh samples the tracker and publishes the tracking status.
func (h *HealthServer) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if h.tracker != nil && h.tracker.Tracking() {
		st = healthpb.HealthCheckResponse_SERVING
	}

	h.mu.Lock()
	changed := st != h.last
	h.last = st
	h.mu.Unlock()

	if changed {
		log.Printf("[health] %s: %s", TrackingService, st)
		h.Server.SetServingStatus(TrackingService, st)
	}
	return st
}

// Run refreshes the status every period until ctx is done, then marks
// every service NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context, clock timeutil.Clock, period time.Duration) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	t := clock.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Server.Shutdown()
			return ctx.Err()
		case <-t.C():
			h.Refresh()
		}
	}
}
