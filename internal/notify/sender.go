package notify

import (
	"context"
	"fmt"
	"time"

	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/telemetry"
	"tableservice-platform/pkg/logger"
)

// PushSender fans a payload out to every endpoint of a staff member.
// A failing endpoint is logged and skipped; Send itself only fails when the
// endpoints cannot be resolved.
type PushSender struct {
	Endpoints EndpointSource
	Provider  Provider
	Metrics   *metrics.Metrics

	// Timeout bounds each endpoint delivery.
	Timeout time.Duration
}

func NewPushSender(endpoints EndpointSource, provider Provider, timeout time.Duration) *PushSender {
	return &PushSender{Endpoints: endpoints, Provider: provider, Timeout: timeout}
}

func (s *PushSender) Send(ctx context.Context, staffID string, p Payload) error {
	if staffID == "" {
		return nil
	}
	eps, err := s.Endpoints.Endpoints(ctx, staffID)
	if err != nil {
		return fmt.Errorf("resolve push endpoints: %w", err)
	}

	log := logger.From(ctx).With("staff_id", staffID, "call_id", p.CallID, "provider", s.Provider.Name())
	delivered := 0
	for _, ep := range eps {
		if err := s.deliver(ctx, ep, p); err != nil {
			s.Metrics.PushFailed(s.Provider.Name())
			log.Warn("push delivery failed", "endpoint_id", ep.ID, "err", err)
			telemetry.SoftFailure(ctx, "push", err, map[string]string{"provider": s.Provider.Name()})
			continue
		}
		delivered++
	}
	log.Debug("push sent", "endpoints", len(eps), "delivered", delivered)
	return nil
}

func (s *PushSender) deliver(ctx context.Context, ep Endpoint, p Payload) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Provider.Deliver(ctx, ep, p)
}
