package observability

import (
	"sync"

	"github.com/rs/zerolog"
)

// AuditObserver counts audit outcomes per requested provider and raises an
// alert line on every 10th mock fallback for the same provider.
type AuditObserver struct {
	logger zerolog.Logger

	mu         sync.Mutex
	mockCounts map[string]int64
	outcomes   map[string]int64
}

func NewAuditObserver(logger zerolog.Logger) *AuditObserver {
	return &AuditObserver{
		logger:     logger.With().Str("component", "audit_observer").Logger(),
		mockCounts: make(map[string]int64),
		outcomes:   make(map[string]int64),
	}
}

func (o *AuditObserver) RecordAudit(requested, used, routing, reason string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.outcomes[routing]++
	var count int64
	if routing == "mock" {
		o.mockCounts[requested]++
		count = o.mockCounts[requested]
	}
	o.mu.Unlock()

	o.logger.Debug().
		Str("requested", requested).
		Str("model_used", used).
		Str("routing", routing).
		Str("reason", reason).
		Msg("audit outcome")

	if count > 0 && count%10 == 0 {
		o.logger.Warn().
			Str("requested", requested).
			Str("reason", reason).
			Int64("mock_count", count).
			Msg("audit alert: repeated mock fallback")
	}
}

// Snapshot returns outcome counts keyed by routing.
func (o *AuditObserver) Snapshot() map[string]int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int64, len(o.outcomes))
	for k, v := range o.outcomes {
		out[k] = v
	}
	return out
}

// MockCount returns how many audits for the provider ended on the mock.
func (o *AuditObserver) MockCount(requested string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mockCounts[requested]
}
