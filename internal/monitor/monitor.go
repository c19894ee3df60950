package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/registry"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// Monitor is the liveness sweep: on a fixed interval it marks agents
// offline once their last report is older than the staleness threshold.
// Offline is an observed-absence state, distinct from anything agents
// report about themselves, and never removes history.
type Monitor struct {
	reg *registry.Registry
	cfg types.LivenessConfig
	log *logger.Logger
}

// New creates a liveness monitor over the registry
func New(reg *registry.Registry, cfg types.LivenessConfig, log *logger.Logger) *Monitor {
	return &Monitor{reg: reg, cfg: cfg, log: log}
}

// Start begins the background sweep. It stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.SweepInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Sweep runs one staleness pass. A failure evaluating one agent must
// not prevent evaluating the rest, so the pass is fully guarded.
func (m *Monitor) Sweep() {
	defer func() {
		if r := recover(); r != nil {
			m.log.LogError(fmt.Errorf("%v", r), "liveness sweep panicked")
		}
	}()

	expired := m.reg.ExpireStale(m.cfg.StaleAfter())
	for _, id := range expired {
		m.log.Warn("Agent %s appears to be offline (no report in %ds)", id, m.cfg.StaleAfterSecs)
	}
}
