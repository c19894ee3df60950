package storage

import (
	"context"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// Store defines the interface for agent and metrics persistence.
// The registry writes through to a Store so metrics history survives
// server restarts.
type Store interface {
	// Agent operations
	UpsertAgent(ctx context.Context, agent *types.Agent) error
	ListAgents(ctx context.Context) ([]*types.Agent, error)

	// Metrics operations
	AppendSample(ctx context.Context, agentID string, s types.MetricSample) error
	ListSamples(ctx context.Context, agentID string, limit int) ([]types.MetricSample, error)

	// Persistence
	Close() error
}
