package registry

import (
	"context"
	"sync"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/metrics"
	"github.com/dangphuc2470/TrafficControlModel/internal/storage"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// entry wraps one agent record with its own lock so updates to agent A
// never contend with updates to agent B. The registry-level lock only
// guards the map and the registration order.
type entry struct {
	mu    sync.Mutex
	agent types.Agent
}

// snapshot copies the record so readers never observe a partial update
func (e *entry) snapshot() *types.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAgent(&e.agent)
}

// Registry is the authoritative in-memory record of every known
// intersection agent. Agents are never deleted; they go offline via the
// liveness monitor so historical metrics survive reconnection.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	agg   *metrics.Aggregator
	store storage.Store // optional write-through, may be nil
	log   *logger.Logger
}

// New creates an empty registry. The store may be nil to run without
// persistence (tests, ephemeral runs).
func New(agg *metrics.Aggregator, store storage.Store, log *logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		agg:     agg,
		store:   store,
		log:     log,
	}
}

// Register creates or updates an agent record. Registration is an
// idempotent upsert: mutable fields are overwritten, the id and the
// accumulated metrics history are preserved.
func (r *Registry) Register(ctx context.Context, a *types.Agent) (*types.Agent, error) {
	if a.ID == "" {
		return nil, &ValidationError{Field: "agent_id", Reason: "must not be empty"}
	}
	if a.Latitude < -90 || a.Latitude > 90 {
		return nil, &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		return nil, &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}

	now := time.Now()

	r.mu.Lock()
	e, exists := r.entries[a.ID]
	if !exists {
		e = &entry{agent: types.Agent{
			ID:           a.ID,
			Status:       types.StatusIdle,
			RegisteredAt: now,
		}}
		r.entries[a.ID] = e
		r.order = append(r.order, a.ID)
	}
	r.mu.Unlock()

	e.mu.Lock()
	e.agent.Name = a.Name
	e.agent.Orientation = a.Orientation
	e.agent.Latitude = a.Latitude
	e.agent.Longitude = a.Longitude
	e.agent.Links = append([]string(nil), a.Links...)
	e.agent.Config = cloneConfig(a.Config)
	e.agent.LastSeen = now
	if exists && e.agent.Status == types.StatusOffline {
		// A re-registration is a sign of life
		e.agent.Status = types.StatusIdle
	}
	registered := cloneAgent(&e.agent)
	e.mu.Unlock()

	if !exists {
		r.log.Success("New agent registered: %s", a.ID)
	} else {
		r.log.Info("Agent re-registered: %s", a.ID)
	}

	r.persistAgent(ctx, registered)
	return registered, nil
}

// ReportState records a status/episode report from a registered agent.
// An episode below the agent's high-water mark is accepted but flagged
// out-of-order so it is excluded from latest views; agents restart
// mid-run and rejecting the report would lose the sample.
func (r *Registry) ReportState(ctx context.Context, id string, status types.AgentStatus, episode int, reward, queueLength float64) (types.MetricSample, error) {
	if !status.Reportable() {
		return types.MetricSample{}, &ValidationError{Field: "status", Reason: "not a reportable status: " + string(status)}
	}

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return types.MetricSample{}, &UnknownAgentError{ID: id}
	}

	now := time.Now()
	sample := types.MetricSample{
		Episode:     episode,
		Reward:      reward,
		QueueLength: queueLength,
		Timestamp:   now,
	}

	e.mu.Lock()
	if episode < e.agent.LastEpisode {
		sample.OutOfOrder = true
	} else {
		e.agent.LastEpisode = episode
	}
	e.agent.Status = status
	e.agent.LastSeen = now
	updated := cloneAgent(&e.agent)
	e.mu.Unlock()

	if sample.OutOfOrder {
		r.log.Warn("Out-of-order report from %s: episode %d below high-water %d", id, episode, updated.LastEpisode)
	} else {
		r.log.Debug("Update from %s, episode %d, status %s, reward %.2f", id, episode, status, reward)
	}

	r.agg.Append(id, sample)

	r.persistAgent(ctx, updated)
	if r.store != nil {
		if err := r.store.AppendSample(ctx, id, sample); err != nil {
			r.log.LogError(err, "persisting sample for "+id)
		}
	}

	return sample, nil
}

// Get returns a snapshot of one agent record
func (r *Registry) Get(id string) (*types.Agent, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.snapshot(), true
}

// List returns snapshots of all agents in registration order
func (r *Registry) List() []*types.Agent {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	entries := make([]*entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	agents := make([]*types.Agent, 0, len(entries))
	for _, e := range entries {
		agents = append(agents, e.snapshot())
	}
	return agents
}

// ExpireStale transitions agents whose last report is older than the
// threshold to offline and returns the affected ids. Terminated agents
// keep their final status; already-offline agents are skipped.
func (r *Registry) ExpireStale(threshold time.Duration) []string {
	cutoff := time.Now().Add(-threshold)

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var expired []string
	for _, e := range entries {
		e.mu.Lock()
		if e.agent.Status != types.StatusTerminated &&
			e.agent.Status != types.StatusOffline &&
			e.agent.LastSeen.Before(cutoff) {
			e.agent.Status = types.StatusOffline
			expired = append(expired, e.agent.ID)
		}
		e.mu.Unlock()
	}
	return expired
}

// Reset drops all in-memory agent state and series. Persistent history
// in the store is kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.order = nil
	r.mu.Unlock()

	r.agg.Reset()
	r.log.Warn("Registry state has been reset")
}

// LoadFrom restores agents and their retained samples from the store.
// Restored agents start offline until they report again.
func (r *Registry) LoadFrom(ctx context.Context, store storage.Store, historyLimit int) error {
	agents, err := store.ListAgents(ctx)
	if err != nil {
		return err
	}

	for _, a := range agents {
		restored := cloneAgent(a)
		if restored.Status != types.StatusTerminated {
			restored.Status = types.StatusOffline
		}

		r.mu.Lock()
		if _, exists := r.entries[restored.ID]; !exists {
			r.entries[restored.ID] = &entry{agent: *restored}
			r.order = append(r.order, restored.ID)
		}
		r.mu.Unlock()

		samples, err := store.ListSamples(ctx, restored.ID, historyLimit)
		if err != nil {
			r.log.LogError(err, "restoring samples for "+restored.ID)
			continue
		}
		for _, s := range samples {
			r.agg.Append(restored.ID, s)
		}
	}

	if len(agents) > 0 {
		r.log.Info("Restored %d agents from storage", len(agents))
	}
	return nil
}

func (r *Registry) persistAgent(ctx context.Context, a *types.Agent) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertAgent(ctx, a); err != nil {
		r.log.LogError(err, "persisting agent "+a.ID)
	}
}

func cloneAgent(a *types.Agent) *types.Agent {
	out := *a
	out.Links = append([]string(nil), a.Links...)
	out.Config = cloneConfig(a.Config)
	return &out
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
