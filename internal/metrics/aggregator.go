package metrics

import (
	"sort"
	"sync"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// Aggregator maintains bounded per-agent time series of training
// measurements. Samples flagged out-of-order (an episode below the
// agent's high-water mark, usually a restarted run) are retained in the
// series but excluded from latest and comparison views.
type Aggregator struct {
	mu     sync.RWMutex
	limit  int
	series map[string][]types.MetricSample
}

// New creates an aggregator keeping at most limit samples per agent
func New(limit int) *Aggregator {
	if limit < 1 {
		limit = 1
	}
	return &Aggregator{
		limit:  limit,
		series: make(map[string][]types.MetricSample),
	}
}

// Append records a sample for an agent, evicting the oldest sample
// once the per-agent cap is reached
func (a *Aggregator) Append(agentID string, s types.MetricSample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	samples := append(a.series[agentID], s)
	if len(samples) > a.limit {
		samples = samples[len(samples)-a.limit:]
	}
	a.series[agentID] = samples
}

// Latest returns the most recent in-order sample for an agent
func (a *Aggregator) Latest(agentID string) (types.MetricSample, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	samples := a.series[agentID]
	for i := len(samples) - 1; i >= 0; i-- {
		if !samples[i].OutOfOrder {
			return samples[i], true
		}
	}
	return types.MetricSample{}, false
}

// Series returns an agent's samples oldest to newest, capped at limit.
// A limit of zero or less returns the full retained series.
func (a *Aggregator) Series(agentID string, limit int) []types.MetricSample {
	a.mu.RLock()
	defer a.mu.RUnlock()

	samples := a.series[agentID]
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	out := make([]types.MetricSample, len(samples))
	copy(out, samples)
	return out
}

// ComparisonView aligns every agent's in-order samples on a shared
// episode axis for cross-agent charting. Entries are nil where an
// agent has no sample for that episode.
type ComparisonView struct {
	Episodes     []int                 `json:"episodes"`
	Rewards      map[string][]*float64 `json:"rewards"`
	QueueLengths map[string][]*float64 `json:"queue_lengths"`
}

// Comparison merges all agents' series on a common episode axis,
// excluding out-of-order samples
func (a *Aggregator) Comparison() *ComparisonView {
	a.mu.RLock()
	defer a.mu.RUnlock()

	// Collect the union of episodes across agents
	episodeSet := make(map[int]struct{})
	inOrder := make(map[string]map[int]types.MetricSample)
	for agentID, samples := range a.series {
		byEpisode := make(map[int]types.MetricSample)
		for _, s := range samples {
			if s.OutOfOrder {
				continue
			}
			byEpisode[s.Episode] = s
			episodeSet[s.Episode] = struct{}{}
		}
		if len(byEpisode) > 0 {
			inOrder[agentID] = byEpisode
		}
	}

	episodes := make([]int, 0, len(episodeSet))
	for ep := range episodeSet {
		episodes = append(episodes, ep)
	}
	sort.Ints(episodes)

	view := &ComparisonView{
		Episodes:     episodes,
		Rewards:      make(map[string][]*float64),
		QueueLengths: make(map[string][]*float64),
	}

	for agentID, byEpisode := range inOrder {
		rewards := make([]*float64, len(episodes))
		queues := make([]*float64, len(episodes))
		for i, ep := range episodes {
			if s, ok := byEpisode[ep]; ok {
				r, q := s.Reward, s.QueueLength
				rewards[i] = &r
				queues[i] = &q
			}
		}
		view.Rewards[agentID] = rewards
		view.QueueLengths[agentID] = queues
	}

	return view
}

// Reset drops all retained series
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.series = make(map[string][]types.MetricSample)
}
