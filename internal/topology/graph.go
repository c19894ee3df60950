package topology

import (
	"errors"
	"fmt"
	"math"

	"github.com/dangphuc2470/TrafficControlModel/internal/registry"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// earthRadiusM is the mean Earth radius used for great-circle distance
const earthRadiusM = 6371000.0

// Fallback phase durations when an agent's config carries only one of
// the two values
const (
	defaultGreenS  = 30.0
	defaultYellowS = 4.0
)

// ErrNoCoordination is the legitimate negative result of offset
// resolution: no linked agent is online. Callers fall back to
// unsynchronized behavior, they never wait for a neighbor.
var ErrNoCoordination = errors.New("no linked agent is online")

// NoLinkError reports an offset request between two agents with no
// declared link in either direction
type NoLinkError struct {
	FromID string
	ToID   string
}

func (e *NoLinkError) Error() string {
	return fmt.Sprintf("no declared link between %s and %s", e.FromID, e.ToID)
}

// Graph computes geography-based green-wave offsets between linked
// agents. It is derived from the registry on demand rather than cached:
// positions are effectively static after registration, so recomputing a
// handful of haversine distances is cheaper than invalidation.
type Graph struct {
	reg *registry.Registry
	cfg types.CoordinationConfig
}

// New creates a topology graph over the given registry
func New(reg *registry.Registry, cfg types.CoordinationConfig) *Graph {
	return &Graph{reg: reg, cfg: cfg}
}

// ComputeOffset calculates the green-wave offset for the directed link
// from -> to. Connectivity is undirected (a link declared by either
// endpoint counts) but the offset is direction-sensitive: it folds the
// travel time into the downstream agent's cycle, so A->B and B->A
// generally differ.
func (g *Graph) ComputeOffset(fromID, toID string) (*types.OffsetResult, error) {
	from, ok := g.reg.Get(fromID)
	if !ok {
		return nil, &registry.UnknownAgentError{ID: fromID}
	}
	to, ok := g.reg.Get(toID)
	if !ok {
		return nil, &registry.UnknownAgentError{ID: toID}
	}

	if !from.HasLink(toID) && !to.HasLink(fromID) {
		return nil, &NoLinkError{FromID: fromID, ToID: toID}
	}

	distance := haversineM(from.Latitude, from.Longitude, to.Latitude, to.Longitude)

	speed := g.cfg.AssumedSpeedKmh
	if speed < g.cfg.MinSpeedKmh {
		speed = g.cfg.MinSpeedKmh
	}
	travelTime := distance / (speed / 3.6)

	cycle := g.cycleLength(to)
	offset := math.Mod(travelTime, cycle)

	return &types.OffsetResult{
		FromID:       fromID,
		ToID:         toID,
		DistanceM:    distance,
		TravelTimeS:  travelTime,
		CycleLengthS: cycle,
		OffsetS:      offset,
		OutOfRange:   distance > g.cfg.ConnectionDistanceM,
	}, nil
}

// ResolveBest returns the offset from the nearest online linked agent
// into the given downstream agent. Offline and terminated neighbors are
// skipped so sync agents never receive stale coordination targets; if
// none remain, ErrNoCoordination is returned. An out-of-range neighbor
// is only chosen when no in-range neighbor is online.
func (g *Graph) ResolveBest(agentID string) (*types.OffsetResult, error) {
	agent, ok := g.reg.Get(agentID)
	if !ok {
		return nil, &registry.UnknownAgentError{ID: agentID}
	}

	var best *types.OffsetResult
	for _, candidate := range g.reg.List() {
		if candidate.ID == agentID || !candidate.Status.Online() {
			continue
		}
		if !agent.HasLink(candidate.ID) && !candidate.HasLink(agentID) {
			continue
		}

		result, err := g.ComputeOffset(candidate.ID, agentID)
		if err != nil {
			continue
		}
		if best == nil || closer(result, best) {
			best = result
		}
	}

	if best == nil {
		return nil, ErrNoCoordination
	}
	return best, nil
}

// closer prefers in-range links over out-of-range ones, then shorter
// distance
func closer(a, b *types.OffsetResult) bool {
	if a.OutOfRange != b.OutOfRange {
		return !a.OutOfRange
	}
	return a.DistanceM < b.DistanceM
}

// cycleLength derives the downstream signal's total cycle duration from
// its reported phase config, falling back to the configured default
// when the agent reported no phase timing at all
func (g *Graph) cycleLength(a *types.Agent) float64 {
	green, okG := a.ConfigFloat("green_duration")
	yellow, okY := a.ConfigFloat("yellow_duration")
	if !okG && !okY {
		return g.cfg.DefaultCycleS
	}
	if !okG {
		green = defaultGreenS
	}
	if !okY {
		yellow = defaultYellowS
	}
	return (green + yellow) * 2
}

// haversineM computes the great-circle distance between two points in
// meters
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlon1 := lon1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	rlon2 := lon2 * math.Pi / 180

	dlat := rlat2 - rlat1
	dlon := rlon2 - rlon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusM * c
}
