package types

import (
	"strconv"
	"time"
)

// AgentStatus represents the lifecycle state of an intersection agent
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"       // Registered but not training
	StatusTraining   AgentStatus = "training"   // Running training episodes
	StatusSimulating AgentStatus = "simulating" // Driving a live simulation
	StatusTerminated AgentStatus = "terminated" // Finished, will not report again
	StatusOffline    AgentStatus = "offline"    // Observed absence; set by the liveness monitor, never self-reported
)

// Reportable returns true if the status may appear in an agent's own report.
// Offline is an observed state owned by the liveness monitor.
func (s AgentStatus) Reportable() bool {
	switch s {
	case StatusIdle, StatusTraining, StatusSimulating, StatusTerminated:
		return true
	default:
		return false
	}
}

// Online returns true if the agent is a valid coordination target
func (s AgentStatus) Online() bool {
	return s != StatusOffline && s != StatusTerminated
}

// Agent is the registry record for one intersection controller
type Agent struct {
	ID           string         `json:"agent_id" yaml:"agent_id"`
	Name         string         `json:"name,omitempty" yaml:"name,omitempty"`
	Orientation  string         `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	Latitude     float64        `json:"latitude" yaml:"latitude"`
	Longitude    float64        `json:"longitude" yaml:"longitude"`
	Links        []string       `json:"links,omitempty" yaml:"links,omitempty"`
	Status       AgentStatus    `json:"status" yaml:"status"`
	Config       map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	LastSeen     time.Time      `json:"last_seen" yaml:"last_seen"`
	LastEpisode  int            `json:"last_episode" yaml:"last_episode"`
	RegisteredAt time.Time      `json:"registered_at" yaml:"registered_at"`
}

// HasLink reports whether the agent declares a link to the given id
func (a *Agent) HasLink(id string) bool {
	for _, l := range a.Links {
		if l == id {
			return true
		}
	}
	return false
}

// ConfigFloat reads a numeric value from the agent's opaque config blob.
// Agents report JSON, so numbers arrive as float64, but string values
// are tolerated since the blob is not strictly typed.
func (a *Agent) ConfigFloat(key string) (float64, bool) {
	v, ok := a.Config[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// MetricSample is one training/testing measurement reported by an agent
type MetricSample struct {
	Episode     int       `json:"episode"`
	Reward      float64   `json:"reward"`
	QueueLength float64   `json:"queue_length"`
	OutOfOrder  bool      `json:"out_of_order,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// OffsetResult is a computed green-wave offset for one directed link
type OffsetResult struct {
	FromID       string  `json:"from_id"`
	ToID         string  `json:"to_id"`
	DistanceM    float64 `json:"distance_m"`
	TravelTimeS  float64 `json:"travel_time_s"`
	CycleLengthS float64 `json:"cycle_length_s"`
	OffsetS      float64 `json:"offset_s"`
	OutOfRange   bool    `json:"out_of_range,omitempty"`
}
