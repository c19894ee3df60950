package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/metrics"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

func newTestRegistry() (*Registry, *metrics.Aggregator) {
	agg := metrics.New(100)
	return New(agg, nil, logger.New("Registry", "")), agg
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry()

	in := &types.Agent{
		ID:          "tls-1",
		Name:        "Nguyen Van Cu - Tran Hung Dao",
		Orientation: "north-south",
		Latitude:    10.7544,
		Longitude:   106.6804,
		Links:       []string{"tls-2"},
		Config:      map[string]any{"green_duration": 16.0, "yellow_duration": 4.0},
	}

	registered, err := reg.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if registered.Status != types.StatusIdle {
		t.Errorf("Expected idle status after registration, got %s", registered.Status)
	}

	got, ok := reg.Get("tls-1")
	if !ok {
		t.Fatal("Get failed after Register")
	}
	if got.Name != in.Name || got.Latitude != in.Latitude || got.Longitude != in.Longitude {
		t.Errorf("Registered data mismatch: got %+v", got)
	}
	if len(got.Links) != 1 || got.Links[0] != "tls-2" {
		t.Errorf("Expected links [tls-2], got %v", got.Links)
	}
	if v, ok := got.ConfigFloat("green_duration"); !ok || v != 16.0 {
		t.Errorf("Expected green_duration 16, got %v (ok=%v)", v, ok)
	}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	reg, _ := newTestRegistry()

	cases := []struct {
		name  string
		agent *types.Agent
	}{
		{"empty id", &types.Agent{ID: "", Latitude: 10, Longitude: 106}},
		{"latitude too high", &types.Agent{ID: "a", Latitude: 91, Longitude: 106}},
		{"latitude too low", &types.Agent{ID: "a", Latitude: -91, Longitude: 106}},
		{"longitude too high", &types.Agent{ID: "a", Latitude: 10, Longitude: 181}},
		{"longitude too low", &types.Agent{ID: "a", Latitude: 10, Longitude: -181}},
	}

	for _, tc := range cases {
		_, err := reg.Register(context.Background(), tc.agent)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	if len(reg.List()) != 0 {
		t.Error("Rejected registrations must not mutate the registry")
	}
}

func TestRegistry_ReportUnknownAgent(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.ReportState(context.Background(), "ghost", types.StatusTraining, 1, 0.5, 3.2)
	var ue *UnknownAgentError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected UnknownAgentError, got %v", err)
	}

	// A failed report must never create an implicit agent
	if _, ok := reg.Get("ghost"); ok {
		t.Error("Report for unknown id created an agent")
	}
}

func TestRegistry_ReportUpdatesAgent(t *testing.T) {
	reg, agg := newTestRegistry()

	reg.Register(context.Background(), &types.Agent{ID: "tls-1", Latitude: 10, Longitude: 106})

	sample, err := reg.ReportState(context.Background(), "tls-1", types.StatusTraining, 3, -12.5, 4.1)
	if err != nil {
		t.Fatalf("ReportState failed: %v", err)
	}
	if sample.OutOfOrder {
		t.Error("First report must not be out of order")
	}

	got, _ := reg.Get("tls-1")
	if got.Status != types.StatusTraining {
		t.Errorf("Expected status training, got %s", got.Status)
	}
	if got.LastEpisode != 3 {
		t.Errorf("Expected last_episode 3, got %d", got.LastEpisode)
	}

	latest, ok := agg.Latest("tls-1")
	if !ok || latest.Episode != 3 {
		t.Errorf("Expected latest sample episode 3, got %+v (ok=%v)", latest, ok)
	}
}

func TestRegistry_OutOfOrderEpisode(t *testing.T) {
	reg, agg := newTestRegistry()

	reg.Register(context.Background(), &types.Agent{ID: "tls-1", Latitude: 10, Longitude: 106})
	reg.ReportState(context.Background(), "tls-1", types.StatusTraining, 5, 1.0, 2.0)

	// A regressed episode is accepted but flagged
	sample, err := reg.ReportState(context.Background(), "tls-1", types.StatusTraining, 2, 9.9, 9.9)
	if err != nil {
		t.Fatalf("Out-of-order report must be accepted, got %v", err)
	}
	if !sample.OutOfOrder {
		t.Error("Expected out_of_order flag on regressed episode")
	}

	got, _ := reg.Get("tls-1")
	if got.LastEpisode != 5 {
		t.Errorf("High-water episode must not regress, got %d", got.LastEpisode)
	}

	latest, _ := agg.Latest("tls-1")
	if latest.Episode != 5 {
		t.Errorf("Latest view must exclude out-of-order sample, got episode %d", latest.Episode)
	}
}

func TestRegistry_ReregisterPreservesHistory(t *testing.T) {
	reg, agg := newTestRegistry()

	reg.Register(context.Background(), &types.Agent{ID: "tls-1", Latitude: 10, Longitude: 106})
	reg.ReportState(context.Background(), "tls-1", types.StatusTraining, 1, 1.0, 2.0)
	reg.ReportState(context.Background(), "tls-1", types.StatusTraining, 2, 1.5, 1.8)

	// Re-register with a new position
	_, err := reg.Register(context.Background(), &types.Agent{ID: "tls-1", Latitude: 10.01, Longitude: 106.01})
	if err != nil {
		t.Fatalf("Re-register failed: %v", err)
	}

	if got := agg.Series("tls-1", 0); len(got) != 2 {
		t.Errorf("Re-registration must preserve metrics history, got %d samples", len(got))
	}
	got, _ := reg.Get("tls-1")
	if got.Latitude != 10.01 {
		t.Errorf("Re-registration must update position, got %f", got.Latitude)
	}
	if len(reg.List()) != 1 {
		t.Error("Re-registration must not duplicate the agent")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	reg, _ := newTestRegistry()

	for _, id := range []string{"c", "a", "b"} {
		reg.Register(context.Background(), &types.Agent{ID: id, Latitude: 10, Longitude: 106})
	}

	agents := reg.List()
	if len(agents) != 3 {
		t.Fatalf("Expected 3 agents, got %d", len(agents))
	}
	for i, want := range []string{"c", "a", "b"} {
		if agents[i].ID != want {
			t.Errorf("List order: expected %s at %d, got %s", want, i, agents[i].ID)
		}
	}
}

func TestRegistry_ExpireStale(t *testing.T) {
	reg, _ := newTestRegistry()

	reg.Register(context.Background(), &types.Agent{ID: "stale", Latitude: 10, Longitude: 106})
	reg.Register(context.Background(), &types.Agent{ID: "done", Latitude: 10, Longitude: 106})
	reg.ReportState(context.Background(), "done", types.StatusTerminated, 1, 0, 0)

	time.Sleep(5 * time.Millisecond)

	expired := reg.ExpireStale(time.Millisecond)
	if len(expired) != 1 || expired[0] != "stale" {
		t.Fatalf("Expected only the stale agent to expire, got %v", expired)
	}

	got, _ := reg.Get("stale")
	if got.Status != types.StatusOffline {
		t.Errorf("Expected offline, got %s", got.Status)
	}
	done, _ := reg.Get("done")
	if done.Status != types.StatusTerminated {
		t.Errorf("Terminated agents must keep their status, got %s", done.Status)
	}

	// A fresh report brings the agent back as a coordination target
	reg.ReportState(context.Background(), "stale", types.StatusTraining, 2, 0, 0)
	got, _ = reg.Get("stale")
	if !got.Status.Online() {
		t.Errorf("Fresh report must restore online status, got %s", got.Status)
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	reg, _ := newTestRegistry()

	reg.Register(context.Background(), &types.Agent{
		ID: "tls-1", Latitude: 10, Longitude: 106,
		Links:  []string{"tls-2"},
		Config: map[string]any{"k": "v"},
	})

	got, _ := reg.Get("tls-1")
	got.Links[0] = "mutated"
	got.Config["k"] = "mutated"

	fresh, _ := reg.Get("tls-1")
	if fresh.Links[0] != "tls-2" || fresh.Config["k"] != "v" {
		t.Error("Snapshots must not share state with the registry")
	}
}
