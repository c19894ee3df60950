package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/metrics"
	"github.com/dangphuc2470/TrafficControlModel/internal/registry"
	"github.com/dangphuc2470/TrafficControlModel/internal/topology"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

type testEnv struct {
	srv *Server
	reg *registry.Registry
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := types.DefaultConfig().Coordination
	cfg.ConnectionDistanceM = 5000

	agg := metrics.New(100)
	reg := registry.New(agg, nil, logger.New("Registry", ""))
	graph := topology.New(reg, cfg)
	srv := New(reg, graph, agg, nil, "", logger.New("Server", ""))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, reg: reg, ts: ts}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *testEnv) register(t *testing.T, req RegisterRequest) {
	t.Helper()
	resp, body := e.post(t, "/api/register", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %s: status %d, body %s", req.AgentID, resp.StatusCode, body)
	}
}

func TestHandleRegister(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/register", RegisterRequest{
		AgentID:   "tls-1",
		Name:      "Main & First",
		Latitude:  10.0,
		Longitude: 106.0,
		Links:     []string{"tls-2"},
		Config:    map[string]any{"learning_rate": 0.001},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	var reg RegisterResponse
	if err := json.Unmarshal(body, &reg); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !reg.Registered || reg.AgentID != "tls-1" {
		t.Errorf("Unexpected response: %+v", reg)
	}
}

func TestHandleRegister_Invalid(t *testing.T) {
	env := newTestEnv(t)

	cases := []RegisterRequest{
		{AgentID: "", Latitude: 10, Longitude: 106},
		{AgentID: "a", Latitude: 95, Longitude: 106},
		{AgentID: "a", Latitude: 10, Longitude: 200},
	}
	for _, req := range cases {
		resp, body := env.post(t, "/api/register", req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for %+v, got %d", req, resp.StatusCode)
		}
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Reason != "validation_error" {
			t.Errorf("Expected validation_error reason, got %s", body)
		}
	}
}

func TestHandleReport_UnknownAgent(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/report", ReportRequest{
		AgentID: "ghost",
		Status:  types.StatusTraining,
		Episode: 1,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", resp.StatusCode, body)
	}

	// Must not create an implicit agent
	if _, ok := env.reg.Get("ghost"); ok {
		t.Error("Report created an implicit agent")
	}
}

func TestHandleReport_OutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, RegisterRequest{AgentID: "tls-1", Latitude: 10, Longitude: 106})

	env.post(t, "/api/report", ReportRequest{AgentID: "tls-1", Status: types.StatusTraining, Episode: 5, Reward: 1})

	resp, body := env.post(t, "/api/report", ReportRequest{AgentID: "tls-1", Status: types.StatusTraining, Episode: 2, Reward: 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Out-of-order report must succeed, got %d", resp.StatusCode)
	}
	var rep ReportResponse
	json.Unmarshal(body, &rep)
	if !rep.Accepted || !rep.OutOfOrder {
		t.Errorf("Expected accepted+out_of_order, got %+v", rep)
	}
}

func TestEndToEnd_OffsetScenario(t *testing.T) {
	env := newTestEnv(t)

	// Two intersections ~1.56km apart, downstream cycle 40s
	env.register(t, RegisterRequest{
		AgentID: "agent1", Latitude: 10.0, Longitude: 106.0, Links: []string{"agent2"},
	})
	env.register(t, RegisterRequest{
		AgentID: "agent2", Latitude: 10.01, Longitude: 106.01,
		Config: map[string]any{"green_duration": 16, "yellow_duration": 4},
	})

	resp, body := env.get(t, "/api/offset?from_id=agent1&to_id=agent2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	var off OffsetResponse
	if err := json.Unmarshal(body, &off); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !off.Available {
		t.Fatalf("Expected available offset, got %+v", off)
	}
	if off.CycleLengthS != 40 {
		t.Errorf("Expected cycle 40, got %f", off.CycleLengthS)
	}
	if off.OffsetS < 0 || off.OffsetS >= 40 {
		t.Errorf("Offset %f outside [0, 40)", off.OffsetS)
	}
}

func TestHandleOffset_ResolveBest(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, RegisterRequest{AgentID: "target", Latitude: 10.0, Longitude: 106.0, Links: []string{"near", "far"}})
	env.register(t, RegisterRequest{AgentID: "near", Latitude: 10.005, Longitude: 106.005})
	env.register(t, RegisterRequest{AgentID: "far", Latitude: 10.02, Longitude: 106.02})

	_, body := env.get(t, "/api/offset?agent_id=target")
	var off OffsetResponse
	json.Unmarshal(body, &off)
	if !off.Available || off.SourceAgentID != "near" {
		t.Errorf("Expected nearest neighbor near, got %+v", off)
	}
}

func TestHandleOffset_NoCoordination(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, RegisterRequest{AgentID: "target", Latitude: 10.0, Longitude: 106.0, Links: []string{"near"}})
	env.register(t, RegisterRequest{AgentID: "near", Latitude: 10.005, Longitude: 106.005})

	// All neighbors go stale; the caller must get a clean negative result
	env.reg.ExpireStale(0)
	env.post(t, "/api/report", ReportRequest{AgentID: "target", Status: types.StatusTraining, Episode: 1})

	resp, body := env.get(t, "/api/offset?agent_id=target")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("No-coordination is not an error, got %d", resp.StatusCode)
	}
	var off OffsetResponse
	json.Unmarshal(body, &off)
	if off.Available || off.Reason != "no_coordination" {
		t.Errorf("Expected unavailable/no_coordination, got %+v", off)
	}

	// A fresh report brings the neighbor back as a resolution target
	env.post(t, "/api/report", ReportRequest{AgentID: "near", Status: types.StatusTraining, Episode: 1})
	_, body = env.get(t, "/api/offset?agent_id=target")
	json.Unmarshal(body, &off)
	if !off.Available {
		t.Errorf("Neighbor must reappear after a fresh report, got %+v", off)
	}
}

func TestHandleOffset_NoLink(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, RegisterRequest{AgentID: "a1", Latitude: 10.0, Longitude: 106.0})
	env.register(t, RegisterRequest{AgentID: "a2", Latitude: 10.005, Longitude: 106.005})

	resp, body := env.get(t, "/api/offset?from_id=a1&to_id=a2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("No-link is not an error, got %d", resp.StatusCode)
	}
	var off OffsetResponse
	json.Unmarshal(body, &off)
	if off.Available || off.Reason != "no_link" {
		t.Errorf("Expected unavailable/no_link, got %+v", off)
	}
}

func TestEndToEnd_StatusScenario(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, RegisterRequest{AgentID: "a1", Latitude: 10.0, Longitude: 106.0})
	env.register(t, RegisterRequest{AgentID: "a2", Latitude: 10.01, Longitude: 106.01})

	for ep := 1; ep <= 5; ep++ {
		env.post(t, "/api/report", ReportRequest{AgentID: "a1", Status: types.StatusTraining, Episode: ep, Reward: float64(ep)})
		env.post(t, "/api/report", ReportRequest{AgentID: "a2", Status: types.StatusTraining, Episode: ep, Reward: float64(ep)})
	}

	_, body := env.get(t, "/api/status")
	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("parse status: %v", err)
	}
	if status.TotalAgents != 2 || status.OnlineAgents != 2 {
		t.Fatalf("Expected 2 total / 2 online, got %d / %d", status.TotalAgents, status.OnlineAgents)
	}
	if status.Agents["a1"].LastEpisode != 5 {
		t.Errorf("Expected last_episode 5, got %d", status.Agents["a1"].LastEpisode)
	}

	// The staleness threshold elapses with no further reports
	time.Sleep(5 * time.Millisecond)
	env.reg.ExpireStale(time.Millisecond)

	_, body = env.get(t, "/api/status")
	json.Unmarshal(body, &status)
	if status.TotalAgents != 2 {
		t.Errorf("Going offline must not remove agents, got total %d", status.TotalAgents)
	}
	if status.OnlineAgents != 0 {
		t.Errorf("Expected 0 online after staleness, got %d", status.OnlineAgents)
	}
}

func TestHandleData(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, RegisterRequest{
		AgentID: "a1", Latitude: 10.0, Longitude: 106.0,
		Config: map[string]any{"episodes": 100},
	})
	env.post(t, "/api/report", ReportRequest{AgentID: "a1", Status: types.StatusTraining, Episode: 1, Reward: 1.5, QueueLength: 3.0})
	env.post(t, "/api/report", ReportRequest{AgentID: "a1", Status: types.StatusTraining, Episode: 2, Reward: 2.5, QueueLength: 2.0})
	// Regressed episode: kept in samples, excluded from the plain arrays
	env.post(t, "/api/report", ReportRequest{AgentID: "a1", Status: types.StatusTraining, Episode: 1, Reward: 9.0, QueueLength: 9.0})

	_, body := env.get(t, "/api/data")
	var data map[string]AgentDataView
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("parse data: %v", err)
	}

	a1, ok := data["a1"]
	if !ok {
		t.Fatal("Missing agent a1 in /api/data")
	}
	if len(a1.Rewards) != 2 || a1.Rewards[0] != 1.5 || a1.Rewards[1] != 2.5 {
		t.Errorf("Unexpected rewards: %v", a1.Rewards)
	}
	if len(a1.Samples) != 3 {
		t.Errorf("Expected full sample history of 3, got %d", len(a1.Samples))
	}
	if a1.Config["episodes"] == nil {
		t.Error("Config blob must pass through for display")
	}
}

func TestHandleLatestCharts_Empty(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/latest_charts")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var charts ChartsResponse
	if err := json.Unmarshal(body, &charts); err != nil {
		t.Fatalf("parse charts: %v", err)
	}
	if charts.RewardsChart != "" || charts.QueueChart != "" {
		t.Errorf("Expected empty chart paths without a watcher, got %+v", charts)
	}
}

func TestHandleReset(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, RegisterRequest{AgentID: "a1", Latitude: 10.0, Longitude: 106.0})

	env.get(t, "/api/reset")

	_, body := env.get(t, "/api/status")
	var status StatusResponse
	json.Unmarshal(body, &status)
	if status.TotalAgents != 0 {
		t.Errorf("Expected empty registry after reset, got %d agents", status.TotalAgents)
	}
}

func TestHandleRegister_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/api/register")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /api/register, got %d", resp.StatusCode)
	}
}
