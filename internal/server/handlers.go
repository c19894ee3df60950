package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/topology"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// RegisterRequest is the body of POST /api/register
type RegisterRequest struct {
	AgentID     string         `json:"agent_id"`
	Name        string         `json:"name,omitempty"`
	Orientation string         `json:"orientation,omitempty"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	Links       []string       `json:"links,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// RegisterResponse is the success shape of POST /api/register
type RegisterResponse struct {
	AgentID    string `json:"agent_id"`
	Registered bool   `json:"registered"`
}

// ReportRequest is the body of POST /api/report
type ReportRequest struct {
	AgentID     string            `json:"agent_id"`
	Status      types.AgentStatus `json:"status"`
	Episode     int               `json:"episode"`
	Reward      float64           `json:"reward"`
	QueueLength float64           `json:"queue_length"`
}

// ReportResponse is the success shape of POST /api/report. Out-of-order
// reports are still accepted; the flag tells the agent its sample was
// recorded but excluded from latest views.
type ReportResponse struct {
	Accepted   bool `json:"accepted"`
	OutOfOrder bool `json:"out_of_order,omitempty"`
}

// OffsetRequest is the body of POST /api/offset. Either agent_id alone
// (resolve the best upstream neighbor) or an explicit from_id/to_id pair.
type OffsetRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	FromID  string `json:"from_id,omitempty"`
	ToID    string `json:"to_id,omitempty"`
}

// OffsetResponse is the shape of /api/offset. available=false is a
// legitimate negative result: the caller falls back to unsynchronized
// behavior.
type OffsetResponse struct {
	Available     bool    `json:"available"`
	Reason        string  `json:"reason,omitempty"`
	OffsetS       float64 `json:"offset_s,omitempty"`
	SourceAgentID string  `json:"source_agent_id,omitempty"`
	TargetAgentID string  `json:"target_agent_id,omitempty"`
	DistanceM     float64 `json:"distance_m,omitempty"`
	TravelTimeS   float64 `json:"travel_time_s,omitempty"`
	CycleLengthS  float64 `json:"cycle_length_s,omitempty"`
	OutOfRange    bool    `json:"out_of_range,omitempty"`
}

// AgentStatusView is one agent's entry in /api/status
type AgentStatusView struct {
	Online      bool              `json:"online"`
	Status      types.AgentStatus `json:"status"`
	Name        string            `json:"name,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	LastEpisode int               `json:"last_episode"`
}

// StatusResponse is the aggregate dashboard view of /api/status
type StatusResponse struct {
	TotalAgents  int                        `json:"total_agents"`
	OnlineAgents int                        `json:"online_agents"`
	Agents       map[string]AgentStatusView `json:"agents"`
}

// AgentDataView is one agent's entry in /api/data
type AgentDataView struct {
	Name         string               `json:"name,omitempty"`
	Orientation  string               `json:"orientation,omitempty"`
	Latitude     float64              `json:"latitude"`
	Longitude    float64              `json:"longitude"`
	Links        []string             `json:"links,omitempty"`
	Status       types.AgentStatus    `json:"status"`
	LastEpisode  int                  `json:"last_episode"`
	Config       map[string]any       `json:"config,omitempty"`
	Rewards      []float64            `json:"rewards"`
	QueueLengths []float64            `json:"queue_lengths"`
	Samples      []types.MetricSample `json:"samples,omitempty"`
}

// ChartsResponse is the shape of /api/latest_charts
type ChartsResponse struct {
	RewardsChart string `json:"rewards_chart"`
	QueueChart   string `json:"queue_chart"`
	Timestamp    string `json:"timestamp"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req RegisterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	agent := &types.Agent{
		ID:          req.AgentID,
		Name:        req.Name,
		Orientation: req.Orientation,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Links:       req.Links,
		Config:      req.Config,
	}

	registered, err := s.reg.Register(r.Context(), agent)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, RegisterResponse{
		AgentID:    registered.ID,
		Registered: true,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req ReportRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	sample, err := s.reg.ReportState(r.Context(), req.AgentID, req.Status, req.Episode, req.Reward, req.QueueLength)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ReportResponse{
		Accepted:   true,
		OutOfOrder: sample.OutOfOrder,
	})
}

// handleOffset serves sync agents. GET takes query parameters, POST a
// JSON body; both hit the same resolution path.
func (s *Server) handleOffset(w http.ResponseWriter, r *http.Request) {
	var req OffsetRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.AgentID = q.Get("agent_id")
		req.FromID = q.Get("from_id")
		req.ToID = q.Get("to_id")
	case http.MethodPost:
		if !s.decodeBody(w, r, &req) {
			return
		}
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
		return
	}

	var (
		result *types.OffsetResult
		err    error
	)
	switch {
	case req.FromID != "" && req.ToID != "":
		result, err = s.graph.ComputeOffset(req.FromID, req.ToID)
	case req.AgentID != "":
		result, err = s.graph.ResolveBest(req.AgentID)
	default:
		s.writeError(w, http.StatusBadRequest, "bad_request", "agent_id or from_id/to_id is required")
		return
	}

	if err != nil {
		// A missing link or a fully offline neighborhood is a negative
		// result, not a failure: the sync agent falls back to its base
		// behavior.
		var nle *topology.NoLinkError
		if errors.As(err, &nle) {
			s.writeJSON(w, http.StatusOK, OffsetResponse{Available: false, Reason: "no_link"})
			return
		}
		if errors.Is(err, topology.ErrNoCoordination) {
			s.writeJSON(w, http.StatusOK, OffsetResponse{Available: false, Reason: "no_coordination"})
			return
		}
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, OffsetResponse{
		Available:     true,
		OffsetS:       result.OffsetS,
		SourceAgentID: result.FromID,
		TargetAgentID: result.ToID,
		DistanceM:     result.DistanceM,
		TravelTimeS:   result.TravelTimeS,
		CycleLengthS:  result.CycleLengthS,
		OutOfRange:    result.OutOfRange,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	agents := s.reg.List()

	resp := StatusResponse{
		TotalAgents: len(agents),
		Agents:      make(map[string]AgentStatusView, len(agents)),
	}
	for _, a := range agents {
		online := a.Status.Online()
		if online {
			resp.OnlineAgents++
		}
		resp.Agents[a.ID] = AgentStatusView{
			Online:      online,
			Status:      a.Status,
			Name:        a.Name,
			LastSeen:    a.LastSeen,
			LastEpisode: a.LastEpisode,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	agents := s.reg.List()

	resp := make(map[string]AgentDataView, len(agents))
	for _, a := range agents {
		samples := s.agg.Series(a.ID, 0)
		rewards := make([]float64, 0, len(samples))
		queues := make([]float64, 0, len(samples))
		for _, m := range samples {
			if m.OutOfOrder {
				continue
			}
			rewards = append(rewards, m.Reward)
			queues = append(queues, m.QueueLength)
		}

		resp[a.ID] = AgentDataView{
			Name:         a.Name,
			Orientation:  a.Orientation,
			Latitude:     a.Latitude,
			Longitude:    a.Longitude,
			Links:        a.Links,
			Status:       a.Status,
			LastEpisode:  a.LastEpisode,
			Config:       a.Config,
			Rewards:      rewards,
			QueueLengths: queues,
			Samples:      samples,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agg.Comparison())
}

func (s *Server) handleLatestCharts(w http.ResponseWriter, r *http.Request) {
	resp := ChartsResponse{}
	if s.charts != nil {
		if info, ok := s.charts.Latest(); ok {
			// Cache-busting timestamp, same trick the dashboard always used
			t := info.Timestamp.Unix()
			if info.RewardsChart != "" {
				resp.RewardsChart = fmt.Sprintf("/static/%s?t=%d", info.RewardsChart, t)
			}
			if info.QueueChart != "" {
				resp.QueueChart = fmt.Sprintf("/static/%s?t=%d", info.QueueChart, t)
			}
			resp.Timestamp = info.Timestamp.Format("2006-01-02 15:04:05")
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"logs": logger.Recent()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.reg.Reset()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Server data has been reset",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
