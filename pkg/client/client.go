// Package client is the Go client for the coordination server's HTTP
// API. Intersection agents use it to register and report state; sync
// agents use it to request green-wave offsets.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// Client talks to a running coordination server
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the given server base URL
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RegisterRequest mirrors POST /api/register
type RegisterRequest struct {
	AgentID     string         `json:"agent_id"`
	Name        string         `json:"name,omitempty"`
	Orientation string         `json:"orientation,omitempty"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	Links       []string       `json:"links,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// RegisterResponse mirrors the register success shape
type RegisterResponse struct {
	AgentID    string `json:"agent_id"`
	Registered bool   `json:"registered"`
}

// ReportRequest mirrors POST /api/report
type ReportRequest struct {
	AgentID     string            `json:"agent_id"`
	Status      types.AgentStatus `json:"status"`
	Episode     int               `json:"episode"`
	Reward      float64           `json:"reward"`
	QueueLength float64           `json:"queue_length"`
}

// ReportResponse mirrors the report success shape
type ReportResponse struct {
	Accepted   bool `json:"accepted"`
	OutOfOrder bool `json:"out_of_order,omitempty"`
}

// OffsetResponse mirrors /api/offset
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

// StatusResponse mirrors /api/status
type StatusResponse struct {
	TotalAgents  int                        `json:"total_agents"`
	OnlineAgents int                        `json:"online_agents"`
	Agents       map[string]AgentStatusView `json:"agents"`
}

// AgentStatusView is one agent's entry in StatusResponse
type AgentStatusView struct {
	Online      bool              `json:"online"`
	Status      types.AgentStatus `json:"status"`
	Name        string            `json:"name,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	LastEpisode int               `json:"last_episode"`
}

// ChartsResponse mirrors /api/latest_charts
type ChartsResponse struct {
	RewardsChart string `json:"rewards_chart"`
	QueueChart   string `json:"queue_chart"`
	Timestamp    string `json:"timestamp"`
}

// APIError is a non-2xx structured response from the server
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Reason, e.Message)
}

// Register registers or updates an agent
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.post(ctx, "/api/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report submits a state/episode report
func (c *Client) Report(ctx context.Context, req *ReportRequest) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.post(ctx, "/api/report", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestOffset asks for the best coordination offset into agentID.
// available=false in the response means the caller should fall back to
// unsynchronized behavior.
func (c *Client) RequestOffset(ctx context.Context, agentID string) (*OffsetResponse, error) {
	var resp OffsetResponse
	q := url.Values{"agent_id": {agentID}}
	if err := c.get(ctx, "/api/offset?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ComputeOffset asks for the offset of a specific directed link
func (c *Client) ComputeOffset(ctx context.Context, fromID, toID string) (*OffsetResponse, error) {
	var resp OffsetResponse
	q := url.Values{"from_id": {fromID}, "to_id": {toID}}
	if err := c.get(ctx, "/api/offset?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the aggregate dashboard view
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, "/api/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Data fetches the full per-agent detail view
func (c *Client) Data(ctx context.Context) (map[string]json.RawMessage, error) {
	var resp map[string]json.RawMessage
	if err := c.get(ctx, "/api/data", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// LatestCharts fetches the newest comparison chart locations
func (c *Client) LatestCharts(ctx context.Context) (*ChartsResponse, error) {
	var resp ChartsResponse
	if err := c.get(ctx, "/api/latest_charts", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logs fetches the server's recent log ring
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var resp struct {
		Logs []string `json:"logs"`
	}
	if err := c.get(ctx, "/api/logs", &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// Reset clears the server's in-memory agent state
func (c *Client) Reset(ctx context.Context) error {
	var resp map[string]string
	return c.get(ctx, "/api/reset", &resp)
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.get(ctx, "/healthz", &resp)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &parsed); err == nil {
			apiErr.Reason = parsed.Reason
			apiErr.Message = parsed.Message
		} else {
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
