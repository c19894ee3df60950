package main

// JSON output shapes for the --json flag of the CLI commands

type InitResponse struct {
	Message     string            `json:"message"`
	Path        string            `json:"path"`
	Directories map[string]string `json:"directories"`
}

type OffsetCLIResponse struct {
	Available     bool    `json:"available"`
	Reason        string  `json:"reason,omitempty"`
	OffsetS       float64 `json:"offset_s,omitempty"`
	SourceAgentID string  `json:"source_agent_id,omitempty"`
	TargetAgentID string  `json:"target_agent_id,omitempty"`
	DistanceM     float64 `json:"distance_m,omitempty"`
	OutOfRange    bool    `json:"out_of_range,omitempty"`
}

type ResetResponse struct {
	Message string `json:"message"`
}
