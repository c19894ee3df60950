package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// AgentData is one agent's full state in a snapshot file
type AgentData struct {
	Agent   *types.Agent         `json:"agent"`
	Samples []types.MetricSample `json:"samples,omitempty"`
}

// Read loads a snapshot file. A missing file yields an empty snapshot.
func Read(path string) (map[string]*AgentData, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]*AgentData{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	out := make(map[string]*AgentData)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return out, nil
}

// Write dumps the registry state to a JSON file. The file is written to
// a temp path first and renamed so dashboard readers never see a
// partial snapshot.
func Write(path string, data map[string]*AgentData) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
