package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

type SQLiteStore struct {
	db *sql.DB
}

func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pragmas for performance/safety
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT,
		orientation TEXT,
		latitude REAL,
		longitude REAL,
		links TEXT,
		status TEXT,
		config TEXT,
		last_seen DATETIME,
		last_episode INTEGER,
		registered_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		episode INTEGER,
		reward REAL,
		queue_length REAL,
		out_of_order BOOLEAN,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_samples_agent ON samples(agent_id);
	CREATE INDEX IF NOT EXISTS idx_agents_registered ON agents(registered_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Helper to serialize JSON fields
func jsonString(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Helper to deserialize JSON fields
func fromJSON(data string, v interface{}) error {
	if data == "" || data == "null" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

func (s *SQLiteStore) UpsertAgent(ctx context.Context, a *types.Agent) error {
	query := `
	INSERT INTO agents (
		id, name, orientation, latitude, longitude, links, status,
		config, last_seen, last_episode, registered_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name, orientation=excluded.orientation,
		latitude=excluded.latitude, longitude=excluded.longitude,
		links=excluded.links, status=excluded.status,
		config=excluded.config, last_seen=excluded.last_seen,
		last_episode=excluded.last_episode`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Orientation, a.Latitude, a.Longitude,
		jsonString(a.Links), a.Status, jsonString(a.Config),
		a.LastSeen, a.LastEpisode, a.RegisteredAt,
	)
	return err
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, orientation, latitude, longitude, links, status, config, last_seen, last_episode, registered_at FROM agents ORDER BY registered_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		var a types.Agent
		var links, config string
		err := rows.Scan(
			&a.ID, &a.Name, &a.Orientation, &a.Latitude, &a.Longitude,
			&links, &a.Status, &config, &a.LastSeen, &a.LastEpisode, &a.RegisteredAt,
		)
		if err != nil {
			return nil, err
		}
		if err := fromJSON(links, &a.Links); err != nil {
			return nil, fmt.Errorf("failed to parse links: %w", err)
		}
		if err := fromJSON(config, &a.Config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

func (s *SQLiteStore) AppendSample(ctx context.Context, agentID string, m types.MetricSample) error {
	query := `
	INSERT INTO samples (agent_id, episode, reward, queue_length, out_of_order, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		agentID, m.Episode, m.Reward, m.QueueLength, m.OutOfOrder, m.Timestamp,
	)
	return err
}

func (s *SQLiteStore) ListSamples(ctx context.Context, agentID string, limit int) ([]types.MetricSample, error) {
	// Newest rows first, then reversed so callers get oldest to newest
	query := "SELECT episode, reward, queue_length, out_of_order, created_at FROM samples WHERE agent_id = ? ORDER BY id DESC"
	args := []interface{}{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []types.MetricSample
	for rows.Next() {
		var m types.MetricSample
		if err := rows.Scan(&m.Episode, &m.Reward, &m.QueueLength, &m.OutOfOrder, &m.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}
