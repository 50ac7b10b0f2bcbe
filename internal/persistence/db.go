// Package persistence stores town state: memories, agent status and retired
// events in SQLite, memories in Redis, and compressed event archives on disk.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/world"
)

// Meta keys written by SaveWorldState.
const (
	MetaLastTick = "last_tick"
	MetaSimTime  = "sim_time"
)

// DB wraps a SQLite connection for town state persistence.
type DB struct {
	conn *sqlx.DB
}

var (
	_ memory.Store     = (*DB)(nil)
	_ engine.EventSink = (*DB)(nil)
)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Memory writes arrive from concurrent agent goroutines.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		agent_id TEXT NOT NULL,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		ts TEXT NOT NULL,
		event_type TEXT NOT NULL,
		description TEXT NOT NULL,
		importance REAL NOT NULL,
		access_count INTEGER NOT NULL,
		last_accessed TEXT NOT NULL,
		location_json TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		keywords_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		PRIMARY KEY (agent_id, id)
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		area TEXT NOT NULL,
		state TEXT NOT NULL,
		energy REAL NOT NULL,
		mood REAL NOT NULL,
		status_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		ts TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		location_json TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		duration INTEGER
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type memoryRow struct {
	AgentID      string  `db:"agent_id"`
	ID           string  `db:"id"`
	Kind         string  `db:"kind"`
	Timestamp    string  `db:"ts"`
	EventType    string  `db:"event_type"`
	Description  string  `db:"description"`
	Importance   float64 `db:"importance"`
	AccessCount  int     `db:"access_count"`
	LastAccessed string  `db:"last_accessed"`
	Location     string  `db:"location_json"`
	Participants string  `db:"participants_json"`
	Keywords     string  `db:"keywords_json"`
	Metadata     string  `db:"metadata_json"`
}

// SaveMemory upserts one memory.
func (db *DB) SaveMemory(ctx context.Context, agentID string, m memory.Memory) error {
	locJSON, _ := json.Marshal(m.Location)
	partJSON, _ := json.Marshal(m.Participants)
	kwJSON, _ := json.Marshal(m.Keywords)
	metaJSON, _ := json.Marshal(m.Metadata)

	_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO memories
		(agent_id, id, kind, ts, event_type, description, importance, access_count,
		 last_accessed, location_json, participants_json, keywords_json, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, m.ID, string(m.Kind), formatTime(m.Timestamp), m.EventType, m.Description,
		m.Importance, m.AccessCount, formatTime(m.LastAccessed),
		string(locJSON), string(partJSON), string(kwJSON), string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("save memory %s/%s: %w", agentID, m.ID, err)
	}
	return nil
}

// DeleteMemory removes one memory. Deleting a missing memory is not an error.
func (db *DB) DeleteMemory(ctx context.Context, agentID, memoryID string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM memories WHERE agent_id = ? AND id = ?", agentID, memoryID)
	return err
}

// LoadMemories returns all stored memories for an agent, oldest first.
func (db *DB) LoadMemories(ctx context.Context, agentID string) ([]memory.Memory, error) {
	var rows []memoryRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM memories WHERE agent_id = ? ORDER BY ts, id", agentID)
	if err != nil {
		return nil, fmt.Errorf("load memories %s: %w", agentID, err)
	}

	out := make([]memory.Memory, 0, len(rows))
	for _, r := range rows {
		m := memory.Memory{
			ID:          r.ID,
			Kind:        memory.Kind(r.Kind),
			ObserverID:  r.AgentID,
			EventType:   r.EventType,
			Description: r.Description,
			Importance:  r.Importance,
			AccessCount: r.AccessCount,
		}
		if m.Timestamp, err = parseTime(r.Timestamp); err != nil {
			return nil, fmt.Errorf("memory %s timestamp: %w", r.ID, err)
		}
		if m.LastAccessed, err = parseTime(r.LastAccessed); err != nil {
			return nil, fmt.Errorf("memory %s last_accessed: %w", r.ID, err)
		}
		if err := unmarshalColumns(
			column{r.Location, &m.Location},
			column{r.Participants, &m.Participants},
			column{r.Keywords, &m.Keywords},
			column{r.Metadata, &m.Metadata},
		); err != nil {
			return nil, fmt.Errorf("memory %s: %w", r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// AgentRecord is the persisted part of an agent needed to resume it.
type AgentRecord struct {
	ID     string  `db:"id"`
	Name   string  `db:"name"`
	X      float64 `db:"x"`
	Y      float64 `db:"y"`
	Area   string  `db:"area"`
	State  string  `db:"state"`
	Energy float64 `db:"energy"`
	Mood   float64 `db:"mood"`
	Status string  `db:"status_json"`
}

// Position returns the record's world position.
func (r AgentRecord) Position() world.Position {
	return world.Position{X: r.X, Y: r.Y, Area: r.Area}
}

// SaveAgents writes all agent statuses (full replace).
func (db *DB) SaveAgents(ctx context.Context, statuses []agents.Status) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO agents
		(id, name, x, y, area, state, energy, mood, status_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range statuses {
		statusJSON, _ := json.Marshal(s)
		_, err := stmt.ExecContext(ctx,
			s.ID, s.Name, s.Position.X, s.Position.Y, s.Position.Area,
			string(s.State), s.Energy, s.Mood, string(statusJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// LoadAgents returns saved agent records keyed by id.
func (db *DB) LoadAgents(ctx context.Context) (map[string]AgentRecord, error) {
	var rows []AgentRecord
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM agents"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}
	out := make(map[string]AgentRecord, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// Archive appends retired events. It implements engine.EventSink.
func (db *DB) Archive(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO events
		(id, ts, type, description, location_json, participants_json, metadata_json, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evs {
		locJSON, _ := json.Marshal(e.Location)
		partJSON, _ := json.Marshal(e.Participants)
		metaJSON, _ := json.Marshal(e.Metadata)
		var duration sql.NullInt64
		if e.Duration != nil {
			duration = sql.NullInt64{Int64: int64(*e.Duration), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			e.ID, formatTime(e.Timestamp), e.Type, e.Description,
			string(locJSON), string(partJSON), string(metaJSON), duration,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

type eventRow struct {
	Seq          int64         `db:"seq"`
	ID           string        `db:"id"`
	Timestamp    string        `db:"ts"`
	Type         string        `db:"type"`
	Description  string        `db:"description"`
	Location     string        `db:"location_json"`
	Participants string        `db:"participants_json"`
	Metadata     string        `db:"metadata_json"`
	Duration     sql.NullInt64 `db:"duration"`
}

// RecentEvents returns the most recently archived events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]events.Event, error) {
	var rows []eventRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM events ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		e := events.Event{ID: r.ID, Type: r.Type, Description: r.Description}
		if e.Timestamp, err = parseTime(r.Timestamp); err != nil {
			return nil, fmt.Errorf("event %s timestamp: %w", r.ID, err)
		}
		if err := unmarshalColumns(
			column{r.Location, &e.Location},
			column{r.Participants, &e.Participants},
			column{r.Metadata, &e.Metadata},
		); err != nil {
			return nil, fmt.Errorf("event %s: %w", r.ID, err)
		}
		if r.Duration.Valid {
			d := int(r.Duration.Int64)
			e.Duration = &d
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns "" and no error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SaveWorldState saves agent statuses and the clock position from a snapshot.
func (db *DB) SaveWorldState(ctx context.Context, snap *engine.Snapshot) error {
	slog.Info("saving world state", "tick", snap.Tick, "agents", len(snap.Agents))

	if err := db.SaveAgents(ctx, snap.Agents); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveMeta(MetaLastTick, strconv.FormatUint(snap.Tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta(MetaSimTime, formatTime(snap.Time)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("world state saved")
	return nil
}

// LastTick returns the saved tick, or 0 for a fresh database.
func (db *DB) LastTick() (uint64, error) {
	v, err := db.GetMeta(MetaLastTick)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

type column struct {
	raw string
	dst any
}

func unmarshalColumns(cols ...column) error {
	for _, c := range cols {
		if c.raw == "" || c.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return err
		}
	}
	return nil
}

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
