// Package usage records plugin invocations in a local SQLite database so
// the API can answer "what ran, how often, how slow" without keeping state
// in memory across restarts.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	plugin_id   TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	failed      INTEGER NOT NULL DEFAULT 0,
	at          TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_plugin ON invocations(plugin_id);
`

// Tracker persists invocation records.
type Tracker struct {
	db *sql.DB
}

// Open creates or opens the usage database at path.
func Open(path string) (*Tracker, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// SQLite locks the file per connection; one writer is all we need.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init usage schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

// Close releases the database handle.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// Record stores one completed invocation. Implements the runner's recorder
// interface; errors are swallowed because usage accounting must never fail
// an execution.
func (t *Tracker) Record(pluginID string, kind models.ExecutionType, duration time.Duration, execErr error) {
	failed := 0
	if execErr != nil {
		failed = 1
	}
	t.db.Exec(
		`INSERT INTO invocations (plugin_id, kind, duration_ms, failed, at) VALUES (?, ?, ?, ?, ?)`,
		pluginID, string(kind), duration.Milliseconds(), failed, time.Now().UTC().Format(time.RFC3339),
	)
}

// Summary is the aggregate usage of one plugin.
type Summary struct {
	PluginID      string    `json:"plugin_id"`
	Invocations   int       `json:"invocations"`
	Failures      int       `json:"failures"`
	AvgDurationMS int       `json:"avg_duration_ms"`
	LastUsed      time.Time `json:"last_used"`
}

// Summaries aggregates usage per plugin, most used first.
func (t *Tracker) Summaries() ([]Summary, error) {
	rows, err := t.db.Query(`
		SELECT plugin_id, COUNT(*), SUM(failed), CAST(AVG(duration_ms) AS INTEGER), MAX(at)
		FROM invocations GROUP BY plugin_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		var last string
		if err := rows.Scan(&s.PluginID, &s.Invocations, &s.Failures, &s.AvgDurationMS, &last); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		s.LastUsed, _ = time.Parse(time.RFC3339, last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Purge drops all records for a plugin, for uninstalls.
func (t *Tracker) Purge(pluginID string) error {
	_, err := t.db.Exec(`DELETE FROM invocations WHERE plugin_id = ?`, pluginID)
	return err
}
