package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stage_results (
	diagnosis_id TEXT NOT NULL,
	stage        TEXT NOT NULL,
	result       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	PRIMARY KEY (diagnosis_id, stage)
);

CREATE TABLE IF NOT EXISTS ai_calls (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	diagnosis_id TEXT NOT NULL,
	task         TEXT NOT NULL,
	provider     TEXT NOT NULL,
	success      INTEGER NOT NULL,
	duration_ms  INTEGER NOT NULL,
	error        TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ai_calls_diagnosis ON ai_calls (diagnosis_id);
`

// SQLite is a Sink backed by an embedded sqlite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// RecordStage upserts the snapshot for one stage of a diagnosis.
func (s *SQLite) RecordStage(diagnosisID, stage string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal stage result: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO stage_results (diagnosis_id, stage, result, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (diagnosis_id, stage) DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		diagnosisID, stage, string(payload), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record stage: %w", err)
	}
	return nil
}

// RecordAICall appends one provider attempt outcome.
func (s *SQLite) RecordAICall(diagnosisID, task, providerName string, success bool, durationMs int64, errMsg string) error {
	_, err := s.db.Exec(
		`INSERT INTO ai_calls (diagnosis_id, task, provider, success, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		diagnosisID, task, providerName, boolToInt(success), durationMs, errMsg,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record ai call: %w", err)
	}
	return nil
}

// StageResults returns the stored snapshots for one diagnosis keyed by
// stage name.
func (s *SQLite) StageResults(diagnosisID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(
		`SELECT stage, result FROM stage_results WHERE diagnosis_id = ?`, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var stage, result string
		if err := rows.Scan(&stage, &result); err != nil {
			return nil, err
		}
		out[stage] = json.RawMessage(result)
	}
	return out, rows.Err()
}

// AICall is one stored provider attempt.
type AICall struct {
	DiagnosisID string
	Task        string
	Provider    string
	Success     bool
	DurationMs  int64
	Error       string
	CreatedAt   string
}

// AICalls returns the attempt log for one diagnosis in insertion order.
func (s *SQLite) AICalls(diagnosisID string) ([]AICall, error) {
	rows, err := s.db.Query(
		`SELECT diagnosis_id, task, provider, success, duration_ms, COALESCE(error, ''), created_at
		 FROM ai_calls WHERE diagnosis_id = ? ORDER BY id`, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("query ai calls: %w", err)
	}
	defer rows.Close()

	var out []AICall
	for rows.Next() {
		var c AICall
		var success int
		if err := rows.Scan(&c.DiagnosisID, &c.Task, &c.Provider, &success, &c.DurationMs, &c.Error, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Success = success != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
