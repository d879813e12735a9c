package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogWriter is a Sink appending JSONL events under dir, partitioned by
// day. It complements the sqlite store with a grep-able audit trail.
type LogWriter struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

type logEvent struct {
	Timestamp   string `json:"timestamp"`
	EventType   string `json:"event_type"`
	DiagnosisID string `json:"diagnosis_id"`
	Data        any    `json:"data"`
}

// NewLogWriter creates a JSONL event log rooted at dir.
func NewLogWriter(dir string) *LogWriter {
	return &LogWriter{dir: dir, now: time.Now}
}

// RecordStage appends a pipeline_stage event.
func (w *LogWriter) RecordStage(diagnosisID, stage string, result any) error {
	return w.append("pipeline_stage", diagnosisID, map[string]any{
		"stage":  stage,
		"result": result,
	})
}

// RecordAICall appends an ai_call event.
func (w *LogWriter) RecordAICall(diagnosisID, task, providerName string, success bool, durationMs int64, errMsg string) error {
	data := map[string]any{
		"task":        task,
		"provider":    providerName,
		"success":     success,
		"duration_ms": durationMs,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return w.append("ai_call", diagnosisID, data)
}

func (w *LogWriter) append(eventType, diagnosisID string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	dayDir := filepath.Join(w.dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	line, err := json.Marshal(logEvent{
		Timestamp:   now.Format(time.RFC3339),
		EventType:   eventType,
		DiagnosisID: diagnosisID,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dayDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}
	return nil
}
