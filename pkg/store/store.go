// Package store persists per-stage diagnosis snapshots and the AI call
// audit trail. The pipeline treats every sink as best-effort: a failing
// sink is logged and never aborts a diagnosis.
package store

// Sink accepts pipeline audit records.
type Sink interface {
	// RecordStage stores a snapshot of one executed stage's result.
	RecordStage(diagnosisID, stage string, result any) error

	// RecordAICall appends one provider attempt outcome.
	RecordAICall(diagnosisID, task, providerName string, success bool, durationMs int64, errMsg string) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordStage(string, string, any) error { return nil }

func (Nop) RecordAICall(string, string, string, bool, int64, string) error { return nil }

// Fanout duplicates records to several sinks, returning the first error
// after all sinks have been tried.
type Fanout []Sink

func (f Fanout) RecordStage(diagnosisID, stage string, result any) error {
	var firstErr error
	for _, s := range f {
		if err := s.RecordStage(diagnosisID, stage, result); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f Fanout) RecordAICall(diagnosisID, task, providerName string, success bool, durationMs int64, errMsg string) error {
	var firstErr error
	for _, s := range f {
		if err := s.RecordAICall(diagnosisID, task, providerName, success, durationMs, errMsg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
