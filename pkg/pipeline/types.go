package pipeline

import (
	"math"
	"time"
)

// StageMeta is the metadata every stage result carries.
type StageMeta struct {
	// Source is the provider that produced the result, or one of the
	// synthetic sources fallback_default / validation_failed /
	// fallback_fusion / short_circuit.
	Source          string `json:"source,omitempty"`
	FallbackUsed    bool   `json:"fallback_used,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// Guidance is a bilingual user-facing text.
type Guidance struct {
	En string `json:"en"`
	Ar string `json:"ar,omitempty"`
}

// GateResult is Stage 0's outcome.
type GateResult struct {
	StageMeta
	IsValid         bool      `json:"is_valid"`
	IsSkin          bool      `json:"is_skin"`
	IsMedical       bool      `json:"is_medical"`
	IsUsable        bool      `json:"is_usable"`
	Confidence      float64   `json:"confidence,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	UserGuidance    *Guidance `json:"user_guidance,omitempty"`
}

// ClassificationResult is Stage 1's outcome.
type ClassificationResult struct {
	StageMeta
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Note           string  `json:"note,omitempty"`
}

// CategoryResult is Stage 2's outcome, or a skip marker when Stage 1
// classified the image as normal.
type CategoryResult struct {
	StageMeta
	Skipped     bool    `json:"skipped,omitempty"`
	SkipReason  string  `json:"reason,omitempty"`
	Category    string  `json:"category,omitempty"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// DiagnosisResult is Stage 3's outcome, or a skip marker.
type DiagnosisResult struct {
	StageMeta
	Skipped              bool         `json:"skipped,omitempty"`
	SkipReason           string       `json:"reason,omitempty"`
	Disease              string       `json:"disease,omitempty"`
	DiseaseName          GuidanceName `json:"disease_name,omitempty"`
	Confidence           float64      `json:"confidence,omitempty"`
	Severity             string       `json:"severity,omitempty"`
	Differential         []string     `json:"differential_diagnoses,omitempty"`
	RequiresDoctorReview bool         `json:"requires_doctor_review,omitempty"`
}

// GuidanceName is a localized disease display name.
type GuidanceName struct {
	En string `json:"en,omitempty"`
	Ar string `json:"ar,omitempty"`
}

// FusionResult is Stage 4's final verdict.
type FusionResult struct {
	StageMeta
	FinalDiagnosis  string     `json:"final_diagnosis"`
	FinalConfidence float64    `json:"final_confidence"`
	Severity        string     `json:"severity"`
	Urgency         string     `json:"urgency"`
	Explanation     Guidance   `json:"explanation"`
	Recommendations []Guidance `json:"recommendations,omitempty"`
	FollowUp        string     `json:"follow_up,omitempty"`
	SourcesUsed     []string   `json:"sources_used,omitempty"`
}

// PipelineResult aggregates one diagnosis run. It is owned by a single
// request and never shared across concurrent runs.
type PipelineResult struct {
	Success         bool                  `json:"success"`
	Stage0          *GateResult           `json:"stage0,omitempty"`
	Stage1          *ClassificationResult `json:"stage1,omitempty"`
	Stage2          *CategoryResult       `json:"stage2,omitempty"`
	Stage3          *DiagnosisResult      `json:"stage3,omitempty"`
	Stage4          *FusionResult         `json:"stage4,omitempty"`
	Error           string                `json:"error,omitempty"`
	TotalDurationMs int64                 `json:"total_duration_ms"`
}

// SkipCategory builds the Stage 2 skip marker.
func SkipCategory(reason string) *CategoryResult {
	return &CategoryResult{Skipped: true, SkipReason: reason}
}

// SkipDiagnosis builds the Stage 3 skip marker.
func SkipDiagnosis(reason string) *DiagnosisResult {
	return &DiagnosisResult{Skipped: true, SkipReason: reason}
}

func newMeta(source string, fallbackUsed bool, start time.Time) StageMeta {
	return StageMeta{
		Source:          source,
		FallbackUsed:    fallbackUsed,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

// clamp01 bounds a confidence score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round2 rounds to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func confidenceOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return clamp01(*v)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
