package provider

import (
	"context"
	"fmt"

	"github.com/dermapipe/dermapipe/pkg/disease"
)

// Task identifies one diagnosis pipeline task. The set is closed: the
// router refuses to dispatch anything outside it.
type Task string

const (
	TaskValidation     Task = "stage0_validation"
	TaskNormalAbnormal Task = "stage1_normal_abnormal"
	TaskCategory       Task = "stage2_category"
	TaskDiagnosis      Task = "stage3_diagnosis"
	TaskFusion         Task = "stage4_fusion"
)

// Tasks lists every known task in pipeline order.
var Tasks = []Task{
	TaskValidation,
	TaskNormalAbnormal,
	TaskCategory,
	TaskDiagnosis,
	TaskFusion,
}

// Valid reports whether t is a known task.
func (t Task) Valid() bool {
	switch t {
	case TaskValidation, TaskNormalAbnormal, TaskCategory, TaskDiagnosis, TaskFusion:
		return true
	}
	return false
}

func (t Task) String() string {
	return string(t)
}

// ParseTask converts a task name into a Task.
func ParseTask(s string) (Task, error) {
	t := Task(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown task %q", s)
	}
	return t, nil
}

// Input carries the per-task payload handed to a provider.
type Input struct {
	DiagnosisID string
	ImagePath   string
	ImageBytes  []byte

	// Stage 1: candidate class labels.
	Classes []string

	// Stage 2: candidate category ids.
	Categories []string

	// Stage 3: narrowed category and disease candidates.
	Category    string
	Subcategory string
	Candidates  []disease.Disease

	// Stage 4: patient profile and prior stage summaries.
	Patient map[string]any
	Stages  map[string]any
}

// Output is the normalized payload a provider returns for a task. Optional
// fields are pointers so callers can distinguish "absent" from zero.
type Output struct {
	// stage0_validation
	IsSkin    *bool
	IsMedical *bool
	IsUsable  *bool

	// stage1_normal_abnormal
	Classification string

	// stage2_category
	Category    string
	Subcategory string

	// stage3_diagnosis
	Disease      string
	Severity     string
	Differential []string

	// stage4_fusion
	Diagnosis       string
	Urgency         string
	Explanation     string
	Recommendations []string
	FollowUp        string

	Confidence *float64

	// Raw holds the unparsed provider response for audit.
	Raw string
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the uniform capability every inference backend implements.
// Execute handles pipeline stage tasks; Chat serves the assistant.
type Provider interface {
	Name() string
	Execute(ctx context.Context, task Task, input Input) (*Output, error)
	Chat(ctx context.Context, messages []Message) (string, error)
}
