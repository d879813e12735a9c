// Package pipeline runs the five-stage diagnosis flow. Stage 0 is a
// mandatory gate; a rejected image terminates the run before any later
// stage executes. A normal stage1 classification skips stages 2 and 3.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/disease"
	"github.com/dermapipe/dermapipe/pkg/provider"
	"github.com/dermapipe/dermapipe/pkg/router"
	"github.com/dermapipe/dermapipe/pkg/store"
)

// Caller dispatches one task to the provider chain. *router.Router
// satisfies it directly; RetryCaller adds whole-chain retry on top.
type Caller interface {
	Route(ctx context.Context, task provider.Task, input provider.Input, diagnosisID string) router.AIResult
}

// RetryCaller wraps a Router so every stage dispatch retries the whole
// chain with backoff instead of failing after a single pass.
type RetryCaller struct {
	Router     *router.Router
	MaxRetries int
}

func (c RetryCaller) Route(ctx context.Context, task provider.Task, input provider.Input, diagnosisID string) router.AIResult {
	return c.Router.RouteWithRetry(ctx, task, input, diagnosisID, c.MaxRetries)
}

// SkipReasonNormal marks stages bypassed by a normal classification.
const SkipReasonNormal = "normal_classification"

// Request is one diagnosis run.
type Request struct {
	DiagnosisID string
	ImagePath   string
	ImageBytes  []byte
	Patient     map[string]any
}

// Pipeline orchestrates the stages. It is stateless between runs and
// safe for concurrent Execute calls.
type Pipeline struct {
	gate     *Stage0Gate
	classify *Stage1Classifier
	category *Stage2Category
	diagnose *Stage3Diagnosis
	fuse     *Stage4Fusion
	sink     store.Sink
	log      *logrus.Entry
}

// New assembles a pipeline over caller, recording stage snapshots to
// sink. A nil sink discards records; a nil table uses the built-in
// disease set.
func New(caller Caller, sink store.Sink, table *disease.Table) *Pipeline {
	if sink == nil {
		sink = store.Nop{}
	}
	return &Pipeline{
		gate:     NewStage0Gate(caller),
		classify: NewStage1Classifier(caller),
		category: NewStage2Category(caller),
		diagnose: NewStage3Diagnosis(caller, table),
		fuse:     NewStage4Fusion(caller),
		sink:     sink,
		log:      logrus.WithField("component", "pipeline"),
	}
}

// Execute runs the full pipeline for one request. It never panics:
// unexpected failures surface as success=false with the partial stage
// snapshots preserved.
func (p *Pipeline) Execute(ctx context.Context, req Request) (result *PipelineResult) {
	start := time.Now()
	result = &PipelineResult{}
	log := p.log.WithField("diagnosis_id", req.DiagnosisID)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("pipeline panic: %v", r)
			result.Success = false
			result.Error = fmt.Sprintf("pipeline failure: %v", r)
		}
		result.TotalDurationMs = time.Since(start).Milliseconds()
	}()

	log.Info("stage 0: validation gate")
	result.Stage0 = p.gate.Validate(ctx, req.DiagnosisID, req.ImagePath, req.ImageBytes)
	p.record(req.DiagnosisID, "stage0", result.Stage0)

	if !result.Stage0.IsValid {
		result.Error = result.Stage0.RejectionReason
		if result.Error == "" {
			result.Error = ReasonFailed
		}
		log.WithField("reason", result.Error).Warn("gate rejected image")
		return result
	}

	log.Info("stage 1: normal/abnormal classification")
	result.Stage1 = p.classify.Classify(ctx, req.DiagnosisID, req.ImagePath, req.ImageBytes)
	p.record(req.DiagnosisID, "stage1", result.Stage1)

	if result.Stage1.Classification == ClassNormal {
		log.Info("classified normal, skipping to fusion")
		result.Stage2 = SkipCategory(SkipReasonNormal)
		result.Stage3 = SkipDiagnosis(SkipReasonNormal)
	} else {
		log.Info("stage 2: category classification")
		result.Stage2 = p.category.Classify(ctx, req.DiagnosisID, req.ImagePath, req.ImageBytes, result.Stage1)
		p.record(req.DiagnosisID, "stage2", result.Stage2)

		log.Info("stage 3: disease diagnosis")
		result.Stage3 = p.diagnose.Diagnose(ctx, req.DiagnosisID, req.ImagePath, req.ImageBytes, result.Stage1, result.Stage2)
		p.record(req.DiagnosisID, "stage3", result.Stage3)
	}

	log.Info("stage 4: fusion")
	result.Stage4 = p.fuse.Fuse(ctx, req.DiagnosisID, req.Patient, result.Stage1, result.Stage2, result.Stage3)
	p.record(req.DiagnosisID, "stage4", result.Stage4)

	result.Success = true
	log.Info("pipeline completed")
	return result
}

// record snapshots one stage. Sinks are best effort; a failing sink is
// logged and never aborts the diagnosis.
func (p *Pipeline) record(diagnosisID, stage string, snapshot any) {
	if err := p.sink.RecordStage(diagnosisID, stage, snapshot); err != nil {
		p.log.WithFields(logrus.Fields{
			"diagnosis_id": diagnosisID,
			"stage":        stage,
		}).WithError(err).Warn("record stage failed")
	}
}
