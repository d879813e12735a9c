package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/disease"
	"github.com/dermapipe/dermapipe/pkg/provider"
)

// Stage3Diagnosis narrows an abnormal, categorized image down to a
// concrete disease from the table. Candidates sent to the provider are
// restricted to the stage2 category so the model picks among plausible
// conditions only.
type Stage3Diagnosis struct {
	caller   Caller
	diseases *disease.Table
	log      *logrus.Entry
}

// NewStage3Diagnosis builds the diagnoser over caller and the disease
// table. A nil table falls back to the built-in one.
func NewStage3Diagnosis(caller Caller, table *disease.Table) *Stage3Diagnosis {
	if table == nil {
		table = disease.Default()
	}
	return &Stage3Diagnosis{
		caller:   caller,
		diseases: table,
		log:      logrus.WithField("stage", "stage3"),
	}
}

// Diagnose produces the fine-grained diagnosis.
func (d *Stage3Diagnosis) Diagnose(ctx context.Context, diagnosisID, imagePath string, imageBytes []byte, stage1 *ClassificationResult, stage2 *CategoryResult) *DiagnosisResult {
	start := time.Now()

	category := "inflammatory"
	subcategory := ""
	if stage2 != nil && stage2.Category != "" {
		category = stage2.Category
		subcategory = stage2.Subcategory
	}

	input := provider.Input{
		DiagnosisID: diagnosisID,
		ImagePath:   imagePath,
		ImageBytes:  imageBytes,
		Category:    category,
		Subcategory: subcategory,
		Candidates:  d.diseases.ByCategory(category),
		Stages:      map[string]any{"stage1": stage1, "stage2": stage2},
	}
	result := d.caller.Route(ctx, provider.TaskDiagnosis, input, diagnosisID)

	if result.Success && result.Data != nil {
		id := result.Data.Disease
		out := &DiagnosisResult{
			StageMeta:    newMeta(result.Provider, result.FallbackUsed, start),
			Disease:      id,
			DiseaseName:  GuidanceName{En: id},
			Confidence:   confidenceOr(result.Data.Confidence, 0.7),
			Severity:     severityOr(result.Data.Severity, "moderate"),
			Differential: result.Data.Differential,
		}
		if info, ok := d.diseases.Lookup(id); ok {
			out.DiseaseName = GuidanceName{En: info.Name.En, Ar: info.Name.Ar}
		}
		return out
	}

	d.log.WithField("diagnosis_id", diagnosisID).Warn("diagnosis failed, flagging for doctor review")

	return &DiagnosisResult{
		StageMeta:            newMeta("fallback_default", true, start),
		Disease:              "unknown",
		DiseaseName:          GuidanceName{En: "Unknown Condition", Ar: "حالة غير معروفة"},
		Confidence:           0.3,
		Severity:             "unknown",
		Differential:         []string{},
		RequiresDoctorReview: true,
	}
}

func severityOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
