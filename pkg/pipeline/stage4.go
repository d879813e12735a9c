package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

// Confidence weights for the fusion score. Stage 3 dominates because it
// is the only stage that names a disease.
const (
	weightStage1 = 0.1
	weightStage2 = 0.2
	weightStage3 = 0.4
	weightFusion = 0.3
)

// Stage4Fusion combines the earlier stage outputs with patient data into
// the final verdict. A normal stage1 classification short-circuits to a
// healthy-skin result without any provider call.
type Stage4Fusion struct {
	caller Caller
	log    *logrus.Entry
}

// NewStage4Fusion builds the fusion layer over caller.
func NewStage4Fusion(caller Caller) *Stage4Fusion {
	return &Stage4Fusion{caller: caller, log: logrus.WithField("stage", "stage4")}
}

// Fuse produces the final diagnosis from the stage snapshots.
func (f *Stage4Fusion) Fuse(ctx context.Context, diagnosisID string, patient map[string]any, stage1 *ClassificationResult, stage2 *CategoryResult, stage3 *DiagnosisResult) *FusionResult {
	start := time.Now()

	if stage1 != nil && stage1.Classification == ClassNormal {
		return normalResult(start)
	}

	input := provider.Input{
		DiagnosisID: diagnosisID,
		Patient:     patient,
		Stages: map[string]any{
			"stage1": stage1,
			"stage2": stage2,
			"stage3": stage3,
		},
	}
	result := f.caller.Route(ctx, provider.TaskFusion, input, diagnosisID)

	if result.Success && result.Data != nil {
		out := &FusionResult{
			StageMeta:       newMeta(result.Provider, result.FallbackUsed, start),
			FinalDiagnosis:  result.Data.Diagnosis,
			FinalConfidence: fusedConfidence(stage1, stage2, stage3, result.Data.Confidence),
			Severity:        result.Data.Severity,
			Urgency:         result.Data.Urgency,
			FollowUp:        result.Data.FollowUp,
			SourcesUsed:     []string{"stage1", "stage2", "stage3", "patient_history"},
		}
		if out.FinalDiagnosis == "" && stage3 != nil {
			out.FinalDiagnosis = stage3.Disease
		}
		if out.Severity == "" && stage3 != nil {
			out.Severity = stage3.Severity
		}
		if out.Severity == "" {
			out.Severity = "moderate"
		}
		if out.Urgency == "" {
			out.Urgency = "routine"
		}
		if out.FollowUp == "" {
			out.FollowUp = "consult_doctor"
		}
		if result.Data.Explanation != "" {
			out.Explanation = Guidance{En: result.Data.Explanation}
		}
		for _, r := range result.Data.Recommendations {
			out.Recommendations = append(out.Recommendations, Guidance{En: r})
		}
		return out
	}

	f.log.WithField("diagnosis_id", diagnosisID).Warn("fusion failed, deriving verdict from diagnosis stage")

	return fallbackResult(stage3, start)
}

// fusedConfidence is the weighted blend of per-stage confidence scores,
// capped at 0.99 and rounded to two decimals. Absent scores take the
// historical per-stage priors.
func fusedConfidence(stage1 *ClassificationResult, stage2 *CategoryResult, stage3 *DiagnosisResult, fusion *float64) float64 {
	c1, c2, c3 := 0.8, 0.7, 0.6
	if stage1 != nil {
		c1 = stage1.Confidence
	}
	if stage2 != nil && !stage2.Skipped {
		c2 = stage2.Confidence
	}
	if stage3 != nil && !stage3.Skipped {
		c3 = stage3.Confidence
	}
	c4 := confidenceOr(fusion, 0.7)

	total := c1*weightStage1 + c2*weightStage2 + c3*weightStage3 + c4*weightFusion
	return round2(math.Min(total, 0.99))
}

func normalResult(start time.Time) *FusionResult {
	return &FusionResult{
		StageMeta:       newMeta("short_circuit", false, start),
		FinalDiagnosis:  "normal_skin",
		FinalConfidence: 0.9,
		Severity:        "none",
		Urgency:         "none",
		Explanation: Guidance{
			En: "The skin appears healthy with no visible abnormalities.",
			Ar: "يبدو الجلد صحيًا بدون أي تشوهات مرئية.",
		},
		Recommendations: []Guidance{
			{En: "Continue regular skincare routine", Ar: "استمر في روتين العناية بالبشرة"},
			{En: "Use sunscreen daily", Ar: "استخدم واقي الشمس يوميًا"},
			{En: "Monitor for any changes", Ar: "راقب أي تغييرات"},
		},
		FollowUp:    "none",
		SourcesUsed: []string{"stage1"},
	}
}

func fallbackResult(stage3 *DiagnosisResult, start time.Time) *FusionResult {
	diseaseID := "unknown"
	confidence := 0.5
	severity := "moderate"
	if stage3 != nil && !stage3.Skipped {
		if stage3.Disease != "" {
			diseaseID = stage3.Disease
		}
		confidence = stage3.Confidence
		if stage3.Severity != "" {
			severity = stage3.Severity
		}
	}

	return &FusionResult{
		StageMeta:       newMeta("fallback_fusion", true, start),
		FinalDiagnosis:  diseaseID,
		FinalConfidence: round2(clamp01(confidence * 0.8)),
		Severity:        severity,
		Urgency:         "consult_doctor",
		Explanation: Guidance{
			En: "AI analysis indicates a potential skin condition. Please consult a dermatologist.",
			Ar: "يشير تحليل الذكاء الاصطناعي إلى حالة جلدية محتملة. يرجى استشارة طبيب جلدية.",
		},
		Recommendations: []Guidance{
			{En: "Consult a dermatologist", Ar: "استشر طبيب جلدية"},
			{En: "Keep the area clean and dry", Ar: "حافظ على المنطقة نظيفة وجافة"},
			{En: "Avoid scratching", Ar: "تجنب الحك"},
		},
		FollowUp:    "1_week",
		SourcesUsed: []string{"stage3"},
	}
}
