package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

// Rejection reasons produced by the validation gate.
const (
	ReasonNotSkin     = "not_skin_image"
	ReasonPoorQuality = "poor_image_quality"
	ReasonNotMedical  = "not_medical_image"
	ReasonFailed      = "validation_failed"
)

var gateGuidance = map[string]Guidance{
	ReasonNotSkin: {
		En: "Please upload a clear photo of the affected skin area.",
		Ar: "يرجى تحميل صورة واضحة للمنطقة المصابة من الجلد.",
	},
	ReasonPoorQuality: {
		En: "The image quality is too low. Please upload a clearer, well-lit photo.",
		Ar: "جودة الصورة منخفضة جدًا. يرجى تحميل صورة أوضح وذات إضاءة جيدة.",
	},
	ReasonNotMedical: {
		En: "This image does not appear to show a skin condition. Please upload a photo of the affected area.",
		Ar: "لا يبدو أن هذه الصورة تظهر حالة جلدية. يرجى تحميل صورة للمنطقة المصابة.",
	},
	ReasonFailed: {
		En: "We could not process this image. Please try again with a different photo.",
		Ar: "لم نتمكن من معالجة هذه الصورة. يرجى المحاولة مرة أخرى بصورة مختلفة.",
	},
}

// Stage0Gate is the mandatory validation gate. It is the one stage where
// total provider failure becomes a hard rejection instead of a
// best-effort default: an unvalidated image must never proceed.
type Stage0Gate struct {
	caller Caller
	log    *logrus.Entry
}

// NewStage0Gate builds the gate over caller.
func NewStage0Gate(caller Caller) *Stage0Gate {
	return &Stage0Gate{caller: caller, log: logrus.WithField("stage", "stage0")}
}

// Validate checks that the image is usable human-skin medical imagery.
func (g *Stage0Gate) Validate(ctx context.Context, diagnosisID, imagePath string, imageBytes []byte) *GateResult {
	start := time.Now()

	input := provider.Input{
		DiagnosisID: diagnosisID,
		ImagePath:   imagePath,
		ImageBytes:  imageBytes,
	}
	result := g.caller.Route(ctx, provider.TaskValidation, input, diagnosisID)

	if result.Success && result.Data != nil {
		out := &GateResult{
			StageMeta:  newMeta(result.Provider, result.FallbackUsed, start),
			IsSkin:     boolOr(result.Data.IsSkin, true),
			IsMedical:  boolOr(result.Data.IsMedical, true),
			IsUsable:   boolOr(result.Data.IsUsable, true),
			Confidence: confidenceOr(result.Data.Confidence, 0.95),
		}
		out.IsValid = out.IsSkin && out.IsMedical && out.IsUsable
		if !out.IsValid {
			out.RejectionReason = reasonFromFlags(out)
			out.UserGuidance = guidanceFor(out.RejectionReason)
			g.log.WithFields(logrus.Fields{
				"diagnosis_id": diagnosisID,
				"reason":       out.RejectionReason,
			}).Warn("image rejected by gate")
		}
		return out
	}

	reason := reasonFromError(result.Error)
	g.log.WithFields(logrus.Fields{
		"diagnosis_id": diagnosisID,
		"reason":       reason,
	}).Warn("gate validation unavailable, rejecting image")

	return &GateResult{
		StageMeta:       newMeta("validation_failed", true, start),
		IsValid:         false,
		RejectionReason: reason,
		UserGuidance:    guidanceFor(reason),
	}
}

func reasonFromFlags(g *GateResult) string {
	switch {
	case !g.IsSkin:
		return ReasonNotSkin
	case !g.IsUsable:
		return ReasonPoorQuality
	case !g.IsMedical:
		return ReasonNotMedical
	default:
		return ReasonFailed
	}
}

func reasonFromError(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "not skin"):
		return ReasonNotSkin
	case strings.Contains(lower, "quality"):
		return ReasonPoorQuality
	case strings.Contains(lower, "not medical"):
		return ReasonNotMedical
	default:
		return ReasonFailed
	}
}

func guidanceFor(reason string) *Guidance {
	g, ok := gateGuidance[reason]
	if !ok {
		g = gateGuidance[ReasonFailed]
	}
	return &g
}
