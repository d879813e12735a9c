package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

// Classification labels emitted by Stage 1.
const (
	ClassNormal   = "normal"
	ClassAbnormal = "abnormal"
)

// Stage1Classifier decides normal versus abnormal. On total provider
// failure it defaults to abnormal so that a real condition is never
// waved through unexamined.
type Stage1Classifier struct {
	caller Caller
	log    *logrus.Entry
}

// NewStage1Classifier builds the classifier over caller.
func NewStage1Classifier(caller Caller) *Stage1Classifier {
	return &Stage1Classifier{caller: caller, log: logrus.WithField("stage", "stage1")}
}

// Classify labels the image normal or abnormal.
func (c *Stage1Classifier) Classify(ctx context.Context, diagnosisID, imagePath string, imageBytes []byte) *ClassificationResult {
	start := time.Now()

	input := provider.Input{
		DiagnosisID: diagnosisID,
		ImagePath:   imagePath,
		ImageBytes:  imageBytes,
		Classes:     []string{ClassNormal, ClassAbnormal},
	}
	result := c.caller.Route(ctx, provider.TaskNormalAbnormal, input, diagnosisID)

	if result.Success && result.Data != nil {
		classification := result.Data.Classification
		if classification != ClassNormal && classification != ClassAbnormal {
			classification = ClassAbnormal
		}
		return &ClassificationResult{
			StageMeta:      newMeta(result.Provider, result.FallbackUsed, start),
			Classification: classification,
			Confidence:     confidenceOr(result.Data.Confidence, 0.85),
		}
	}

	c.log.WithField("diagnosis_id", diagnosisID).Warn("classification failed, defaulting to abnormal")

	return &ClassificationResult{
		StageMeta:      newMeta("fallback_default", true, start),
		Classification: ClassAbnormal,
		Confidence:     0.5,
		Note:           "Defaulted to abnormal due to AI failure",
	}
}
