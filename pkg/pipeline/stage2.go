package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

// Categories is the closed disease-category taxonomy.
var Categories = []string{
	"infectious", "inflammatory", "neoplastic",
	"allergic", "autoimmune", "pigmentary", "genetic",
}

// Stage2Category assigns the condition to a disease category.
type Stage2Category struct {
	caller Caller
	log    *logrus.Entry
}

// NewStage2Category builds the category classifier over caller.
func NewStage2Category(caller Caller) *Stage2Category {
	return &Stage2Category{caller: caller, log: logrus.WithField("stage", "stage2")}
}

// Classify picks the disease category for an abnormal image.
func (c *Stage2Category) Classify(ctx context.Context, diagnosisID, imagePath string, imageBytes []byte, stage1 *ClassificationResult) *CategoryResult {
	start := time.Now()

	input := provider.Input{
		DiagnosisID: diagnosisID,
		ImagePath:   imagePath,
		ImageBytes:  imageBytes,
		Categories:  Categories,
		Stages:      map[string]any{"stage1": stage1},
	}
	result := c.caller.Route(ctx, provider.TaskCategory, input, diagnosisID)

	if result.Success && result.Data != nil {
		category := result.Data.Category
		if !validCategory(category) {
			category = "inflammatory"
		}
		return &CategoryResult{
			StageMeta:   newMeta(result.Provider, result.FallbackUsed, start),
			Category:    category,
			Subcategory: result.Data.Subcategory,
			Confidence:  confidenceOr(result.Data.Confidence, 0.75),
		}
	}

	c.log.WithField("diagnosis_id", diagnosisID).Warn("category classification failed, using fallback")

	return &CategoryResult{
		StageMeta:  newMeta("fallback_default", true, start),
		Category:   "inflammatory",
		Confidence: 0.4,
	}
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
