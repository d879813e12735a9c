package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt renders the instruction text for a stage task. All external
// providers share the same prompts so their answers stay comparable.
func BuildPrompt(task Task, input Input) string {
	switch task {
	case TaskValidation:
		return `Analyze this image and determine:
1. Is this an image of human skin?
2. Does it show a potential skin condition or disease?
3. Is the image quality sufficient for medical analysis?

Respond ONLY with JSON:
{"is_skin": true/false, "is_medical": true/false, "is_usable": true/false, "confidence": 0.0-1.0, "reason": "explanation"}`

	case TaskNormalAbnormal:
		return `Examine this skin image and classify:
- Normal: Healthy skin with no visible abnormalities
- Abnormal: Shows signs of disease, lesion, discoloration, or inflammation

Respond ONLY with JSON: {"classification": "normal" or "abnormal", "confidence": 0.0-1.0, "observations": "what you see"}`

	case TaskCategory:
		return fmt.Sprintf(`Classify this skin condition into one of these categories:
%s

Consider: lesion type, color, pattern, distribution.

Respond ONLY with JSON: {"category": "category_id", "subcategory": "if applicable", "confidence": 0.0-1.0}`,
			strings.Join(input.Categories, ", "))

	case TaskDiagnosis:
		ids := make([]string, 0, len(input.Candidates))
		for _, d := range input.Candidates {
			ids = append(ids, d.ID)
		}
		return fmt.Sprintf(`Based on visual analysis, identify the most likely condition.
Category: %s
Possible conditions: %s

Respond ONLY with JSON: {"disease": "disease_id", "confidence": 0.0-1.0, "severity": "mild/moderate/severe", "differential": ["other candidate ids"]}`,
			input.Category, strings.Join(ids, ", "))

	case TaskFusion:
		stages, _ := json.Marshal(input.Stages)
		patient, _ := json.Marshal(input.Patient)
		return fmt.Sprintf(`You are reviewing a multi-stage skin diagnosis. Combine the stage
results with the patient context into a final verdict.

Stage results: %s
Patient context: %s

Respond ONLY with JSON: {"diagnosis": "disease_id", "confidence": 0.0-1.0, "severity": "mild/moderate/severe", "urgency": "none/routine/consult_doctor/urgent", "explanation": "plain language summary", "recommendations": ["short actionable items"], "follow_up": "none/1_week/consult_doctor"}`,
			stages, patient)
	}

	return "Analyze this medical skin image."
}

// wireOutput is the JSON shape providers are instructed to answer with.
type wireOutput struct {
	IsSkin          *bool    `json:"is_skin"`
	IsMedical       *bool    `json:"is_medical"`
	IsUsable        *bool    `json:"is_usable"`
	Classification  string   `json:"classification"`
	Category        string   `json:"category"`
	Subcategory     string   `json:"subcategory"`
	Disease         string   `json:"disease"`
	Severity        string   `json:"severity"`
	Differential    []string `json:"differential"`
	Diagnosis       string   `json:"diagnosis"`
	Urgency         string   `json:"urgency"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
	FollowUp        string   `json:"follow_up"`
	Confidence      *float64 `json:"confidence"`
}

// ParseOutput extracts the task payload from a model response. Models often
// wrap JSON in markdown fences; those are stripped before decoding.
func ParseOutput(text string) (*Output, error) {
	cleaned := ExtractJSON(text)

	var wire wireOutput
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("parse provider response: %w", err)
	}

	return &Output{
		IsSkin:          wire.IsSkin,
		IsMedical:       wire.IsMedical,
		IsUsable:        wire.IsUsable,
		Classification:  wire.Classification,
		Category:        wire.Category,
		Subcategory:     wire.Subcategory,
		Disease:         wire.Disease,
		Severity:        wire.Severity,
		Differential:    wire.Differential,
		Diagnosis:       wire.Diagnosis,
		Urgency:         wire.Urgency,
		Explanation:     wire.Explanation,
		Recommendations: wire.Recommendations,
		FollowUp:        wire.FollowUp,
		Confidence:      wire.Confidence,
		Raw:             text,
	}, nil
}

// ExtractJSON strips markdown code fences around a JSON body.
func ExtractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if idx := strings.Index(trimmed, "```json"); idx >= 0 {
		rest := trimmed[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return trimmed
}
