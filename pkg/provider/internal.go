package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// Internal is the built-in heuristic model. It needs no credentials and
// anchors every fallback chain so the pipeline keeps working when all
// external APIs are down. Its answers are coarse by design.
type Internal struct{}

// NewInternal creates the internal heuristic provider.
func NewInternal() *Internal {
	return &Internal{}
}

// Name returns the provider identifier.
func (p *Internal) Name() string {
	return "internal"
}

// Execute runs the heuristic for a stage task.
func (p *Internal) Execute(_ context.Context, task Task, input Input) (*Output, error) {
	switch task {
	case TaskValidation:
		return p.validate(input)
	case TaskNormalAbnormal:
		return p.classify(input)
	case TaskCategory:
		return p.categorize()
	case TaskDiagnosis:
		return p.diagnose(input)
	case TaskFusion:
		return p.fuse(input)
	}
	return nil, fmt.Errorf("internal model: unknown task %q", task)
}

// Chat returns static guidance; the internal model has no language ability.
func (p *Internal) Chat(_ context.Context, _ []Message) (string, error) {
	return "I can answer general skin health questions. For a diagnosis, please upload a photo of the affected area.", nil
}

func (p *Internal) validate(input Input) (*Output, error) {
	img, err := decodeImage(input)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	usable := bounds.Dx() >= 100 && bounds.Dy() >= 100

	skinRatio := skinPixelRatio(img)
	isSkin := skinRatio > 0.2

	confidence := 0.4
	if isSkin {
		confidence = 0.75
	}

	return &Output{
		IsSkin:     boolPtr(isSkin),
		IsMedical:  boolPtr(isSkin), // no finer signal than the skin mask
		IsUsable:   boolPtr(usable),
		Confidence: floatPtr(confidence),
	}, nil
}

func (p *Internal) classify(input Input) (*Output, error) {
	img, err := decodeImage(input)
	if err != nil {
		return nil, err
	}

	// Lesions and inflammation raise the color variance of the frame.
	classification := "normal"
	if colorVariance(img) > 1500 {
		classification = "abnormal"
	}

	return &Output{
		Classification: classification,
		Confidence:     floatPtr(0.65),
	}, nil
}

func (p *Internal) categorize() (*Output, error) {
	return &Output{
		Category:    "inflammatory",
		Subcategory: "dermatitis",
		Confidence:  floatPtr(0.5),
	}, nil
}

var categoryDefaults = map[string]string{
	"infectious":   "tinea_corporis",
	"inflammatory": "atopic_dermatitis",
	"neoplastic":   "basal_cell_carcinoma",
	"allergic":     "contact_dermatitis",
	"autoimmune":   "vitiligo",
	"pigmentary":   "melasma",
	"genetic":      "ichthyosis_vulgaris",
}

func (p *Internal) diagnose(input Input) (*Output, error) {
	id, ok := categoryDefaults[input.Category]
	if !ok {
		id = "atopic_dermatitis"
	}
	return &Output{
		Disease:    id,
		Severity:   "moderate",
		Confidence: floatPtr(0.45),
	}, nil
}

func (p *Internal) fuse(input Input) (*Output, error) {
	diagnosis := "unknown"
	severity := "moderate"
	if stage3, ok := input.Stages["stage3"].(map[string]any); ok {
		if d, ok := stage3["disease"].(string); ok && d != "" {
			diagnosis = d
		}
		if s, ok := stage3["severity"].(string); ok && s != "" {
			severity = s
		}
	}
	return &Output{
		Diagnosis:   diagnosis,
		Severity:    severity,
		Urgency:     "routine",
		Explanation: "Analysis complete. Please consult a doctor for confirmation.",
		Recommendations: []string{
			"Consult a dermatologist",
			"Keep the area clean",
		},
		Confidence: floatPtr(0.55),
	}, nil
}

func decodeImage(input Input) (image.Image, error) {
	data := input.ImageBytes
	if len(data) == 0 && input.ImagePath != "" {
		var err error
		data, err = os.ReadFile(input.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no image provided")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// skinPixelRatio samples the frame and measures the fraction of pixels
// falling inside a coarse skin-tone color mask.
func skinPixelRatio(img image.Image) float64 {
	bounds := img.Bounds()
	step := sampleStep(bounds)

	var total, skin int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, b := int(r16>>8), int(g16>>8), int(b16>>8)
			total++
			if r > 95 && g > 40 && b > 20 && r > g && r > b && abs(r-g) > 15 {
				skin++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(skin) / float64(total)
}

// colorVariance computes the variance of all sampled 8-bit channel values.
func colorVariance(img image.Image) float64 {
	bounds := img.Bounds()
	step := sampleStep(bounds)

	var sum, sumSq float64
	var n int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			for _, v := range [3]float64{float64(r16 >> 8), float64(g16 >> 8), float64(b16 >> 8)} {
				sum += v
				sumSq += v * v
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// sampleStep keeps the sampled grid near 100x100 regardless of image size.
func sampleStep(bounds image.Rectangle) int {
	step := bounds.Dx() / 100
	if s := bounds.Dy() / 100; s > step {
		step = s
	}
	if step < 1 {
		step = 1
	}
	return step
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }
