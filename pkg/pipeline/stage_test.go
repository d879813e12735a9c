package pipeline

import (
	"testing"
)

func TestReasonFromError(t *testing.T) {
	tests := []struct {
		errText string
		want    string
	}{
		{"image is not skin", ReasonNotSkin},
		{"Not Skin content detected", ReasonNotSkin},
		{"low quality upload", ReasonPoorQuality},
		{"this is not medical imagery", ReasonNotMedical},
		{"All AI providers failed for stage0_validation", ReasonFailed},
		{"", ReasonFailed},
	}
	for _, tt := range tests {
		if got := reasonFromError(tt.errText); got != tt.want {
			t.Errorf("reasonFromError(%q) = %q, want %q", tt.errText, got, tt.want)
		}
	}
}

func TestGuidanceForUnknownReasonFallsBack(t *testing.T) {
	g := guidanceFor("something_else")
	if g == nil || g.En != gateGuidance[ReasonFailed].En {
		t.Errorf("unknown reason should fall back to generic guidance, got %+v", g)
	}
}

func TestFusedConfidenceCap(t *testing.T) {
	one := 1.0
	s1 := &ClassificationResult{Confidence: 1.0}
	s2 := &CategoryResult{Confidence: 1.0}
	s3 := &DiagnosisResult{Confidence: 1.0}

	if got := fusedConfidence(s1, s2, s3, &one); got != 0.99 {
		t.Errorf("fused confidence = %v, want cap 0.99", got)
	}
}

func TestFusedConfidenceDefaults(t *testing.T) {
	// All priors: 0.8*0.1 + 0.7*0.2 + 0.6*0.4 + 0.7*0.3 = 0.67
	if got := fusedConfidence(nil, nil, nil, nil); got != 0.67 {
		t.Errorf("fused confidence = %v, want 0.67", got)
	}
}

func TestFusedConfidenceIgnoresSkippedStages(t *testing.T) {
	s1 := &ClassificationResult{Confidence: 0.9}
	s2 := SkipCategory(SkipReasonNormal)
	s3 := SkipDiagnosis(SkipReasonNormal)

	// 0.9*0.1 + 0.7*0.2 + 0.6*0.4 + 0.7*0.3 = 0.68
	if got := fusedConfidence(s1, s2, s3, nil); got != 0.68 {
		t.Errorf("fused confidence = %v, want 0.68", got)
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.5) != 0 || clamp01(1.5) != 1 || clamp01(0.42) != 0.42 {
		t.Error("clamp01 must bound to [0,1]")
	}
}
