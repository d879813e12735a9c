package provider

import (
	"strings"
	"testing"

	"github.com/dermapipe/dermapipe/pkg/disease"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"unclosed fence", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"leading prose", "Here is the result:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseOutputValidation(t *testing.T) {
	out, err := ParseOutput(`{"is_skin": true, "is_medical": false, "is_usable": true, "confidence": 0.82}`)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if out.IsSkin == nil || !*out.IsSkin {
		t.Error("is_skin should be true")
	}
	if out.IsMedical == nil || *out.IsMedical {
		t.Error("is_medical should be false")
	}
	if out.Confidence == nil || *out.Confidence != 0.82 {
		t.Errorf("confidence = %v", out.Confidence)
	}
}

func TestParseOutputAbsentFieldsStayNil(t *testing.T) {
	out, err := ParseOutput(`{"classification": "abnormal"}`)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if out.Classification != "abnormal" {
		t.Errorf("classification = %q", out.Classification)
	}
	if out.IsSkin != nil || out.Confidence != nil {
		t.Error("absent fields must stay nil, not default to zero values")
	}
}

func TestParseOutputKeepsRaw(t *testing.T) {
	raw := "```json\n{\"disease\": \"psoriasis\"}\n```"
	out, err := ParseOutput(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Raw != raw {
		t.Error("Raw must keep the unparsed response")
	}
}

func TestParseOutputMalformed(t *testing.T) {
	if _, err := ParseOutput("I think it's eczema"); err == nil {
		t.Error("non-JSON response must error")
	}
}

func TestBuildPromptDiagnosisNamesCandidates(t *testing.T) {
	input := Input{
		Category: "inflammatory",
		Candidates: []disease.Disease{
			{ID: "psoriasis"},
			{ID: "atopic_dermatitis"},
		},
	}
	prompt := BuildPrompt(TaskDiagnosis, input)

	if !strings.Contains(prompt, "inflammatory") {
		t.Error("prompt must name the category")
	}
	if !strings.Contains(prompt, "psoriasis, atopic_dermatitis") {
		t.Errorf("prompt must list candidate ids, got:\n%s", prompt)
	}
}

func TestBuildPromptCategoryListsTaxonomy(t *testing.T) {
	prompt := BuildPrompt(TaskCategory, Input{Categories: []string{"infectious", "neoplastic"}})
	if !strings.Contains(prompt, "infectious, neoplastic") {
		t.Errorf("prompt must list categories, got:\n%s", prompt)
	}
}

func TestBuildPromptFusionEmbedsContext(t *testing.T) {
	input := Input{
		Patient: map[string]any{"age": 34},
		Stages:  map[string]any{"stage3": map[string]any{"disease": "psoriasis"}},
	}
	prompt := BuildPrompt(TaskFusion, input)
	if !strings.Contains(prompt, "psoriasis") || !strings.Contains(prompt, "34") {
		t.Errorf("fusion prompt must embed stage and patient context, got:\n%s", prompt)
	}
}
