// Package disease holds the read-only disease reference table used to
// narrow stage 3 candidates and resolve ids to display records.
package disease

import (
	"encoding/json"
	"fmt"
	"os"
)

// Name is a localized display string.
type Name struct {
	En string `json:"en"`
	Ar string `json:"ar,omitempty"`
}

// Disease is one reference table entry.
type Disease struct {
	ID            string   `json:"id"`
	Name          Name     `json:"name"`
	Category      string   `json:"category"`
	Subcategory   string   `json:"subcategory,omitempty"`
	SeverityRange []string `json:"severity_range,omitempty"`
	Urgency       string   `json:"urgency,omitempty"`
	Description   Name     `json:"description,omitempty"`
}

// Table is an immutable lookup over the reference entries.
type Table struct {
	diseases []Disease
	byID     map[string]Disease
}

type tableFile struct {
	Diseases []Disease `json:"diseases"`
}

// New builds a table from entries.
func New(diseases []Disease) *Table {
	byID := make(map[string]Disease, len(diseases))
	for _, d := range diseases {
		byID[d.ID] = d
	}
	return &Table{diseases: diseases, byID: byID}
}

// Load reads a table from a JSON file of shape {"diseases": [...]}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read disease table: %w", err)
	}
	var file tableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse disease table: %w", err)
	}
	return New(file.Diseases), nil
}

// Lookup resolves a disease id to its reference entry.
func (t *Table) Lookup(id string) (Disease, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// ByCategory returns the entries belonging to one category, in table order.
func (t *Table) ByCategory(category string) []Disease {
	var out []Disease
	for _, d := range t.diseases {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// All returns every entry in table order.
func (t *Table) All() []Disease {
	out := make([]Disease, len(t.diseases))
	copy(out, t.diseases)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.diseases)
}

// Default returns the built-in reference table, used when no table file is
// configured.
func Default() *Table {
	return New([]Disease{
		{
			ID:            "tinea_corporis",
			Name:          Name{En: "Ringworm", Ar: "سعفة الجسم"},
			Category:      "infectious",
			Subcategory:   "fungal",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "routine",
			Description:   Name{En: "Fungal infection producing ring-shaped, scaly patches."},
		},
		{
			ID:            "impetigo",
			Name:          Name{En: "Impetigo", Ar: "القوباء"},
			Category:      "infectious",
			Subcategory:   "bacterial",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "consult_doctor",
			Description:   Name{En: "Contagious bacterial infection with honey-colored crusts."},
		},
		{
			ID:            "herpes_zoster",
			Name:          Name{En: "Shingles", Ar: "الحزام الناري"},
			Category:      "infectious",
			Subcategory:   "viral",
			SeverityRange: []string{"moderate", "severe"},
			Urgency:       "urgent",
			Description:   Name{En: "Painful blistering rash along a nerve path."},
		},
		{
			ID:            "atopic_dermatitis",
			Name:          Name{En: "Atopic Dermatitis", Ar: "التهاب الجلد التأتبي"},
			Category:      "inflammatory",
			Subcategory:   "dermatitis",
			SeverityRange: []string{"mild", "severe"},
			Urgency:       "routine",
			Description:   Name{En: "Chronic itchy inflammation, often in skin folds."},
		},
		{
			ID:            "psoriasis",
			Name:          Name{En: "Psoriasis", Ar: "الصدفية"},
			Category:      "inflammatory",
			SeverityRange: []string{"mild", "severe"},
			Urgency:       "routine",
			Description:   Name{En: "Well-demarcated plaques with silvery scale."},
		},
		{
			ID:            "acne_vulgaris",
			Name:          Name{En: "Acne", Ar: "حب الشباب"},
			Category:      "inflammatory",
			SeverityRange: []string{"mild", "severe"},
			Urgency:       "routine",
			Description:   Name{En: "Comedones, papules and pustules of the pilosebaceous unit."},
		},
		{
			ID:            "contact_dermatitis",
			Name:          Name{En: "Contact Dermatitis", Ar: "التهاب الجلد التماسي"},
			Category:      "allergic",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "routine",
			Description:   Name{En: "Localized reaction where an irritant or allergen touched skin."},
		},
		{
			ID:            "urticaria",
			Name:          Name{En: "Hives", Ar: "الشرى"},
			Category:      "allergic",
			SeverityRange: []string{"mild", "severe"},
			Urgency:       "consult_doctor",
			Description:   Name{En: "Transient raised itchy wheals."},
		},
		{
			ID:            "basal_cell_carcinoma",
			Name:          Name{En: "Basal Cell Carcinoma", Ar: "سرطان الخلايا القاعدية"},
			Category:      "neoplastic",
			SeverityRange: []string{"moderate", "severe"},
			Urgency:       "urgent",
			Description:   Name{En: "Pearly papule or non-healing sore, the most common skin cancer."},
		},
		{
			ID:            "melanoma",
			Name:          Name{En: "Melanoma", Ar: "الورم الميلانيني"},
			Category:      "neoplastic",
			SeverityRange: []string{"severe", "severe"},
			Urgency:       "urgent",
			Description:   Name{En: "Malignant pigmented lesion, asymmetric with irregular borders."},
		},
		{
			ID:            "vitiligo",
			Name:          Name{En: "Vitiligo", Ar: "البهاق"},
			Category:      "autoimmune",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "routine",
			Description:   Name{En: "Depigmented patches from melanocyte loss."},
		},
		{
			ID:            "alopecia_areata",
			Name:          Name{En: "Alopecia Areata", Ar: "الثعلبة البقعية"},
			Category:      "autoimmune",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "routine",
			Description:   Name{En: "Patchy non-scarring hair loss."},
		},
		{
			ID:            "melasma",
			Name:          Name{En: "Melasma", Ar: "الكلف"},
			Category:      "pigmentary",
			SeverityRange: []string{"mild", "mild"},
			Urgency:       "none",
			Description:   Name{En: "Symmetric brown facial patches."},
		},
		{
			ID:            "ichthyosis_vulgaris",
			Name:          Name{En: "Ichthyosis Vulgaris", Ar: "السماك الشائع"},
			Category:      "genetic",
			SeverityRange: []string{"mild", "moderate"},
			Urgency:       "routine",
			Description:   Name{En: "Inherited dry, fish-scale skin."},
		},
	})
}
