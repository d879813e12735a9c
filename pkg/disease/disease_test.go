package disease

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCoversEveryCategory(t *testing.T) {
	table := Default()

	categories := []string{
		"infectious", "inflammatory", "neoplastic",
		"allergic", "autoimmune", "pigmentary", "genetic",
	}
	for _, c := range categories {
		if len(table.ByCategory(c)) == 0 {
			t.Errorf("default table has no entries for category %q", c)
		}
	}
}

func TestLookup(t *testing.T) {
	table := Default()

	d, ok := table.Lookup("melanoma")
	if !ok {
		t.Fatal("melanoma should exist")
	}
	if d.Category != "neoplastic" || d.Urgency != "urgent" {
		t.Errorf("melanoma = %+v", d)
	}
	if d.Name.Ar == "" {
		t.Error("entries carry Arabic names")
	}

	if _, ok := table.Lookup("not_a_disease"); ok {
		t.Error("unknown id must not resolve")
	}
}

func TestByCategoryPreservesOrder(t *testing.T) {
	table := New([]Disease{
		{ID: "b", Category: "x"},
		{ID: "a", Category: "y"},
		{ID: "c", Category: "x"},
	})

	got := table.ByCategory("x")
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("ByCategory = %v", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diseases.json")
	body := `{"diseases": [
	  {"id": "psoriasis", "name": {"en": "Psoriasis", "ar": "الصدفية"}, "category": "inflammatory"}
	]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("len = %d, want 1", table.Len())
	}
	d, ok := table.Lookup("psoriasis")
	if !ok || d.Name.En != "Psoriasis" {
		t.Errorf("lookup = %+v, %v", d, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file must error")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed file must error")
	}
}
