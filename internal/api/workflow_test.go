package api

import (
	"testing"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
)

func TestValidateWorkflow(t *testing.T) {
	tests := []struct {
		name       string
		wf         Workflow
		wantFields []string
	}{
		{"valid", Workflow{Name: "Book", Metadata: Metadata{"title": "A Book"}}, nil},
		{"blank name", Workflow{Name: " \t", Metadata: Metadata{"title": "A Book"}}, []string{"name"}},
		{"no title", Workflow{Name: "Book"}, []string{"metadata.title"}},
		{"title not a string", Workflow{Name: "Book", Metadata: Metadata{"title": 7}}, []string{"metadata.title"}},
		{"nothing", Workflow{}, []string{"name", "metadata.title"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkflow(tt.wf)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("ValidateWorkflow() error: %v", err)
				}
				return
			}
			if !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
				t.Fatalf("error = %v, want validation.failed", err)
			}
			fields := apperrors.FieldErrors(err)
			if len(fields) != len(tt.wantFields) {
				t.Errorf("fields = %v, want %v", fields, tt.wantFields)
			}
			for _, f := range tt.wantFields {
				if fields[f] == "" {
					t.Errorf("missing field error for %q", f)
				}
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Moby Dick":          "moby-dick",
		"  The   Long\tWay ": "the-long-way",
		"single":             "single",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilter(t *testing.T) {
	all := []Workflow{
		{ID: "1", Name: "Grimm Tales"},
		{ID: "2", Name: "scan-0042", Metadata: Metadata{"title": "Household Tales"}},
		{ID: "3", Name: "Atlas", Metadata: Metadata{"title": "World Atlas"}},
	}

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"1", "2", "3"}},
		{"TALES", []string{"1", "2"}},
		{"atlas", []string{"3"}},
		{"0042", []string{"2"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		got := Filter(all, tt.term)
		if len(got) != len(tt.want) {
			t.Errorf("Filter(%q) returned %d, want %d", tt.term, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("Filter(%q)[%d] = %s, want %s", tt.term, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestSort(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	base := []Workflow{
		{ID: "b", Name: "Beta", Created: t0.Add(2 * time.Hour), Modified: t0},
		{ID: "a", Name: "Alpha", Created: t0.Add(1 * time.Hour), Modified: t0.Add(5 * time.Hour)},
		{ID: "c", Name: "Gamma", Created: t0.Add(3 * time.Hour), Modified: t0.Add(1 * time.Hour)},
	}

	tests := []struct {
		field SortField
		order SortOrder
		want  string
	}{
		{SortByName, Ascending, "abc"},
		{SortByName, Descending, "cba"},
		{SortByCreated, Ascending, "abc"},
		{SortByCreated, Descending, "cba"},
		{SortByModified, Ascending, "bca"},
		{SortByModified, Descending, "acb"},
	}
	for _, tt := range tests {
		ws := append([]Workflow(nil), base...)
		Sort(ws, tt.field, tt.order)
		got := ""
		for _, w := range ws {
			got += w.ID
		}
		if got != tt.want {
			t.Errorf("Sort(%s, %s) = %s, want %s", tt.field, tt.order, got, tt.want)
		}
	}
}

func TestParseSort(t *testing.T) {
	f, o, err := ParseSort("Modified", "DESC")
	if err != nil || f != SortByModified || o != Descending {
		t.Errorf("ParseSort() = %s, %s, %v", f, o, err)
	}
	if _, _, err := ParseSort("size", "asc"); !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("ParseSort(size) error = %v, want validation.failed", err)
	}
	if _, _, err := ParseSort("name", "up"); !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("ParseSort(order=up) error = %v, want validation.failed", err)
	}
}
