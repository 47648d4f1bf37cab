package api

import (
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
)

// Workflow statuses the sync layer reads or writes.
const (
	StatusNew        = "new"
	StatusCapture    = "capture"
	StatusCaptured   = "captured"
	StatusProcessing = "processing"
	StatusFinished   = "finished"
	StatusDone       = "done"
	StatusError      = "error"
)

// Workflow is a server-side digitization job. Only the fields this client
// consumes are modeled; Config is passed through untouched.
type Workflow struct {
	ID            string         `json:"id"`
	Slug          string         `json:"slug,omitempty"`
	Name          string         `json:"name"`
	Status        string         `json:"status,omitempty"`
	Path          string         `json:"path,omitempty"`
	Pages         []Page         `json:"pages,omitempty"`
	Metadata      Metadata       `json:"metadata,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	ExpectedPages int            `json:"expectedPages,omitempty"`
	Created       time.Time      `json:"created"`
	Modified      time.Time      `json:"modified"`
}

// Page is one captured spread.
type Page struct {
	ID        string          `json:"id"`
	Sequence  int             `json:"sequence"`
	Captured  bool            `json:"captured"`
	Images    protocol.Images `json:"images"`
	Timestamp time.Time       `json:"timestamp"`
}

// Metadata is free-form bibliographic data. Only "title" is required.
type Metadata map[string]any

// Title returns the metadata title, or "" when absent or not a string.
func (m Metadata) Title() string {
	s, _ := m["title"].(string)
	return s
}

// WorkflowUpdate is a partial update; empty fields are left unchanged.
type WorkflowUpdate struct {
	Name     string         `json:"name,omitempty"`
	Status   string         `json:"status,omitempty"`
	Pages    []Page         `json:"pages,omitempty"`
	Metadata Metadata       `json:"metadata,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// ValidateWorkflow checks a workflow before submission. It returns a
// validation.failed error carrying one message per offending field.
func ValidateWorkflow(w Workflow) error {
	fields := make(map[string]string)
	if strings.TrimSpace(w.Name) == "" {
		fields["name"] = "Workflow name is required"
	}
	if strings.TrimSpace(w.Metadata.Title()) == "" {
		fields["metadata.title"] = "Title is required"
	}
	if len(fields) > 0 {
		return apperrors.ValidationFailed(fields)
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// Slugify derives a URL slug from a workflow name.
func Slugify(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Filter keeps workflows whose name or metadata title contains term,
// case-insensitively. An empty term keeps everything.
func Filter(workflows []Workflow, term string) []Workflow {
	term = strings.ToLower(term)
	out := make([]Workflow, 0, len(workflows))
	for _, w := range workflows {
		if strings.Contains(strings.ToLower(w.Name), term) ||
			strings.Contains(strings.ToLower(w.Metadata.Title()), term) {
			out = append(out, w)
		}
	}
	return out
}

// SortField selects the column Sort orders by.
type SortField string

const (
	SortByName     SortField = "name"
	SortByCreated  SortField = "created"
	SortByModified SortField = "modified"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// ParseSort validates user-supplied sort flags.
func ParseSort(field, order string) (SortField, SortOrder, error) {
	f := SortField(strings.ToLower(field))
	switch f {
	case SortByName, SortByCreated, SortByModified:
	default:
		return "", "", apperrors.ValidationFailed(map[string]string{"sort": "must be name, created or modified"})
	}
	o := SortOrder(strings.ToLower(order))
	switch o {
	case Ascending, Descending:
	default:
		return "", "", apperrors.ValidationFailed(map[string]string{"order": "must be asc or desc"})
	}
	return f, o, nil
}

// Sort orders workflows in place by field. Ties keep their input order.
func Sort(workflows []Workflow, field SortField, order SortOrder) {
	compare := func(a, b Workflow) int {
		switch field {
		case SortByCreated:
			return a.Created.Compare(b.Created)
		case SortByModified:
			return a.Modified.Compare(b.Modified)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}
	sort.SliceStable(workflows, func(i, j int) bool {
		c := compare(workflows[i], workflows[j])
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
}
