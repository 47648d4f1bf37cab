package storage

// workflows.go contains Store methods for workflow CRUD.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spreads/client/internal/api"
	apperrors "github.com/spreads/client/internal/errors"
)

const workflowColumns = `id, slug, name, status, path, pages, metadata, config, expected_pages, created_at, modified_at`

// CreateWorkflow stores a new workflow. Id, slug, status and timestamps
// are filled in when empty.
func (s *Store) CreateWorkflow(ctx context.Context, w api.Workflow) (*api.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Slug == "" {
		w.Slug = api.Slugify(w.Name)
	}
	if w.Status == "" {
		w.Status = api.StatusNew
	}
	w.Created = now
	w.Modified = now

	pages, metadata, config, err := encodeDocuments(w)
	if err != nil {
		return nil, err
	}

	const query = `INSERT INTO workflows (` + workflowColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		w.ID, w.Slug, w.Name, w.Status, w.Path,
		pages, metadata, config, w.ExpectedPages,
		formatTime(w.Created), formatTime(w.Modified),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, apperrors.ValidationFailed(map[string]string{"slug": fmt.Sprintf("slug %q already exists", w.Slug)})
		}
		return nil, apperrors.Wrap(apperrors.CodeStorageSaveFailed, "create workflow", err)
	}

	log.Printf("storage: created workflow %s (%s)", w.ID, w.Slug)
	return &w, nil
}

// GetWorkflow looks a workflow up by id or slug.
func (s *Store) GetWorkflow(ctx context.Context, idOrSlug string) (*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, idOrSlug)
}

func (s *Store) getLocked(ctx context.Context, idOrSlug string) (*api.Workflow, error) {
	const query = `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ? OR slug = ? LIMIT 1`
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, query, idOrSlug, idOrSlug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("workflow " + idOrSlug)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "get workflow", err)
	}
	return w, nil
}

// ListWorkflows returns all workflows, oldest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "list workflows", err)
	}
	defer rows.Close()

	workflows := make([]api.Workflow, 0)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "scan workflow", err)
		}
		workflows = append(workflows, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "iterate workflow rows", err)
	}
	return workflows, nil
}

// UpdateWorkflow applies a partial update. Empty fields keep their stored
// values; a non-nil Pages slice replaces the whole page list.
func (s *Store) UpdateWorkflow(ctx context.Context, idOrSlug string, u api.WorkflowUpdate) (*api.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getLocked(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if u.Name != "" {
		w.Name = u.Name
	}
	if u.Status != "" {
		w.Status = u.Status
	}
	if u.Pages != nil {
		w.Pages = u.Pages
	}
	if u.Metadata != nil {
		w.Metadata = u.Metadata
	}
	if u.Config != nil {
		w.Config = u.Config
	}
	w.Modified = time.Now().UTC()

	pages, metadata, config, err := encodeDocuments(*w)
	if err != nil {
		return nil, err
	}

	const query = `
		UPDATE workflows
		SET name = ?, status = ?, pages = ?, metadata = ?, config = ?, modified_at = ?
		WHERE id = ?
	`
	_, err = s.db.ExecContext(ctx, query,
		w.Name, w.Status, pages, metadata, config, formatTime(w.Modified), w.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageSaveFailed, "update workflow", err)
	}

	log.Printf("storage: updated workflow %s (status=%s, pages=%d)", w.ID, w.Status, len(w.Pages))
	return w, nil
}

// DeleteWorkflow removes a workflow by id or slug.
func (s *Store) DeleteWorkflow(ctx context.Context, idOrSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ? OR slug = ?`, idOrSlug, idOrSlug)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "delete workflow", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageQueryFailed, "delete workflow", err)
	}
	if n == 0 {
		return apperrors.NotFound("workflow " + idOrSlug)
	}

	log.Printf("storage: deleted workflow %s", idOrSlug)
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*api.Workflow, error) {
	var (
		w                       api.Workflow
		pages, metadata, config string
		createdAt, modifiedAt   string
	)
	err := row.Scan(
		&w.ID, &w.Slug, &w.Name, &w.Status, &w.Path,
		&pages, &metadata, &config, &w.ExpectedPages,
		&createdAt, &modifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(pages), &w.Pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &w.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &w.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if w.Created, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if w.Modified, err = time.Parse(time.RFC3339Nano, modifiedAt); err != nil {
		return nil, fmt.Errorf("parse modified_at: %w", err)
	}
	return &w, nil
}

func encodeDocuments(w api.Workflow) (pages, metadata, config string, err error) {
	if w.Pages == nil {
		w.Pages = []api.Page{}
	}
	if w.Metadata == nil {
		w.Metadata = api.Metadata{}
	}
	if w.Config == nil {
		w.Config = map[string]any{}
	}

	p, err := json.Marshal(w.Pages)
	if err != nil {
		return "", "", "", apperrors.Wrap(apperrors.CodeStorageSaveFailed, "encode pages", err)
	}
	m, err := json.Marshal(w.Metadata)
	if err != nil {
		return "", "", "", apperrors.Wrap(apperrors.CodeStorageSaveFailed, "encode metadata", err)
	}
	c, err := json.Marshal(w.Config)
	if err != nil {
		return "", "", "", apperrors.Wrap(apperrors.CodeStorageSaveFailed, "encode config", err)
	}
	return string(p), string(m), string(c), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
