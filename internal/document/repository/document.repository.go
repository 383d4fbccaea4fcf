package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docshare/internal/document/model"
	"docshare/pkg/logger"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document does not exist or the caller may not see it.
// The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("document not found")

const selectDocument = `SELECT d.id, d.title, d.content, d.created_at, d.updated_at, d.owner_id FROM documents d`

// Both queries encode the same rule as policy.HasAccess: owner or collaborator.
const (
	findAccessibleQuery = selectDocument + `
		WHERE d.owner_id = $1
		   OR EXISTS (SELECT 1 FROM document_collaborators c WHERE c.document_id = d.id AND c.user_id = $1)
		ORDER BY d.updated_at DESC, d.id ASC`

	findByIDIfAccessibleQuery = selectDocument + `
		WHERE d.id = $1
		  AND (d.owner_id = $2
		   OR EXISTS (SELECT 1 FROM document_collaborators c WHERE c.document_id = d.id AND c.user_id = $2))`
)

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) FindAccessible(ctx context.Context, userID string) ([]*model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, findAccessibleQuery, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", userID, err)
		return nil, fmt.Errorf("find accessible documents: %w", err)
	}

	docs := []*model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			logger.Sugar.Errorf("Failed to scan document for user %s: %v", userID, err)
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	err = rows.Err()
	// Close before issuing more queries: SQLite runs on a single connection.
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	for _, doc := range docs {
		if doc.Collaborators, err = r.collaborators(ctx, doc.ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (r *DocumentRepository) FindByIDIfAccessible(ctx context.Context, id, userID string) (*model.Document, error) {
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, findByIDIfAccessibleQuery, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get doc %s for user %s: %v", id, userID, err)
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	if doc.Collaborators, err = r.collaborators(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// Insert assigns a new id and stores the document together with its collaborators.
func (r *DocumentRepository) Insert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	stored := *doc
	stored.ID = uuid.NewString()
	stored.Collaborators = dedupe(doc.Collaborators)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO documents (id, title, content, created_at, updated_at, owner_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.Title, stored.Content, stored.CreatedAt, stored.UpdatedAt, stored.OwnerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return nil, fmt.Errorf("insert document: %w", err)
	}
	for _, userID := range stored.Collaborators {
		if _, err := tx.ExecContext(ctx, `INSERT INTO document_collaborators (document_id, user_id) VALUES ($1, $2)`, stored.ID, userID); err != nil {
			logger.Sugar.Errorf("Failed to add collaborator %s to doc %s: %v", userID, stored.ID, err)
			return nil, fmt.Errorf("insert collaborator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return &stored, nil
}

// Save overwrites title, content and updated_at of an existing document in one statement.
// Owner and collaborators are never touched here.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) (*model.Document, error) {
	result, err := r.DB.ExecContext(ctx, `UPDATE documents SET title = $1, content = $2, updated_at = $3 WHERE id = $4`,
		doc.Title, doc.Content, doc.UpdatedAt, doc.ID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update doc %s: %v", doc.ID, err)
		return nil, fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	if err := expectRow(result); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", id, err)
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return expectRow(result)
}

// AddCollaborator is idempotent: adding an existing collaborator is a no-op.
func (r *DocumentRepository) AddCollaborator(ctx context.Context, docID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO document_collaborators (document_id, user_id) VALUES ($1, $2)
		ON CONFLICT (document_id, user_id) DO NOTHING`, docID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to add collaborator %s to doc %s: %v", userID, docID, err)
		return fmt.Errorf("add collaborator: %w", err)
	}
	return nil
}

func (r *DocumentRepository) RemoveCollaborator(ctx context.Context, docID, userID string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM document_collaborators WHERE document_id = $1 AND user_id = $2", docID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to remove collaborator %s from doc %s: %v", userID, docID, err)
		return fmt.Errorf("remove collaborator: %w", err)
	}
	return nil
}

func (r *DocumentRepository) collaborators(ctx context.Context, docID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT user_id FROM document_collaborators WHERE document_id = $1 ORDER BY user_id", docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get collaborators for doc %s: %v", docID, err)
		return nil, fmt.Errorf("find collaborators: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt, &doc.OwnerID); err != nil {
		return nil, err
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func expectRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
