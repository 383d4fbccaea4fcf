package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"docshare/config/database"
	"docshare/internal/document/model"
	"docshare/internal/document/repository"
	userrepo "docshare/internal/user/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteService(t *testing.T, users ...string) (*DocumentService, func(query string, args ...any) int) {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ur := userrepo.NewUserRepository(db)
	for _, id := range users {
		_, err := ur.Create(ctx, id, id+"@example.com")
		require.NoError(t, err)
	}

	count := func(query string, args ...any) int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, query, args...).Scan(&n))
		return n
	}
	return NewDocumentService(ur, repository.NewDocumentRepository(db), nil), count
}

func requireConcurrentOutcome(t *testing.T, err error) {
	t.Helper()
	if err == nil || errors.Is(err, ErrForbidden) || errors.Is(err, ErrStorage) {
		return
	}
	t.Fatalf("unexpected error from concurrent writer: %v", err)
}

func TestConcurrentUpdatesLastWriteWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t, "alice", "bob")

	doc, err := svc.CreateDocument(ctx, model.DocumentInput{Title: "start", Content: "start"}, "alice")
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, doc.ID, "bob", "alice")
	require.NoError(t, err)

	const writers = 32
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "alice"
			if i%2 == 1 {
				user = "bob"
			}
			input := model.DocumentInput{Title: fmt.Sprintf("title-%d", i), Content: fmt.Sprintf("content-%d", i)}
			_, errs[i] = svc.UpdateDocument(ctx, doc.ID, input, user)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		requireConcurrentOutcome(t, err)
	}

	got, err := svc.GetDocument(ctx, doc.ID, "alice")
	require.NoError(t, err)

	// Title and content always come from the same writer.
	var winner int
	_, err = fmt.Sscanf(got.Title, "title-%d", &winner)
	require.NoError(t, err, got.Title)
	assert.Equal(t, fmt.Sprintf("content-%d", winner), got.Content)
	assert.NoError(t, errs[winner])

	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, []string{"bob"}, got.Collaborators)
	assert.True(t, got.CreatedAt.Equal(doc.CreatedAt))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestConcurrentUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, count := newSQLiteService(t, "alice", "bob")

	doc, err := svc.CreateDocument(ctx, model.DocumentInput{Title: "doomed"}, "alice")
	require.NoError(t, err)
	_, err = svc.AddCollaborator(ctx, doc.ID, "bob", "alice")
	require.NoError(t, err)

	const writers = 16
	errs := make([]error, writers)
	var deleteErr error
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := model.DocumentInput{Title: fmt.Sprintf("title-%d", i), Content: fmt.Sprintf("content-%d", i)}
			_, errs[i] = svc.UpdateDocument(ctx, doc.ID, input, "bob")
		}(i)
		if i == writers/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				deleteErr = svc.DeleteDocument(ctx, doc.ID, "alice")
			}()
		}
	}
	wg.Wait()

	require.NoError(t, deleteErr)
	for _, err := range errs {
		requireConcurrentOutcome(t, err)
	}

	_, err = svc.GetDocument(ctx, doc.ID, "alice")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetDocument(ctx, doc.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Zero(t, count("SELECT COUNT(*) FROM documents WHERE id = $1", doc.ID))
	assert.Zero(t, count("SELECT COUNT(*) FROM document_collaborators WHERE document_id = $1", doc.ID))
}
