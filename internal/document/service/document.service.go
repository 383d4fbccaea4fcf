package service

import (
	"context"
	"errors"
	"time"

	"docshare/internal/document/model"
	"docshare/internal/document/policy"
	"docshare/internal/document/repository"
	usermodel "docshare/internal/user/model"
	userrepo "docshare/internal/user/repository"
	"docshare/pkg/logger"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (*usermodel.User, error)
}

type DocumentStore interface {
	FindAccessible(ctx context.Context, userID string) ([]*model.Document, error)
	FindByIDIfAccessible(ctx context.Context, id, userID string) (*model.Document, error)
	Insert(ctx context.Context, doc *model.Document) (*model.Document, error)
	Save(ctx context.Context, doc *model.Document) (*model.Document, error)
	DeleteByID(ctx context.Context, id string) error
	AddCollaborator(ctx context.Context, docID, userID string) error
	RemoveCollaborator(ctx context.Context, docID, userID string) error
}

// Notifier is told about committed changes so live viewers can follow along.
type Notifier interface {
	DocumentUpdated(doc *model.Document, userID string)
	DocumentDeleted(docID, userID string)
	// AccessRevoked must return only once userID can no longer receive events for docID.
	AccessRevoked(docID, userID string)
}

type DocumentService struct {
	Users    UserStore
	Repo     DocumentStore
	Notifier Notifier
	now      func() time.Time
}

type Option func(*DocumentService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *DocumentService) { s.now = now }
}

func NewDocumentService(users UserStore, repo DocumentStore, notifier Notifier, opts ...Option) *DocumentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s := &DocumentService{Users: users, Repo: repo, Notifier: notifier, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	docs, err := s.Repo.FindAccessible(ctx, user.ID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}

	visible := make([]*model.Document, 0, len(docs))
	for _, doc := range docs {
		if policy.HasAccess(user.ID, doc) {
			visible = append(visible, doc)
		}
	}
	return visible, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, docID, userID string) (*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.accessible(ctx, docID, user.ID)
}

// CreateDocument stores a new document owned by the caller, whatever the input claims.
func (s *DocumentService) CreateDocument(ctx context.Context, input model.DocumentInput, userID string) (*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp(time.Time{})
	doc, err := s.Repo.Insert(ctx, &model.Document{
		Title:         input.Title,
		Content:       input.Content,
		CreatedAt:     now,
		UpdatedAt:     now,
		OwnerID:       user.ID,
		Collaborators: []string{},
	})
	if err != nil {
		return nil, storageErr("create document", err)
	}

	logger.Sugar.Infof("Document %s created by user %s", doc.ID, user.ID)
	return doc, nil
}

// UpdateDocument overwrites title and content. Owner, collaborators and createdAt stay as stored.
func (s *DocumentService) UpdateDocument(ctx context.Context, docID string, input model.DocumentInput, userID string) (*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.accessible(ctx, docID, user.ID)
	if err != nil {
		return nil, err
	}

	doc.Title = input.Title
	doc.Content = input.Content
	doc.UpdatedAt = s.timestamp(doc.UpdatedAt)

	saved, err := s.Repo.Save(ctx, doc)
	if err != nil {
		// A concurrent delete between the access check and the write lands here too.
		return nil, storageErr("save document", err)
	}

	s.Notifier.DocumentUpdated(saved, user.ID)
	return saved, nil
}

func (s *DocumentService) DeleteDocument(ctx context.Context, docID, userID string) error {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := s.accessible(ctx, docID, user.ID); err != nil {
		return err
	}

	if err := s.Repo.DeleteByID(ctx, docID); err != nil {
		return storageErr("delete document", err)
	}

	s.Notifier.DocumentDeleted(docID, user.ID)
	logger.Sugar.Infof("Document %s deleted by user %s", docID, user.ID)
	return nil
}

// AddCollaborator grants collaboratorID access. Only the owner may do this; anyone else,
// including existing collaborators, gets ErrForbidden.
func (s *DocumentService) AddCollaborator(ctx context.Context, docID, collaboratorID, userID string) (*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.accessible(ctx, docID, user.ID)
	if err != nil {
		return nil, err
	}
	if !policy.IsOwner(user.ID, doc) {
		return nil, ErrForbidden
	}

	if _, err := s.Users.FindByID(ctx, collaboratorID); err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			return nil, ErrCollaboratorNotFound
		}
		return nil, storageErr("find collaborator", err)
	}

	if err := s.Repo.AddCollaborator(ctx, docID, collaboratorID); err != nil {
		return nil, storageErr("add collaborator", err)
	}
	return s.reload(ctx, docID, user.ID)
}

func (s *DocumentService) RemoveCollaborator(ctx context.Context, docID, collaboratorID, userID string) (*model.Document, error) {
	user, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.accessible(ctx, docID, user.ID)
	if err != nil {
		return nil, err
	}
	if !policy.IsOwner(user.ID, doc) {
		return nil, ErrForbidden
	}

	if err := s.Repo.RemoveCollaborator(ctx, docID, collaboratorID); err != nil {
		return nil, storageErr("remove collaborator", err)
	}
	if collaboratorID != doc.OwnerID {
		s.Notifier.AccessRevoked(docID, collaboratorID)
	}
	return s.reload(ctx, docID, user.ID)
}

// Authorize reports whether userID may open docID, with the same outcomes as GetDocument.
func (s *DocumentService) Authorize(ctx context.Context, docID, userID string) error {
	_, err := s.GetDocument(ctx, docID, userID)
	return err
}

func (s *DocumentService) resolveUser(ctx context.Context, userID string) (*usermodel.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := s.Users.FindByID(ctx, userID)
	if errors.Is(err, userrepo.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr("resolve user", err)
	}
	return user, nil
}

// accessible loads a document through the access-filtered query and collapses every miss into ErrForbidden.
func (s *DocumentService) accessible(ctx context.Context, docID, userID string) (*model.Document, error) {
	doc, err := s.Repo.FindByIDIfAccessible(ctx, docID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, storageErr("find document", err)
	}
	if !policy.HasAccess(userID, doc) {
		return nil, ErrForbidden
	}
	return doc, nil
}

func (s *DocumentService) reload(ctx context.Context, docID, userID string) (*model.Document, error) {
	doc, err := s.accessible(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	s.Notifier.DocumentUpdated(doc, userID)
	return doc, nil
}

// timestamp returns the current time in the stored precision, never earlier than floor.
func (s *DocumentService) timestamp(floor time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

type noopNotifier struct{}

func (noopNotifier) DocumentUpdated(*model.Document, string) {}
func (noopNotifier) DocumentDeleted(string, string) {}
func (noopNotifier) AccessRevoked(string, string) {}
