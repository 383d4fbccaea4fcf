package model

import "time"

// Document is a shared text document. OwnerID is fixed at creation; Collaborators never
// contains duplicates and does not implicitly contain the owner.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	OwnerID       string    `json:"owner_id"`
	Collaborators []string  `json:"collaborators"`
}

// DocumentInput carries the client-controlled fields of a create or update.
// Any owner a client sends is dropped on decode.
type DocumentInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type CollaboratorRequest struct {
	UserID string `json:"user_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
