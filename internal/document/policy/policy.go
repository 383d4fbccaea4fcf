// Package policy decides who may see and change a document.
package policy

import (
	"slices"

	"docshare/internal/document/model"
)

// HasAccess reports whether userID owns doc or is one of its collaborators.
// Reads, updates and deletes are all gated by this predicate.
func HasAccess(userID string, doc *model.Document) bool {
	if doc == nil || userID == "" {
		return false
	}
	return doc.OwnerID == userID || slices.Contains(doc.Collaborators, userID)
}

// IsOwner reports whether userID owns doc. Only owners manage collaborators.
func IsOwner(userID string, doc *model.Document) bool {
	return doc != nil && userID != "" && doc.OwnerID == userID
}
