package document

import "github.com/samber/lo"

// Access is the set of operations a user may perform on a document.
type Access struct {
	CanRead  bool
	CanWrite bool
	IsOwner  bool
}

// Evaluate computes the caller's permissions from the current document state.
// It is pure: callers re-load the document for every operation.
func Evaluate(doc *Document, userID string) Access {
	if doc == nil || userID == "" {
		return Access{}
	}
	owner := doc.OwnerID == userID
	member := owner || lo.Contains(doc.Collaborators, userID)
	return Access{CanRead: member, CanWrite: member, IsOwner: owner}
}

// RequireRead returns ErrAccessDenied unless the user may read.
func (a Access) RequireRead() error {
	if !a.CanRead {
		return ErrAccessDenied
	}
	return nil
}

// RequireWrite returns ErrAccessDenied unless the user may write.
func (a Access) RequireWrite() error {
	if !a.CanWrite {
		return ErrAccessDenied
	}
	return nil
}

// RequireOwner returns ErrNotOwner unless the user owns the document.
func (a Access) RequireOwner() error {
	if !a.IsOwner {
		return ErrNotOwner
	}
	return nil
}

// IsCollaborator reports whether userID is listed as a collaborator.
func (d *Document) IsCollaborator(userID string) bool {
	return lo.Contains(d.Collaborators, userID)
}
