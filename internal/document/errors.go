package document

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the store and the coordinator wraps
// exactly one of these so transports can map them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrTransient  = errors.New("store unavailable")
)

var (
	ErrTitleRequired       = fmt.Errorf("%w: title is required", ErrValidation)
	ErrVersionOutOfRange   = fmt.Errorf("%w: invalid version index", ErrValidation)
	ErrDocumentNotFound    = fmt.Errorf("%w: document not found", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrNotCollaborator     = fmt.Errorf("%w: user is not a collaborator", ErrNotFound)
	ErrAccessDenied        = fmt.Errorf("%w: access denied: not a collaborator or owner", ErrForbidden)
	ErrNotOwner            = fmt.Errorf("%w: only the owner can manage this document", ErrForbidden)
	ErrNotInRoom           = fmt.Errorf("%w: join the document before sending events", ErrForbidden)
	ErrAlreadyCollaborator = fmt.Errorf("%w: user is already a collaborator", ErrConflict)
	ErrOwnerCollaborator   = fmt.Errorf("%w: owner is already a collaborator", ErrConflict)
	ErrShareTokenTaken     = fmt.Errorf("%w: share token already in use", ErrConflict)
)

// Transient wraps a backing store failure.
func Transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

// Message strips the class prefix so clients see the specific reason only.
func Message(err error) string {
	for _, class := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict} {
		prefix := class.Error() + ": "
		if msg := err.Error(); errors.Is(err, class) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return err.Error()
}
