package application

import (
	"errors"

	"github.com/example/campus-voting/internal/persistence"
)

// mapStoreError translates persistence sentinels into application sentinels.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return NewValidationError("", "referenced record does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return NewValidationError("", "record violates a data constraint")
	}
	return err
}
