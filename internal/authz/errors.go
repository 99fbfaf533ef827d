package authz

import (
	"errors"

	"github.com/frahmantamala/coursehub/internal"
)

// ToAppError maps errors from this package onto the API error taxonomy. Anything it does not
// recognise becomes an internal error.
func ToAppError(err error) *internal.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrUnknownPermission):
		return internal.ErrUnknownPermission.WithCause(err)
	case errors.Is(err, ErrUnknownRole):
		return internal.ErrUnknownRole.WithCause(err)
	case errors.Is(err, ErrUnknownResourceKind):
		return internal.ErrUnknownResourceKind.WithCause(err)
	case errors.Is(err, ErrUserNotFound):
		return internal.ErrUserNotFound.WithCause(err)
	case errors.Is(err, ErrPermissionDenied):
		return internal.ErrPermissionDenied.WithCause(err)
	case errors.Is(err, ErrInvariantViolation):
		return internal.NewConflictError("declaration conflicts with stored state", internal.ErrCodeInvariantViolation).WithCause(err)
	default:
		return internal.NewInternalError("internal server error", err)
	}
}
