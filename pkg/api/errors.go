package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

// writeError maps domain errors to HTTP responses. Anything it does not
// recognize is logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var (
		fieldErrs auth.ValidationErrors
		usageErr  *usage.ValidationError
		conflict  *storage.ConflictError
	)

	switch {
	case errors.As(err, &fieldErrs):
		httputil.WriteValidationErrors(w, fieldErrs.Error(), fieldErrs)
	case errors.As(err, &usageErr):
		httputil.WriteValidationErrors(w, usageErr.Error(), []auth.FieldError{
			{Field: usageErr.Field, Message: usageErr.Error()},
		})
	case errors.Is(err, usage.ErrInvalidInput):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFound(w, notFound)
	case errors.As(err, &conflict):
		httputil.WriteConflict(w, conflictMessage(conflict.Field))
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteConflict(w, "Resource already exists")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		httputil.WriteUnauthorized(w, "Invalid or expired refresh token")
	default:
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		httputil.WriteInternalError(w)
	}
}

func conflictMessage(field string) string {
	if field == "" {
		return "Resource already exists"
	}
	return fmt.Sprintf("User with this %s already exists", field)
}
