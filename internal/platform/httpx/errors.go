// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/threeway/internal/shared"
)

var (
	// ErrUnauthorized indicates the gateway did not forward an actor.
	ErrUnauthorized = errors.New("unauthorized")
)

type problemKind struct {
	status int
	title  string
}

var problemKinds = map[string]problemKind{
	"NotFound":          {http.StatusNotFound, "Not Found"},
	"OverReceipt":       {http.StatusUnprocessableEntity, "Over Receipt"},
	"InvalidTransition": {http.StatusConflict, "Invalid Transition"},
	"InsufficientRole":  {http.StatusForbidden, "Insufficient Role"},
	"InvalidReasonCode": {http.StatusUnprocessableEntity, "Invalid Reason Code"},
	"Validation":        {http.StatusBadRequest, "Validation Failed"},
	"Conflict":          {http.StatusConflict, "Conflict"},
	"Unauthorized":      {http.StatusUnauthorized, "Unauthorized"},
}

// ErrorCode returns the stable problem code for err, or "Internal".
func ErrorCode(err error) string {
	if errors.Is(err, ErrUnauthorized) {
		return "Unauthorized"
	}
	return shared.Kind(err)
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	kind, ok := problemKinds[code]
	if !ok {
		JSON(w, http.StatusInternalServerError, ProblemDetail{
			Title:  "Internal Error",
			Status: http.StatusInternalServerError,
			Code:   "Internal",
		})
		return
	}
	JSON(w, kind.status, ProblemDetail{
		Title:  kind.title,
		Status: kind.status,
		Detail: err.Error(),
		Code:   code,
	})
}
