// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/garagedesk/garagedesk/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrBadRequest = errors.New("malformed request")
	ErrNotFound   = errors.New("resource not found")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var domainErr *shared.Error
	errors.As(err, &domainErr)

	switch {
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		problem := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
		if domainErr != nil {
			problem.Fields = domainErr.Fields
		}
		WriteProblem(w, problem)
	case errors.Is(err, shared.ErrReferential):
		problem := ProblemDetail{Title: "Has Related Records", Status: http.StatusConflict, Detail: err.Error()}
		if domainErr != nil {
			problem.Blockers = domainErr.Blockers
		}
		WriteProblem(w, problem)
	case errors.Is(err, shared.ErrAlreadyConverted):
		Problem(w, http.StatusConflict, "Already Converted", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Status Transition", err.Error())
	case errors.Is(err, shared.ErrExternal):
		Problem(w, http.StatusBadGateway, "Upstream Failure", err.Error())
	case errors.Is(err, shared.ErrLockTimeout):
		Problem(w, http.StatusServiceUnavailable, "Busy", "document is locked, retry later")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
