package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bidline/api/internal/archive"
	"bidline/api/internal/history"
	"bidline/api/internal/store"
	"bidline/api/internal/syncer"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, syncer.ErrBlankID):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Proposal id is required", nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, history.ErrNoHistory), errors.Is(err, archive.ErrNotArchived):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, syncer.ErrNoProposal):
		return http.StatusConflict, "NO_PROPOSAL", "No proposal is loaded", nil
	case errors.Is(err, syncer.ErrIDMismatch):
		return http.StatusConflict, "ID_MISMATCH", "Proposal id does not match the request path", nil
	case errors.Is(err, syncer.ErrSuperseded):
		return http.StatusConflict, "SUPERSEDED", "Another proposal was opened while loading", nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
