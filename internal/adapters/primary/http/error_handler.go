package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
)

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse includes field-level validation errors
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.logError(r, appErr.StatusCode, appErr.Err)
		writeErrorResponse(w, appErr.StatusCode, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		})
		return
	}

	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusUnprocessableEntity, err)
		writeValidationErrorResponse(w, validationErrs)
		return
	}

	mapped := mapDomainError(err)
	h.logError(r, mapped.StatusCode, err)
	if mapped.StatusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeErrorResponse(w, mapped.StatusCode, ErrorResponse{
		Error: mapped.Message,
		Code:  mapped.Code,
	})
}

// mapDomainError converts domain errors to an AppError carrying the HTTP
// status and body. All gate rejections share one 401 body.
func mapDomainError(err error) *apperrors.AppError {
	switch {
	// Authentication & Authorization
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return newAppError(err, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, apperrors.ErrUnauthorized):
		return apperrors.NewUnauthorizedError("Unauthorized")
	case errors.Is(err, apperrors.ErrForbidden):
		return newAppError(err, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action")
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		return newAppError(err, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")

	// Not Found errors
	case errors.Is(err, apperrors.ErrUserNotFound):
		return withCode(apperrors.NewNotFoundError(err, "User not found"), "USER_NOT_FOUND")
	case errors.Is(err, apperrors.ErrTicketNotFound):
		return withCode(apperrors.NewNotFoundError(err, "Ticket not found"), "TICKET_NOT_FOUND")

	// Conflict errors
	case errors.Is(err, apperrors.ErrUserExists):
		return newAppError(err, http.StatusConflict, "USER_EXISTS", "A user with this email already exists")

	// Validation errors
	case errors.Is(err, apperrors.ErrSubjectRequired),
		errors.Is(err, apperrors.ErrSubjectTooLong),
		errors.Is(err, apperrors.ErrDescriptionTooLong),
		errors.Is(err, apperrors.ErrInvalidPriority),
		errors.Is(err, apperrors.ErrInvalidStatus),
		errors.Is(err, apperrors.ErrCommentBodyRequired),
		errors.Is(err, apperrors.ErrCommentBodyTooLong),
		errors.Is(err, apperrors.ErrEmailRequired),
		errors.Is(err, apperrors.ErrEmailInvalid),
		errors.Is(err, apperrors.ErrPasswordTooWeak),
		errors.Is(err, apperrors.ErrPasswordRequired),
		errors.Is(err, apperrors.ErrFullNameRequired),
		errors.Is(err, apperrors.ErrInvalidRole):
		return newAppError(err, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, apperrors.ErrBadRequest):
		return apperrors.NewBadRequestError(err, "Bad request")

	// Rate limiting
	case errors.Is(err, apperrors.ErrRateLimited):
		return newAppError(err, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")

	default:
		return apperrors.NewInternalError(err)
	}
}

func newAppError(err error, status int, code, message string) *apperrors.AppError {
	return &apperrors.AppError{Err: err, Message: message, Code: code, StatusCode: status}
}

func withCode(e *apperrors.AppError, code string) *apperrors.AppError {
	e.Code = code
	return e
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	logger := logging.LoggerFromContext(r.Context(), h.logger)
	logAttrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	switch {
	case statusCode >= 500:
		logger.Error("server error", logAttrs...)
	case statusCode >= 400:
		logger.Warn("client error", logAttrs...)
	default:
		logger.Info("request error", logAttrs...)
	}
}

// writeErrorResponse writes a JSON error response
func writeErrorResponse(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// writeValidationErrorResponse writes a validation error response
func writeValidationErrorResponse(w http.ResponseWriter, errs *apperrors.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(ValidationErrorResponse{
		Error:  "Validation failed",
		Code:   "VALIDATION_ERROR",
		Fields: errs.Errors,
	})
}
