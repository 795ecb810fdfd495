package protocol

import (
	"context"
	"errors"
	"net/http"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// Error types reported in ErrorResponse.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeInternal       = "internal_error"
)

// BuildErrorResponse constructs an error envelope. param and code are
// omitted from the JSON when empty.
func BuildErrorResponse(message, kind, param, code string) ErrorResponse {
	return ErrorResponse{
		Error: &APIError{
			Message: message,
			Type:    kind,
			Param:   param,
			Code:    code,
		},
	}
}

// ErrorFromErr maps an error to an HTTP status (always >= 400) and the
// envelope returned to the client.
func ErrorFromErr(err error) (int, ErrorResponse) {
	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrMissingMessages):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "messages", "missing_messages")
	case errors.Is(err, domain.ErrInvalidJSON):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "", "invalid_json")
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "messages", "invalid_role")
	case errors.Is(err, domain.ErrNulByteInString):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "messages", "nul_byte")
	case errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "", "invalid_format")
	case errors.Is(err, domain.ErrInvalidSessionID):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "session_id", "invalid_session_id")
	case errors.Is(err, domain.ErrPolicyDenied):
		return http.StatusBadRequest, BuildErrorResponse(msg, ErrorTypeInvalidRequest, "", "policy_violation")
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, BuildErrorResponse(msg, ErrorTypeNotFound, "session_id", "")
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, BuildErrorResponse(msg, ErrorTypeUpstream, "", "timeout")
	case errors.Is(err, domain.ErrEngine):
		return http.StatusBadGateway, BuildErrorResponse(msg, ErrorTypeUpstream, "", "")
	default:
		return http.StatusInternalServerError, BuildErrorResponse(msg, ErrorTypeInternal, "", "")
	}
}
