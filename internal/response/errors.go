package response

import (
	"errors"
	"net/http"

	"github.com/DuyTinh-T/Smart-Learning-New-sub000/internal/apperror"
	"github.com/gin-gonic/gin"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Room lifecycle ────────────────────────────────────────────────
	ErrInvalidState        ErrCode = "INVALID_STATE"
	ErrRoomClosed          ErrCode = "ROOM_CLOSED"
	ErrRoomFull            ErrCode = "ROOM_FULL"
	ErrDuplicateSubmission ErrCode = "DUPLICATE_SUBMISSION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Room lifecycle ────────────────────────────────────────────────
	case ErrInvalidState:
		return "This action is not allowed in the room's current state."
	case ErrRoomClosed:
		return "The room is closed."
	case ErrRoomFull:
		return "The room is full."
	case ErrDuplicateSubmission:
		return "You have already submitted this exam."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrServiceUnavailable:
		return "The service is busy. Please retry shortly."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// kindStatus maps domain error kinds to HTTP status codes.
var kindStatus = map[apperror.Kind]int{
	apperror.KindValidation:          http.StatusBadRequest,
	apperror.KindForbidden:           http.StatusForbidden,
	apperror.KindNotFound:            http.StatusNotFound,
	apperror.KindInvalidState:        http.StatusConflict,
	apperror.KindRoomClosed:          http.StatusGone,
	apperror.KindRoomFull:            http.StatusConflict,
	apperror.KindDuplicateSubmission: http.StatusConflict,
	apperror.KindServiceUnavailable:  http.StatusServiceUnavailable,
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	if status, ok := kindStatus[apperror.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError writes the error envelope for a service error. Classified errors
// carry their own message; anything else is reported as INTERNAL_ERROR.
func FromError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := StatusOf(err)
	code := ErrCode(kind)

	message := GetMessage(code)
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}
	if kind == apperror.KindInternal {
		_ = c.Error(err)
	}

	c.JSON(status, Response{
		Data: nil,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Retryable: kind == apperror.KindServiceUnavailable,
		},
		Metadata: buildMetadata(c),
	})
}
