package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/viktor/chat-storage-gateway/internal/crypto"
	"github.com/viktor/chat-storage-gateway/internal/remote"
	"github.com/viktor/chat-storage-gateway/internal/storage"
	"github.com/viktor/chat-storage-gateway/internal/tracker"
)

// APIError is the JSON error envelope returned to clients.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Resource   string `json:"resource,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WriteJSON writes the error envelope to the response.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)

	if err := json.NewEncoder(w).Encode(map[string]*APIError{"error": e}); err != nil {
		// Headers are already out; nothing left to do.
		return
	}
}

// TranslateError maps storage layer errors onto the API error envelope.
func TranslateError(err error, resource string) *APIError {
	if err == nil {
		return nil
	}

	var transportErr *remote.TransportError
	var trackingErr *tracker.TrackingError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &APIError{
			Code:       "NotFound",
			Message:    "The requested file does not exist.",
			Resource:   resource,
			HTTPStatus: http.StatusNotFound,
		}
	case errors.Is(err, crypto.ErrInvalidKey):
		return &APIError{
			Code:       "InvalidKey",
			Message:    "The configured encryption key is invalid.",
			HTTPStatus: http.StatusInternalServerError,
		}
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return &APIError{
			Code:       "DecryptionFailed",
			Message:    "Stored content could not be decrypted.",
			Resource:   resource,
			HTTPStatus: http.StatusInternalServerError,
		}
	case errors.Is(err, crypto.ErrEncryptionFailed):
		return &APIError{
			Code:       "EncryptionFailed",
			Message:    "Content could not be encrypted.",
			Resource:   resource,
			HTTPStatus: http.StatusInternalServerError,
		}
	case errors.As(err, &transportErr):
		return &APIError{
			Code:       "RemoteUnavailable",
			Message:    fmt.Sprintf("The remote store failed during %s.", transportErr.Op),
			Resource:   resource,
			HTTPStatus: http.StatusBadGateway,
		}
	case errors.As(err, &trackingErr):
		return &APIError{
			Code:       "TrackingFailed",
			Message:    fmt.Sprintf("The metadata store failed during %s.", trackingErr.Op),
			Resource:   resource,
			HTTPStatus: http.StatusInternalServerError,
		}
	default:
		return &APIError{
			Code:       "InternalError",
			Message:    "We encountered an internal error. Please try again.",
			Resource:   resource,
			HTTPStatus: http.StatusInternalServerError,
		}
	}
}

// Predefined API errors.
var (
	ErrInvalidRequest = &APIError{
		Code:       "InvalidRequest",
		Message:    "Invalid request.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrEmptyPath = &APIError{
		Code:       "InvalidPath",
		Message:    "A non-empty file path is required.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &APIError{
		Code:       "EntityTooLarge",
		Message:    "The uploaded body exceeds the configured size limit.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
)
