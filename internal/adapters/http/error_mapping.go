package httpadapter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case isBodyTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrAnalysisNotReady):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isBodyTooLarge detects the MaxBytesReader error, also when multipart parsing
// flattened it to text.
func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

// publicErrorMessage hides internal detail behind 5xx responses.
func publicErrorMessage(status int, err error) string {
	switch status {
	case http.StatusInternalServerError:
		return "internal server error"
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable, retry later"
	case http.StatusNotFound:
		if domain.IsKind(err, domain.ErrAnalysisNotReady) {
			return "analysis not complete or document not found"
		}
		return "document not found"
	case http.StatusRequestEntityTooLarge:
		return "uploaded file is too large"
	default:
		return err.Error()
	}
}
