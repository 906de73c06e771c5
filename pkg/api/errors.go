package api

import (
	"errors"
	"net/http"
)

var (
	ErrMissingContentType   = errors.New("missing content type")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInboxDisabled        = errors.New("in-app channel is not configured")
	ErrJobsDisabled         = errors.New("bulk processing is not configured")
	ErrRateLimited          = errors.New("rate limit exceeded")
)

// HTTPError carries an explicit status and machine-readable code.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Code)
}

func NewHTTPError(code int, key, message string) HTTPError {
	return HTTPError{Code: code, Key: key, Message: message}
}
