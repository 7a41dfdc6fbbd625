package portalsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionEnded is returned once a session has logged out, whether
	// the refresh failed, the replayed request was rejected again or the
	// idle timer fired.
	ErrSessionEnded = errors.New("portalsdk: session ended")

	// ErrRefreshInFlightTimeout wraps a refresh call that outlived
	// RefreshTimeout. The session is logged out.
	ErrRefreshInFlightTimeout = errors.New("portalsdk: refresh timed out")

	// ErrIdle is the logout reason when the idle timer fires.
	ErrIdle = errors.New("portalsdk: session idle")
)

// APIError is a non-2xx answer from the portal.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("portal: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("portal: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse builds an APIError from an error body, falling back to
// the status text when the body is not the portal's error shape.
func parseErrorResponse(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  status,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}
	return &APIError{
		StatusCode:  status,
		Code:        CodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
