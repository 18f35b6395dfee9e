package coord

import (
	"fmt"

	"github.com/imroc/req/v3"
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST"
	CodeRateLimited    = "E_RATE_LIMITED"
	CodeInternalError  = "E_INTERNAL_ERROR"
	CodeAccessDenied   = "E_ACCESS_DENIED"
	CodeUnknownError   = "E_UNKNOWN_ERR"

	CodeSessionNotFound = "E_SESSION_NOT_FOUND"
	CodeSessionFailed   = "E_SESSION_CREATE_FAILED"
	CodeTokenFailed     = "E_PART_TOKEN_FAILED"
	CodeFinalizeFailed  = "E_FINALIZE_FAILED"
	CodeCancelFailed    = "E_CANCEL_FAILED"
)

// APIError is the coordination service's structured error payload.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coord api error: %s - %s", e.Code, e.Message)
}

// handleAPIError folds the transport error and the API error payload into a
// single error, or nil on success.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return fmt.Errorf("api error: %s: %s", operation, resp.Status)
	}

	return nil
}
