package backend

import (
	"encoding/json"
	"io"
	"net/http"

	"xunji/internal/domain"
)

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 * 1024

// errorBody is the error document the backend returns on failure.
type errorBody struct {
	Detail any `json:"detail"`
}

// mapHTTPError builds the *domain.HTTPError for a non-success response.
// The detail message is taken from a JSON {"detail": ...} body when there
// is one; any other body is ignored.
func mapHTTPError(statusCode int, body []byte) *domain.HTTPError {
	he := &domain.HTTPError{Status: statusCode}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		he.Detail = domain.DetailFromBody(eb.Detail)
	}
	return he
}

// responseError drains and closes a failed response and maps it.
func responseError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return mapHTTPError(resp.StatusCode, body)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
