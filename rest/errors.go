package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	perrors "github.com/pilab-dev/persona-client/errors"
)

// remoteErrorBody covers the error payload shapes returned by persona,
// babel and manifesto.
type remoteErrorBody struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

// DecodeRemoteError extracts a code and message from an error payload.
func DecodeRemoteError(body string) (code, message string) {
	var payload remoteErrorBody
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return "", ""
	}
	code = payload.ErrorCode
	if code == "" {
		code = payload.Error
	}
	message = payload.Message
	if message == "" {
		message = payload.ErrorDescription
	}
	return code, message
}

// MapStatusError converts a generic RemoteError for 400, 401 and 403 into
// BadRequestError and UnauthorisedError. Other errors are returned as is.
func MapStatusError(err error) error {
	var remote *perrors.RemoteError
	if !errors.As(err, &remote) {
		return err
	}

	code, message := DecodeRemoteError(remote.Body)

	switch remote.StatusCode {
	case http.StatusBadRequest:
		return &perrors.BadRequestError{URL: remote.URL, Code: code, Message: message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &perrors.UnauthorisedError{StatusCode: remote.StatusCode, URL: remote.URL, Code: code, Message: message}
	default:
		return err
	}
}
