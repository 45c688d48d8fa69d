package session

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeNotAuthenticated = "NOT_AUTHENTICATED"
	TextCodeLoginInFlight    = "LOGIN_IN_FLIGHT"
)

// ErrTokenExpired marks a stored token whose expiry has passed.
var ErrTokenExpired = errors.New("authentication token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed marks a stored token that could not be decoded.
var ErrTokenMalformed = errors.New("authentication token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrNotAuthenticated is returned by operations that require a live session.
var ErrNotAuthenticated = errors.New("no authenticated session", errors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrLoginInFlight is returned when Login is called while a previous login
// attempt has not settled. Login attempts are serialized.
var ErrLoginInFlight = errors.New("a login attempt is already in flight", errors.CategoryConflict).
	WithTextCode(TextCodeLoginInFlight).
	WithCode(errors.CodeConflict)

// ErrorFromStatus maps a non-2xx response to a user-facing rich error. The
// message is what the UI shows; the original payload travels untouched in
// the response body. A 400 carries the validation message from the body when
// one is present.
func ErrorFromStatus(status int, body []byte) *errors.Error {
	switch status {
	case http.StatusBadRequest:
		msg := messageFromBody(body)
		if msg == "" {
			msg = "The request could not be validated"
		}
		return errors.New(msg, errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	case http.StatusUnauthorized:
		return errors.New("your session has expired, please sign in again", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	case http.StatusForbidden:
		return errors.New("you do not have permission to perform this action", errors.CategoryAuthz).
			WithCode(errors.CodeForbidden)
	case http.StatusNotFound:
		return errors.New("the requested resource was not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound)
	case http.StatusInternalServerError:
		return errors.New("something went wrong, please try again later", errors.CategoryInternal).
			WithCode(errors.CodeInternal)
	default:
		return errors.New(fmt.Sprintf("Error Code: %d", status), errors.CategoryInternal).
			WithCode(status)
	}
}

// messageFromBody pulls the server-provided validation message out of an
// error payload. Anything unparsable yields an empty string.
func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
