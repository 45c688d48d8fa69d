package pipeline

import (
	"bytes"
	"io"
	"net/http"

	session "github.com/campuskit/go-session"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// Notifier receives the user-facing message derived from a failed
// response. Implementations show a transient notification.
type Notifier interface {
	NotifyError(message string)
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) NotifyError(message string) {
	if f != nil {
		f(message)
	}
}

// FailureStage translates transport failures into session consequences. A
// 401 is never surfaced as a generic error: it triggers the forced-logout
// handler instead. Other 4xx/5xx are mapped to a user-facing message and
// reported, while the response payload passes through unchanged for the
// caller to inspect.
type FailureStage struct {
	onUnauthorized func(*http.Request)
	notifier       Notifier
	logger         session.Logger
}

func NewFailureStage(onUnauthorized func(*http.Request), notifier Notifier, logger session.Logger) *FailureStage {
	if logger == nil {
		logger = session.DefaultLogger()
	}
	return &FailureStage{
		onUnauthorized: onUnauthorized,
		notifier:       notifier,
		logger:         logger,
	}
}

func (s *FailureStage) Name() string { return "failure" }

func (s *FailureStage) Execute(req *http.Request, next Dispatch) (*http.Response, error) {
	resp, err := next(req)
	if err != nil {
		richErr := errors.Wrap(err, errors.CategoryOperation, "request dispatch failed")
		s.report("unable to reach the server, please check your connection")
		s.logger.Error("transport failure on %s %s: %v", req.Method, req.URL.Path, err)
		return nil, richErr
	}

	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		s.logger.Info("unauthorized response on %s, forcing logout", req.URL.Path)
		if s.onUnauthorized != nil {
			s.onUnauthorized(req)
		}
		return resp, nil
	}

	body := peekBody(resp)
	richErr := session.ErrorFromStatus(resp.StatusCode, body)
	s.report(richErr.Message)
	s.logger.Warn(
		"request to %s failed: %s",
		req.URL.Path,
		print.MaybePrettyJSON(map[string]any{
			"status":   resp.StatusCode,
			"category": richErr.Category,
			"message":  richErr.Message,
		}),
	)

	return resp, nil
}

func (s *FailureStage) report(message string) {
	if s.notifier != nil {
		s.notifier.NotifyError(message)
	}
}

// peekBody reads the response body for message extraction and restores it
// so the payload reaches the caller byte-for-byte.
func peekBody(resp *http.Response) []byte {
	if resp.Body == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body
}
