package github

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-github/v66/github"

	"github.com/shaun/gitrelay/internal/content"
)

// UpstreamError is a non-2xx answer from GitHub. Body is the raw response
// text so the caller can forward it unchanged.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github: %d %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports 404s as content.ErrNotFound.
func (e *UpstreamError) Is(target error) bool {
	return target == content.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// normalize turns go-github's error types into *UpstreamError. Transport
// failures and anything without a response pass through unchanged.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	resp, fallback := errorResponse(err)
	if resp == nil {
		return err
	}
	body := fallback
	if resp.Body != nil {
		// go-github re-populates the body after parsing it.
		if b, rerr := io.ReadAll(resp.Body); rerr == nil && len(b) > 0 {
			body = string(b)
		}
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Body: body, Err: err}
}

func errorResponse(err error) (*http.Response, string) {
	var (
		ghErr    *github.ErrorResponse
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
	)
	switch {
	case errors.As(err, &ghErr):
		return ghErr.Response, ghErr.Message
	case errors.As(err, &rateErr):
		return rateErr.Response, rateErr.Message
	case errors.As(err, &abuseErr):
		return abuseErr.Response, abuseErr.Message
	}
	return nil, ""
}
