package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
)

var (
	// ErrUnauthorized means the API rejected the supplied credentials.
	ErrUnauthorized = errors.New("invalid or expired credentials")
	// ErrUserNotFound means the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden means the API refused access to the resource, e.g. a hidden profile.
	ErrForbidden = errors.New("access denied")
)

// RateLimitError reports that an API refused a request because a rate limit was reached.
type RateLimitError struct {
	// Resource is the limited API bucket, e.g. "search". Empty if unknown.
	Resource string
	// Reset is when the bucket refills. Zero if the API did not say.
	Reset time.Time
	// RetryAfter is the cool-down the API asked for. Zero if the API did not say.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	var b strings.Builder
	b.WriteString("API rate limit exceeded")
	if e.Resource != "" {
		fmt.Fprintf(&b, " for %s", e.Resource)
	}
	if !e.Reset.IsZero() {
		fmt.Fprintf(&b, ", resets at %s", e.Reset.UTC().Format(time.DateTime))
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, ", retry after %s", e.RetryAfter)
	}
	return b.String()
}

// classifyGitHubError maps go-github and GraphQL errors onto the package errors.
// Errors produced by limitTransport already are, and pass through untouched.
func classifyGitHubError(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		limitErr := &RateLimitError{Reset: rle.Rate.Reset.Time}
		if rle.Response != nil {
			limitErr.Resource = rle.Response.Header.Get(headerRateLimitResource)
		}
		return limitErr
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &RateLimitError{Resource: "secondary", RetryAfter: abuse.GetRetryAfter()}
	}
	var resp *github.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	var own *RateLimitError
	if errors.As(err, &own) || errors.Is(err, ErrUnauthorized) {
		return err
	}
	// GraphQL reports exhausted quotas inside a 200 response body.
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("%w: %v", &RateLimitError{Resource: "graphql"}, err)
	}
	return err
}
