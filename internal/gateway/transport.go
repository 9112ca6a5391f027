package gateway

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRateLimitResource  = "X-RateLimit-Resource"
	headerRetryAfter         = "Retry-After"
)

// headerTransport fills in request headers the client library left unset.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	for key, values := range t.headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return t.base.RoundTrip(req)
}

// limitTransport turns rate-limit and authentication failures into errors
// before any client library parses the body, so both the REST and the
// GraphQL client surface them as *RateLimitError and ErrUnauthorized.
type limitTransport struct {
	base http.RoundTripper
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, fmt.Errorf("%w: %s %s returned %s", ErrUnauthorized, req.Method, req.URL.Path, resp.Status)
	}
	if limitErr := rateLimitFromResponse(resp); limitErr != nil {
		drain(resp)
		return nil, limitErr
	}
	return resp, nil
}

// rateLimitFromResponse returns nil unless resp is a 403 or 429 that carries
// rate limit information.
func rateLimitFromResponse(resp *http.Response) *RateLimitError {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	h := resp.Header
	exhausted := h.Get(headerRateLimitRemaining) == "0"
	retryAfter, hasRetryAfter := parseRetryAfter(h.Get(headerRetryAfter))
	if !exhausted && !hasRetryAfter && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	limitErr := &RateLimitError{Resource: h.Get(headerRateLimitResource), RetryAfter: retryAfter}
	if epoch, err := strconv.ParseInt(h.Get(headerRateLimitReset), 10, 64); err == nil {
		limitErr.Reset = time.Unix(epoch, 0)
	}
	return limitErr
}

// parseRetryAfter accepts the delay-seconds form of Retry-After.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
