package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/naka-gawa/contrib-stats/internal/domain"
)

// defaultRetryAfter is used when a 429 response does not say how long to wait.
const defaultRetryAfter = 60 * time.Second

// DiscourseUser is the part of a Discourse user profile the application needs.
type DiscourseUser struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// DiscoursePost is a search hit.
type DiscoursePost struct {
	ID         int       `json:"id"`
	Username   string    `json:"username"`
	PostNumber int       `json:"post_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// DiscourseFetcher defines the behavior of a gateway for fetching information from Discourse.
type DiscourseFetcher interface {
	UserDetails(ctx context.Context, username string) (*DiscourseUser, error)
	UserSummary(ctx context.Context, username string) (domain.DiscourseCounts, error)
	// UserPosts returns the posts written by username after since.
	UserPosts(ctx context.Context, username string, since time.Time) ([]DiscoursePost, error)
}

// DiscourseOptions configures a DiscourseGateway.
type DiscourseOptions struct {
	BaseURL string
	// PageDelay is the pause between two search pages.
	PageDelay time.Duration
	Timeout   time.Duration
}

// DiscourseGateway is the concrete implementation of the DiscourseFetcher interface.
type DiscourseGateway struct {
	baseURL    string
	pageDelay  time.Duration
	httpClient *http.Client
	logger     *log.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	mu          sync.RWMutex
	apiUsername string
	apiKey      string
}

type userResponse struct {
	User DiscourseUser `json:"user"`
}

type userSummaryResponse struct {
	UserSummary struct {
		TopicCount    int `json:"topic_count"`
		PostCount     int `json:"post_count"`
		LikesGiven    int `json:"likes_given"`
		LikesReceived int `json:"likes_received"`
		SolvedCount   int `json:"solved_count"`
	} `json:"user_summary"`
}

type searchResponse struct {
	Posts               []DiscoursePost `json:"posts"`
	GroupedSearchResult *struct {
		MoreFullPageResults *bool `json:"more_full_page_results"`
	} `json:"grouped_search_result"`
}

type searchParams struct {
	Q    string `url:"q"`
	Page int    `url:"page"`
}

// NewDiscourseGateway creates a gateway for the forum at opts.BaseURL.
func NewDiscourseGateway(opts DiscourseOptions, logger *log.Logger) *DiscourseGateway {
	return &DiscourseGateway{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		pageDelay:  opts.PageDelay,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
		sleep:      sleepContext,
	}
}

// SetCredentials switches the API credentials. Empty values mean anonymous access.
func (g *DiscourseGateway) SetCredentials(username, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiUsername = username
	g.apiKey = key
}

// Authenticated reports whether requests carry API credentials.
func (g *DiscourseGateway) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.apiKey != "" && g.apiUsername != ""
}

func (g *DiscourseGateway) UserDetails(ctx context.Context, username string) (*DiscourseUser, error) {
	g.logger.Printf("Fetching user details for %s...\n", username)
	var resp userResponse
	if err := g.get(ctx, "/users/"+url.PathEscape(username)+".json", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch user details for %q: %w", username, err)
	}
	return &resp.User, nil
}

func (g *DiscourseGateway) UserSummary(ctx context.Context, username string) (domain.DiscourseCounts, error) {
	g.logger.Printf("Fetching user summary for %s...\n", username)
	var resp userSummaryResponse
	if err := g.get(ctx, "/users/"+url.PathEscape(username)+"/summary.json", nil, &resp); err != nil {
		return domain.DiscourseCounts{}, fmt.Errorf("failed to fetch user summary for %q: %w", username, err)
	}
	s := resp.UserSummary
	return domain.DiscourseCounts{
		TopicsCreated:  s.TopicCount,
		RepliesCreated: s.PostCount,
		LikesGiven:     s.LikesGiven,
		LikesReceived:  s.LikesReceived,
		SolutionsGiven: s.SolvedCount,
	}, nil
}

// UserPosts pages through the search endpoint. Search also matches posts that
// mention the user, so hits by other authors are dropped. A rate-limited page
// is retried after the cool-down the forum asks for.
func (g *DiscourseGateway) UserPosts(ctx context.Context, username string, since time.Time) ([]DiscoursePost, error) {
	q := fmt.Sprintf("@%s in:posts", username)
	if !since.IsZero() {
		q += " after:" + since.Format(time.DateOnly)
	}

	var posts []DiscoursePost
	for page := 1; ; {
		params, err := query.Values(searchParams{Q: q, Page: page})
		if err != nil {
			return nil, fmt.Errorf("failed to encode search query: %w", err)
		}

		var resp searchResponse
		err = g.get(ctx, "/search.json", params, &resp)
		var limitErr *RateLimitError
		if errors.As(err, &limitErr) {
			wait := limitErr.RetryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}
			g.logger.Printf("  Rate limited on page %d, waiting %s...\n", page, wait)
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user posts for %q: %w", username, err)
		}

		for _, p := range resp.Posts {
			if strings.EqualFold(p.Username, username) {
				posts = append(posts, p)
			}
		}
		if len(resp.Posts) == 0 {
			break
		}
		if r := resp.GroupedSearchResult; r != nil && r.MoreFullPageResults != nil && !*r.MoreFullPageResults {
			break
		}

		page++
		g.logger.Printf("  Fetching page %d of posts...\n", page)
		if err := g.sleep(ctx, g.pageDelay); err != nil {
			return nil, err
		}
	}
	g.logger.Printf("Completed fetching %d posts.\n", len(posts))
	return posts, nil
}

func (g *DiscourseGateway) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := g.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	g.mu.RLock()
	if g.apiKey != "" && g.apiUsername != "" {
		req.Header.Set("Api-Key", g.apiKey)
		req.Header.Set("Api-Username", g.apiUsername)
	}
	g.mu.RUnlock()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if limitErr := rateLimitFromResponse(resp); limitErr != nil {
		return limitErr
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status %s from %s", resp.Status, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
