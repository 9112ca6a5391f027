// Package gateway provides gateways to the GitHub and Discourse APIs,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/contrib-stats/internal/domain"
)

// IssueSearch holds one GitHub search query per issue-backed counter of domain.GitHubCounts.
type IssueSearch struct {
	MergedPRs             string
	OpenPRs               string
	ClosedUnmergedPRs     string
	Reviews               string
	IssuesOpened          string
	IssueThreadsCommented string
	PRThreadsCommented    string
}

// GitHubFetcher defines the behavior of a gateway for fetching information from GitHub.
type GitHubFetcher interface {
	// CountIssues runs every query of s and returns the counts with Commits left at zero.
	// Authenticated gateways use one GraphQL request; anonymous ones fall back to
	// REST issue searches since GraphQL requires a token.
	CountIssues(ctx context.Context, s IssueSearch) (domain.GitHubCounts, error)
	CountCommits(ctx context.Context, query string) (int, error)
	RateLimits(ctx context.Context) ([]domain.RateLimit, error)
}

// GitHubOptions configures a GitHubGateway.
type GitHubOptions struct {
	// APIURL is the REST API root. Empty means https://api.github.com/.
	APIURL string
	// MaxRateLimitWait bounds a single sleep on a secondary rate limit.
	// Zero disables waiting.
	MaxRateLimitWait time.Duration
	Timeout          time.Duration
}

// GitHubGateway is the concrete implementation of the GitHubFetcher interface.
type GitHubGateway struct {
	opts   GitHubOptions
	logger *log.Logger

	mu            sync.RWMutex
	restClient    *github.Client
	graphqlClient *githubv4.Client
	authenticated bool
}

// issueCountQuery counts all issue searches of one period in a single GraphQL request.
type issueCountQuery struct {
	MergedPRs struct {
		IssueCount int
	} `graphql:"mergedPRs: search(query: $mergedPRs, type: ISSUE)"`
	OpenPRs struct {
		IssueCount int
	} `graphql:"openPRs: search(query: $openPRs, type: ISSUE)"`
	ClosedUnmergedPRs struct {
		IssueCount int
	} `graphql:"closedPRs: search(query: $closedPRs, type: ISSUE)"`
	Reviews struct {
		IssueCount int
	} `graphql:"reviews: search(query: $reviews, type: ISSUE)"`
	IssuesOpened struct {
		IssueCount int
	} `graphql:"issues: search(query: $issues, type: ISSUE)"`
	IssueThreadsCommented struct {
		IssueCount int
	} `graphql:"issueComments: search(query: $issueComments, type: ISSUE)"`
	PRThreadsCommented struct {
		IssueCount int
	} `graphql:"prComments: search(query: $prComments, type: ISSUE)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
// An empty token makes unauthenticated requests.
func NewGitHubGateway(token string, opts GitHubOptions, logger *log.Logger) (*GitHubGateway, error) {
	g := &GitHubGateway{opts: opts, logger: logger}
	if err := g.SetToken(token); err != nil {
		return nil, err
	}
	return g, nil
}

// SetToken rebuilds the API clients around a new token.
func (g *GitHubGateway) SetToken(token string) error {
	httpClient, err := g.newHTTPClient(token)
	if err != nil {
		return err
	}
	restClient := github.NewClient(httpClient)
	graphqlClient := githubv4.NewClient(httpClient)
	if g.opts.APIURL != "" {
		baseURL, err := url.Parse(strings.TrimRight(g.opts.APIURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", g.opts.APIURL, err)
		}
		restClient.BaseURL = baseURL
		graphqlClient = githubv4.NewEnterpriseClient(graphqlURL(g.opts.APIURL), httpClient)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.restClient = restClient
	g.graphqlClient = graphqlClient
	g.authenticated = token != ""
	return nil
}

func (g *GitHubGateway) newHTTPClient(token string) (*http.Client, error) {
	var base http.RoundTripper = &headerTransport{
		base: http.DefaultTransport,
		headers: http.Header{
			"Accept":               {"application/vnd.github.v3+json"},
			"X-GitHub-Api-Version": {"2022-11-28"},
		},
	}
	if g.opts.MaxRateLimitWait > 0 {
		rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(base, github_ratelimit.WithSingleSleepLimit(g.opts.MaxRateLimitWait, nil))
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
		}
		base = rateLimitWaiter
	}
	base = &limitTransport{base: base}
	if token != "" {
		base = &oauth2.Transport{
			Base:   base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	return &http.Client{Transport: base, Timeout: g.opts.Timeout}, nil
}

// graphqlURL derives the GraphQL endpoint from a REST root. GitHub Enterprise
// serves REST under /api/v3 and GraphQL under /api/graphql.
func graphqlURL(apiURL string) string {
	root := strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/v3")
	return root + "/graphql"
}

func (g *GitHubGateway) clients() (*github.Client, *githubv4.Client) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.restClient, g.graphqlClient
}

// Authenticated reports whether requests carry a token.
func (g *GitHubGateway) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authenticated
}

func (g *GitHubGateway) CountIssues(ctx context.Context, s IssueSearch) (domain.GitHubCounts, error) {
	if !g.Authenticated() {
		return g.countIssuesREST(ctx, s)
	}
	_, graphqlClient := g.clients()
	g.logger.Println("Counting pull requests, reviews, issues and comments using GraphQL API...")
	variables := map[string]interface{}{
		"mergedPRs":     githubv4.String(s.MergedPRs),
		"openPRs":       githubv4.String(s.OpenPRs),
		"closedPRs":     githubv4.String(s.ClosedUnmergedPRs),
		"reviews":       githubv4.String(s.Reviews),
		"issues":        githubv4.String(s.IssuesOpened),
		"issueComments": githubv4.String(s.IssueThreadsCommented),
		"prComments":    githubv4.String(s.PRThreadsCommented),
	}
	var q issueCountQuery
	if err := graphqlClient.Query(ctx, &q, variables); err != nil {
		return domain.GitHubCounts{}, fmt.Errorf("failed to execute GraphQL query for counts: %w", classifyGitHubError(err))
	}
	g.logger.Println("Completed issue counts.")
	return domain.GitHubCounts{
		MergedPRs:             q.MergedPRs.IssueCount,
		OpenPRs:               q.OpenPRs.IssueCount,
		ClosedUnmergedPRs:     q.ClosedUnmergedPRs.IssueCount,
		Reviews:               q.Reviews.IssueCount,
		IssuesOpened:          q.IssuesOpened.IssueCount,
		IssueThreadsCommented: q.IssueThreadsCommented.IssueCount,
		PRThreadsCommented:    q.PRThreadsCommented.IssueCount,
	}, nil
}

// countIssuesREST runs each query of s as a REST issue search, which GitHub
// serves to anonymous clients.
func (g *GitHubGateway) countIssuesREST(ctx context.Context, s IssueSearch) (domain.GitHubCounts, error) {
	restClient, _ := g.clients()
	g.logger.Println("Counting pull requests, reviews, issues and comments using REST API...")
	var counts domain.GitHubCounts
	searches := []struct {
		query string
		dst   *int
	}{
		{s.MergedPRs, &counts.MergedPRs},
		{s.OpenPRs, &counts.OpenPRs},
		{s.ClosedUnmergedPRs, &counts.ClosedUnmergedPRs},
		{s.Reviews, &counts.Reviews},
		{s.IssuesOpened, &counts.IssuesOpened},
		{s.IssueThreadsCommented, &counts.IssueThreadsCommented},
		{s.PRThreadsCommented, &counts.PRThreadsCommented},
	}
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 1}}
	for _, search := range searches {
		g.logger.Printf("Searching issues: %s\n", search.query)
		result, _, err := restClient.Search.Issues(ctx, search.query, opts)
		if err != nil {
			return domain.GitHubCounts{}, fmt.Errorf("failed to search issues with REST API: %w", classifyGitHubError(err))
		}
		*search.dst = result.GetTotal()
	}
	return counts, nil
}

// CountCommits returns the total_count of a commit search. Only one item is
// requested since the items themselves are not needed.
func (g *GitHubGateway) CountCommits(ctx context.Context, query string) (int, error) {
	restClient, _ := g.clients()
	g.logger.Printf("Counting commits using REST API: %s\n", query)
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 1}}
	result, _, err := restClient.Search.Commits(ctx, query, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to search commits with REST API: %w", classifyGitHubError(err))
	}
	return result.GetTotal(), nil
}

// RateLimits returns every rate limit bucket GitHub reports, ordered by resource name.
func (g *GitHubGateway) RateLimits(ctx context.Context) ([]domain.RateLimit, error) {
	restClient, _ := g.clients()
	g.logger.Println("Checking rate limit status...")
	limits, _, err := restClient.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", classifyGitHubError(err))
	}
	buckets := map[string]*github.Rate{
		"core":                        limits.Core,
		"search":                      limits.Search,
		"graphql":                     limits.GraphQL,
		"integration_manifest":        limits.IntegrationManifest,
		"source_import":               limits.SourceImport,
		"code_scanning_upload":        limits.CodeScanningUpload,
		"actions_runner_registration": limits.ActionsRunnerRegistration,
		"scim":                        limits.SCIM,
		"dependency_snapshots":        limits.DependencySnapshots,
		"code_search":                 limits.CodeSearch,
	}
	result := make([]domain.RateLimit, 0, len(buckets))
	for resource, rate := range buckets {
		if rate == nil {
			continue
		}
		result = append(result, domain.RateLimit{
			Resource:  resource,
			Limit:     rate.Limit,
			Remaining: rate.Remaining,
			Reset:     rate.Reset.Time,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Resource < result[j].Resource
	})
	return result, nil
}
