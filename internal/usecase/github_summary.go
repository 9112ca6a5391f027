// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
	"golang.org/x/sync/errgroup"
)

// GitHubSummarizer is the use case for summarizing a user's contributions to one repository.
// It orchestrates the fetching and combining of data.
type GitHubSummarizer struct {
	fetcher gateway.GitHubFetcher
	repo    string
	logger  *log.Logger
}

// NewGitHubSummarizer creates a new GitHubSummarizer instance.
func NewGitHubSummarizer(fetcher gateway.GitHubFetcher, repo string, logger *log.Logger) *GitHubSummarizer {
	return &GitHubSummarizer{
		fetcher: fetcher,
		repo:    repo,
		logger:  logger,
	}
}

// Repo is the repository contributions are counted in.
func (s *GitHubSummarizer) Repo() string {
	return s.repo
}

// AllTimeQueries returns the search queries for a user's whole history in repo.
// The second value is the commit search query.
func AllTimeQueries(repo, user string) (gateway.IssueSearch, string) {
	base := fmt.Sprintf("repo:%s author:%s", repo, user)
	return gateway.IssueSearch{
		MergedPRs:             base + " is:pr is:merged",
		OpenPRs:               base + " is:pr is:open",
		ClosedUnmergedPRs:     base + " is:pr is:closed is:unmerged",
		IssuesOpened:          base + " is:issue",
		Reviews:               fmt.Sprintf("repo:%s reviewed-by:%s is:pr", repo, user),
		IssueThreadsCommented: fmt.Sprintf("repo:%s is:issue commenter:%s", repo, user),
		PRThreadsCommented:    fmt.Sprintf("repo:%s is:pr commenter:%s", repo, user),
	}, base
}

// YearlyQueries narrows AllTimeQueries to activity after cutoff. Each query
// filters on the date that best matches its counter; comments cannot be
// filtered by creation date, so thread activity uses "updated".
func YearlyQueries(repo, user string, cutoff time.Time) (gateway.IssueSearch, string) {
	s, commits := AllTimeQueries(repo, user)
	c := cutoff.Format(time.DateOnly)
	return gateway.IssueSearch{
		MergedPRs:             s.MergedPRs + " merged:>" + c,
		OpenPRs:               s.OpenPRs + " created:>" + c,
		ClosedUnmergedPRs:     s.ClosedUnmergedPRs + " closed:>" + c,
		IssuesOpened:          s.IssuesOpened + " created:>" + c,
		Reviews:               s.Reviews + " updated:>" + c,
		IssueThreadsCommented: s.IssueThreadsCommented + " updated:>" + c,
		PRThreadsCommented:    s.PRThreadsCommented + " updated:>" + c,
	}, commits + " author-date:>" + c
}

// Summarize counts all-time and last-12-months contributions of user.
// All queries run concurrently and the first failure aborts the summary.
func (s *GitHubSummarizer) Summarize(ctx context.Context, user string, now time.Time) (*domain.GitHubSummary, error) {
	s.logger.Printf("Usecase: Starting GitHub summary for %s in %s...\n", user, s.repo)
	cutoff := domain.OneYearBefore(now)
	allTimeSearch, allTimeCommits := AllTimeQueries(s.repo, user)
	yearlySearch, yearlyCommits := YearlyQueries(s.repo, user, cutoff)

	var allTime, lastYear domain.GitHubCounts
	var allTimeCommitCount, lastYearCommitCount int

	// Use an errgroup to fetch all data concurrently.
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		allTime, err = s.fetcher.CountIssues(egCtx, allTimeSearch)
		return err
	})

	eg.Go(func() error {
		var err error
		lastYear, err = s.fetcher.CountIssues(egCtx, yearlySearch)
		return err
	})

	eg.Go(func() error {
		var err error
		allTimeCommitCount, err = s.fetcher.CountCommits(egCtx, allTimeCommits)
		return err
	})

	eg.Go(func() error {
		var err error
		lastYearCommitCount, err = s.fetcher.CountCommits(egCtx, yearlyCommits)
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	allTime.Commits = allTimeCommitCount
	lastYear.Commits = lastYearCommitCount

	s.logger.Println("Usecase: GitHub summary complete.")
	return &domain.GitHubSummary{
		User:     user,
		Repo:     s.repo,
		Since:    cutoff,
		AllTime:  allTime,
		LastYear: lastYear,
	}, nil
}

// RateLimits reports the API rate limit buckets.
func (s *GitHubSummarizer) RateLimits(ctx context.Context) ([]domain.RateLimit, error) {
	return s.fetcher.RateLimits(ctx)
}
