package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
)

func TestPrinter_GitHubSummary(t *testing.T) {
	var buf bytes.Buffer
	s := &domain.GitHubSummary{
		User: "alice",
		Repo: "llvm/llvm-project",
		AllTime: domain.GitHubCounts{
			MergedPRs:             50,
			OpenPRs:               2,
			ClosedUnmergedPRs:     3,
			Reviews:               200,
			Commits:               61,
			IssuesOpened:          4,
			IssueThreadsCommented: 5,
			PRThreadsCommented:    70,
		},
		LastYear: domain.GitHubCounts{MergedPRs: 5, Reviews: 30, Commits: 6},
	}

	NewPrinter(&buf).GitHubSummary(s)
	out := buf.String()

	assert.Contains(t, out, "Contribution Summary for: alice\n")
	assert.Contains(t, out, "Pull Requests (Authored)      : 55\n")
	assert.Contains(t, out, "  - Merged                  : 50\n")
	assert.Contains(t, out, "  - Closed/Unmerged         : 3\n")
	assert.Contains(t, out, "Pull Request Reviews          : 200\n")
	assert.Contains(t, out, "Threads Commented On          : 75\n")
	assert.Contains(t, out, "TOTAL CONTRIBUTIONS           : 395\n")
	assert.Contains(t, out, "Contribution Summary (Last 12 Months)\n")
	assert.Contains(t, out, "Threads Commented On*         : 0\n")
	assert.Contains(t, out, "TOTAL YEARLY CONTRIBUTIONS    : 41\n")
	assert.Contains(t, out, "\n========================================\n")
	assert.Contains(t, out, "counts threads (issues/PRs) with comments")
	assert.NotContains(t, out, "\x1b[", "styling must be dropped for non-terminal output")
}

func TestPrinter_DiscourseSummary(t *testing.T) {
	testCases := []struct {
		name        string
		summary     *domain.DiscourseSummary
		contains    []string
		notContains []string
	}{
		{
			name: "with yearly activity",
			summary: &domain.DiscourseSummary{
				User:    "alice",
				AllTime: domain.DiscourseCounts{TopicsCreated: 3, RepliesCreated: 80, LikesGiven: 10, LikesReceived: 25, SolutionsGiven: 1},
				Yearly:  &domain.YearlyPosts{Topics: 1, Replies: 9, MedianPerMonth: 0.5, MeanPerMonth: 0.8, BusiestMonth: "2026-03"},
			},
			contains: []string{
				"Topics Created                : 3\n",
				"Likes Received                : 25\n",
				"TOTAL CONTRIBUTIONS           : 84\n",
				"Yearly Post Activity (Last 12 Months)\n",
				"Median Posts per Month        : 0.5\n",
				"Mean Posts per Month          : 0.8\n",
				"Busiest Month                 : 2026-03\n",
				"TOTAL POSTS                   : 10\n",
			},
		},
		{
			name: "without yearly activity",
			summary: &domain.DiscourseSummary{
				User:    "bob",
				AllTime: domain.DiscourseCounts{RepliesCreated: 2},
			},
			contains:    []string{"Contribution Summary for: bob\n", "TOTAL CONTRIBUTIONS           : 2\n"},
			notContains: []string{"Yearly Post Activity"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).DiscourseSummary(tc.summary)
			for _, s := range tc.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tc.notContains {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestPrinter_RateLimits(t *testing.T) {
	reset := time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

	t.Run("only used buckets are listed", func(t *testing.T) {
		var buf bytes.Buffer
		NewPrinter(&buf).RateLimits([]domain.RateLimit{
			{Resource: "core", Limit: 5000, Remaining: 5000, Reset: reset},
			{Resource: "code_search", Limit: 10, Remaining: 4, Reset: reset},
		})
		out := buf.String()
		assert.Contains(t, out, "Active API Rate Limits (Used)")
		assert.Contains(t, out, "Code Search              : 4/10 remaining\n")
		assert.Contains(t, out, "Resets at                : 2026-10-18 10:00:00 UTC\n")
		assert.NotContains(t, out, "Core")
	})

	t.Run("nothing used", func(t *testing.T) {
		var buf bytes.Buffer
		NewPrinter(&buf).RateLimits([]domain.RateLimit{{Resource: "core", Limit: 60, Remaining: 60}})
		assert.Equal(t, "No API rate limits have been consumed yet.\n", buf.String())
	})
}

func TestPrinter_RateLimitExceeded(t *testing.T) {
	testCases := []struct {
		name    string
		service string
		err     *gateway.RateLimitError
		want    []string
	}{
		{
			name:    "reset time known",
			service: "GitHub",
			err:     &gateway.RateLimitError{Resource: "search", Reset: time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)},
			want: []string{
				"--- GitHub API Rate Limit Exceeded ---",
				"The rate limit for the 'Search' API has been reached.",
				"Your limit will reset at: 2026-10-18 10:00:00 UTC",
				"different GitHub Personal Access Token",
				"'resettoken'",
			},
		},
		{
			name:    "retry after",
			service: "Discourse",
			err:     &gateway.RateLimitError{RetryAfter: 30 * time.Second},
			want:    []string{"--- Discourse API Rate Limit Exceeded ---", "try again after 30 seconds"},
		},
		{
			name:    "nothing known",
			service: "GitHub",
			err:     &gateway.RateLimitError{},
			want:    []string{"reset time could not be determined"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).RateLimitExceeded(tc.service, tc.err)
			for _, s := range tc.want {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	s := &domain.GitHubSummary{User: "alice", Repo: "r", AllTime: domain.GitHubCounts{Commits: 3}}

	require.NoError(t, NewPrinter(&buf).JSON(s))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "alice", decoded["user"])
	assert.Equal(t, float64(3), decoded["all_time"].(map[string]interface{})["commits"])
}
