// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// GitHubCounts holds one user's activity counts in a single repository
// for a given period.
type GitHubCounts struct {
	MergedPRs             int `json:"merged_prs"`
	OpenPRs               int `json:"open_prs"`
	ClosedUnmergedPRs     int `json:"closed_unmerged_prs"`
	Reviews               int `json:"reviews"`
	Commits               int `json:"commits"`
	IssuesOpened          int `json:"issues_opened"`
	IssueThreadsCommented int `json:"issue_threads_commented"`
	PRThreadsCommented    int `json:"pr_threads_commented"`
}

// AuthoredPRs is the number of pull requests the user opened, whatever their state.
func (c GitHubCounts) AuthoredPRs() int {
	return c.MergedPRs + c.OpenPRs + c.ClosedUnmergedPRs
}

// ThreadsCommentedOn counts issues and pull requests with at least one comment by the user.
func (c GitHubCounts) ThreadsCommentedOn() int {
	return c.IssueThreadsCommented + c.PRThreadsCommented
}

// Total sums authored PRs, reviews, issues, commented threads and commits.
func (c GitHubCounts) Total() int {
	return c.AuthoredPRs() + c.Reviews + c.IssuesOpened + c.ThreadsCommentedOn() + c.Commits
}

// GitHubSummary is the all-time and last-12-months activity of a user in a repository.
type GitHubSummary struct {
	User     string       `json:"user"`
	Repo     string       `json:"repo"`
	Since    time.Time    `json:"since"`
	AllTime  GitHubCounts `json:"all_time"`
	LastYear GitHubCounts `json:"last_year"`
}

// DiscourseCounts mirrors the all-time counters of a Discourse user summary.
type DiscourseCounts struct {
	TopicsCreated  int `json:"topics_created"`
	RepliesCreated int `json:"replies_created"`
	LikesGiven     int `json:"likes_given"`
	LikesReceived  int `json:"likes_received"`
	SolutionsGiven int `json:"solutions_given"`
}

// Total sums topics, replies and solutions. Likes are not contributions.
func (c DiscourseCounts) Total() int {
	return c.TopicsCreated + c.RepliesCreated + c.SolutionsGiven
}

// YearlyPosts is the post activity of the last 12 months.
type YearlyPosts struct {
	Topics         int            `json:"topics"`
	Replies        int            `json:"replies"`
	MonthlyPosts   map[string]int `json:"monthly_posts"`
	MedianPerMonth float64        `json:"median_per_month"`
	MeanPerMonth   float64        `json:"mean_per_month"`
	BusiestMonth   string         `json:"busiest_month,omitempty"`
}

// Total is the number of posts, topics included.
func (y YearlyPosts) Total() int {
	return y.Topics + y.Replies
}

// DiscourseSummary is the activity of a user on a Discourse forum.
// Yearly is nil when the account is not older than a year.
type DiscourseSummary struct {
	User      string          `json:"user"`
	Forum     string          `json:"forum"`
	CreatedAt time.Time       `json:"created_at"`
	AllTime   DiscourseCounts `json:"all_time"`
	Yearly    *YearlyPosts    `json:"yearly,omitempty"`
}

// RateLimit is the state of one API rate limit bucket.
type RateLimit struct {
	Resource  string    `json:"resource"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// Used reports whether any request has been charged against the bucket.
func (r RateLimit) Used() bool {
	return r.Remaining < r.Limit
}

// OneYearBefore returns the same calendar date a year earlier.
// February 29 maps to February 28.
func OneYearBefore(t time.Time) time.Time {
	y, m, d := t.Date()
	if m == time.February && d == 29 {
		d = 28
	}
	return time.Date(y-1, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
