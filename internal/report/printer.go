// Package report renders contribution summaries for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
)

const (
	labelWidth  = 30
	nestedWidth = 28
	lineWidth   = 40
	resetLayout = "2006-01-02 15:04:05 UTC"
)

var (
	doubleRule = strings.Repeat("=", lineWidth)
	singleRule = strings.Repeat("-", lineWidth)
)

// Printer writes summaries to w. Styling is dropped when w is not a terminal.
type Printer struct {
	w     io.Writer
	title lipgloss.Style
	total lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#6C5CE7")),
		total: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00B894")),
		warn:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#D63031")),
		muted: r.NewStyle().Foreground(lipgloss.Color("#636E72")),
	}
}

func (p *Printer) println(a ...interface{}) {
	fmt.Fprintln(p.w, a...)
}

func (p *Printer) header(title string) {
	p.println("\n" + doubleRule)
	p.println(p.title.Render(title))
	p.println(doubleRule)
}

func (p *Printer) row(label string, value int) {
	fmt.Fprintf(p.w, "%-*s: %d\n", labelWidth, label, value)
}

func (p *Printer) nested(label string, value int) {
	fmt.Fprintf(p.w, "%-*s: %d\n", nestedWidth, "  - "+label, value)
}

func (p *Printer) totalRow(label string, value int) {
	p.println(p.total.Render(fmt.Sprintf("%-*s: %d", labelWidth, label, value)))
}

// GitHubSummary prints the all-time and last-12-months sections.
func (p *Printer) GitHubSummary(s *domain.GitHubSummary) {
	p.header("Contribution Summary for: " + s.User)
	p.githubCounts(s.AllTime, "Threads Commented On")
	p.println(doubleRule)
	p.totalRow("TOTAL CONTRIBUTIONS", s.AllTime.Total())
	p.println(doubleRule)

	p.header("Contribution Summary (Last 12 Months)")
	p.githubCounts(s.LastYear, "Threads Commented On*")
	p.println(doubleRule)
	p.totalRow("TOTAL YEARLY CONTRIBUTIONS", s.LastYear.Total())
	p.println(doubleRule)

	p.println()
	p.println(p.muted.Render("Note: 'Total Contributions' is a sum of commits, PRs (authored/reviewed), issues opened, and threads commented on."))
	p.println(p.muted.Render("*Due to API limitations, the script counts threads (issues/PRs) with comments, not individual comments."))
}

func (p *Printer) githubCounts(c domain.GitHubCounts, threadsLabel string) {
	p.row("Pull Requests (Authored)", c.AuthoredPRs())
	p.nested("Merged", c.MergedPRs)
	p.nested("Open", c.OpenPRs)
	p.nested("Closed/Unmerged", c.ClosedUnmergedPRs)
	p.println(singleRule)
	p.row("Pull Request Reviews", c.Reviews)
	p.println(singleRule)
	p.row("Commits", c.Commits)
	p.println(singleRule)
	p.row("Issues Opened", c.IssuesOpened)
	p.println(singleRule)
	p.row(threadsLabel, c.ThreadsCommentedOn())
}

// DiscourseSummary prints the all-time counters and, when present, the yearly post activity.
func (p *Printer) DiscourseSummary(s *domain.DiscourseSummary) {
	c := s.AllTime
	p.header("Contribution Summary for: " + s.User)
	p.row("Topics Created", c.TopicsCreated)
	p.row("Replies Created", c.RepliesCreated)
	p.println(singleRule)
	p.row("Likes Given", c.LikesGiven)
	p.row("Likes Received", c.LikesReceived)
	p.println(singleRule)
	p.row("Solutions Given", c.SolutionsGiven)
	p.println(doubleRule)
	p.totalRow("TOTAL CONTRIBUTIONS", c.Total())
	p.println(doubleRule)

	if y := s.Yearly; y != nil {
		p.header("Yearly Post Activity (Last 12 Months)")
		p.row("Topics Created", y.Topics)
		p.row("Replies Created", y.Replies)
		p.println(singleRule)
		fmt.Fprintf(p.w, "%-*s: %.1f\n", labelWidth, "Median Posts per Month", y.MedianPerMonth)
		fmt.Fprintf(p.w, "%-*s: %.1f\n", labelWidth, "Mean Posts per Month", y.MeanPerMonth)
		busiest := y.BusiestMonth
		if busiest == "" {
			busiest = "-"
		}
		fmt.Fprintf(p.w, "%-*s: %s\n", labelWidth, "Busiest Month", busiest)
		p.println(doubleRule)
		p.totalRow("TOTAL POSTS", y.Total())
		p.println(doubleRule)
	}

	p.println()
	p.println(p.muted.Render("Note: 'Total Contributions' is a sum of topics, replies, and solutions for all time."))
	p.println(p.muted.Render("Note: Yearly activity only includes topics and replies due to API limitations."))
}

// RateLimits prints the buckets that have been drawn from.
func (p *Printer) RateLimits(limits []domain.RateLimit) {
	var used []domain.RateLimit
	for _, l := range limits {
		if l.Used() {
			used = append(used, l)
		}
	}
	if len(used) == 0 {
		p.println("No API rate limits have been consumed yet.")
		return
	}

	p.header("Active API Rate Limits (Used)")
	for _, l := range used {
		fmt.Fprintf(p.w, "%-25s: %d/%d remaining\n", resourceTitle(l.Resource), l.Remaining, l.Limit)
		fmt.Fprintf(p.w, "%-25s: %s\n", "Resets at", l.Reset.UTC().Format(resetLayout))
		p.println(singleRule)
	}
}

// DiscourseRateLimitInfo explains how Discourse reports rate limits, since it
// has no endpoint to query them.
func (p *Printer) DiscourseRateLimitInfo() {
	p.println("\nDiscourse API rate limits are included in response headers.")
	p.println("This program will notify you if a rate limit is hit.")
	p.println("With an API key, you should generally have a high limit (e.g., 60 reqs/min by default).")
}

// RateLimitExceeded explains a rate limit failure of service.
func (p *Printer) RateLimitExceeded(service string, e *gateway.RateLimitError) {
	banner := fmt.Sprintf("--- %s API Rate Limit Exceeded ---", service)
	p.println("\n" + p.warn.Render(banner))
	switch {
	case !e.Reset.IsZero():
		if e.Resource != "" {
			fmt.Fprintf(p.w, "The rate limit for the '%s' API has been reached.\n", resourceTitle(e.Resource))
		}
		fmt.Fprintf(p.w, "Your limit will reset at: %s\n", e.Reset.UTC().Format(resetLayout))
	case e.RetryAfter > 0:
		fmt.Fprintf(p.w, "You have been rate-limited. Please try again after %d seconds.\n", int(e.RetryAfter/time.Second))
	default:
		p.println("A rate limit was exceeded, but the reset time could not be determined.")
	}
	if service == "GitHub" {
		p.println("Please wait until the reset time or use a different GitHub Personal Access Token.")
	}
	p.println("You can reset your credentials in this program by entering 'resettoken'.")
	p.println(strings.Repeat("-", len(banner)))
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v interface{}) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	_, err = fmt.Fprintln(p.w, string(jsonData))
	return err
}

// resourceTitle turns an API bucket name such as "code_search" into "Code Search".
func resourceTitle(resource string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(resource, "_", " "))
}
