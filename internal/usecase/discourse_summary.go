package usecase

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
	"golang.org/x/sync/errgroup"
)

const monthLayout = "2006-01"

// DiscourseSummarizer is the use case for summarizing a user's activity on a Discourse forum.
type DiscourseSummarizer struct {
	fetcher gateway.DiscourseFetcher
	forum   string
	logger  *log.Logger
}

// NewDiscourseSummarizer creates a new DiscourseSummarizer instance.
func NewDiscourseSummarizer(fetcher gateway.DiscourseFetcher, forum string, logger *log.Logger) *DiscourseSummarizer {
	return &DiscourseSummarizer{
		fetcher: fetcher,
		forum:   forum,
		logger:  logger,
	}
}

// Forum is the base URL of the forum.
func (s *DiscourseSummarizer) Forum() string {
	return s.forum
}

// Summarize collects the all-time counters of user and, for accounts older
// than a year, the post activity of the last 12 months.
func (s *DiscourseSummarizer) Summarize(ctx context.Context, user string, now time.Time) (*domain.DiscourseSummary, error) {
	s.logger.Printf("Usecase: Starting Discourse summary for %s...\n", user)

	var counts domain.DiscourseCounts
	var details *gateway.DiscourseUser

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		counts, err = s.fetcher.UserSummary(egCtx, user)
		return err
	})
	eg.Go(func() error {
		var err error
		details, err = s.fetcher.UserDetails(egCtx, user)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	summary := &domain.DiscourseSummary{
		User:      user,
		Forum:     s.forum,
		CreatedAt: details.CreatedAt,
		AllTime:   counts,
	}

	cutoff := domain.OneYearBefore(now)
	if details.CreatedAt.IsZero() || !details.CreatedAt.Before(cutoff) {
		s.logger.Println("Usecase: Account is not older than a year, skipping yearly activity.")
		return summary, nil
	}

	s.logger.Printf("Usecase: Fetching posts since %s...\n", cutoff.Format(time.DateOnly))
	posts, err := s.fetcher.UserPosts(ctx, user, cutoff)
	if err != nil {
		return nil, err
	}
	summary.Yearly = yearlyPosts(posts, cutoff, now)

	s.logger.Println("Usecase: Discourse summary complete.")
	return summary, nil
}

// yearlyPosts classifies posts and buckets them per calendar month. Every
// month between cutoff and now is present, so quiet months pull the median down.
func yearlyPosts(posts []gateway.DiscoursePost, cutoff, now time.Time) *domain.YearlyPosts {
	y := &domain.YearlyPosts{MonthlyPosts: make(map[string]int)}
	first := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		y.MonthlyPosts[m.Format(monthLayout)] = 0
	}

	for _, p := range posts {
		if p.PostNumber == 1 {
			y.Topics++
		} else {
			y.Replies++
		}
		if p.CreatedAt.IsZero() {
			continue
		}
		key := p.CreatedAt.UTC().Format(monthLayout)
		if _, ok := y.MonthlyPosts[key]; ok {
			y.MonthlyPosts[key]++
		}
	}

	months := make([]string, 0, len(y.MonthlyPosts))
	for m := range y.MonthlyPosts {
		months = append(months, m)
	}
	sort.Strings(months)
	data := make(stats.Float64Data, 0, len(months))
	for _, m := range months {
		data = append(data, float64(y.MonthlyPosts[m]))
	}

	if median, err := data.Median(); err == nil {
		y.MedianPerMonth, _ = stats.Round(median, 1)
	}
	if mean, err := data.Mean(); err == nil {
		y.MeanPerMonth, _ = stats.Round(mean, 1)
	}
	if peak, err := data.Max(); err == nil && peak > 0 {
		for _, m := range months {
			if float64(y.MonthlyPosts[m]) == peak {
				y.BusiestMonth = m
				break
			}
		}
	}
	return y
}
