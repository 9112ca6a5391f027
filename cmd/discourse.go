package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/naka-gawa/contrib-stats/internal/credential"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
	"github.com/naka-gawa/contrib-stats/internal/report"
	"github.com/naka-gawa/contrib-stats/internal/usecase"
	"github.com/spf13/cobra"
)

type discourseRunner struct {
	gateway     *gateway.DiscourseGateway
	summarizer  *usecase.DiscourseSummarizer
	credentials *credential.DiscourseCredentialSource
	printer     *report.Printer
	notices     *report.Printer
	noticeOut   io.Writer
	jsonOutput  bool
	now         func() time.Time
}

func newDiscourseCmd() *cobra.Command {
	discourseCmd := &cobra.Command{
		Use:   "discourse",
		Short: "Counts a user's activity on a Discourse forum",
		Long: `Counts topics, replies, likes and accepted solutions of a Discourse user.
For accounts older than a year it also tallies topics and replies of the
last 12 months. Authenticates with DISCOURSE_API_USERNAME and
DISCOURSE_API_KEY, a cached credentials file or credentials entered at the prompt.`,
		Args: cobra.NoArgs,
		RunE: runDiscourse,
	}
	discourseCmd.Flags().StringP("user", "u", "", "Discourse user to look up (omit for interactive mode)")
	discourseCmd.Flags().String("url", "", "Forum base URL (default from DISCOURSE_URL or https://discourse.llvm.org)")
	discourseCmd.Flags().String("credentials-file", "", "Path of the cached credentials file")
	discourseCmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	return discourseCmd
}

func runDiscourse(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	overrideString(cmd, "url", &cfg.Discourse.URL)
	overrideString(cmd, "credentials-file", &cfg.Discourse.CredentialsFile)
	jsonOutput, err := parseOutput(cmd)
	if err != nil {
		return err
	}

	out, noticeOut := outputs(cmd, jsonOutput)
	prompter := credential.NewPrompter(cmd.InOrStdin(), noticeOut)
	credentials := credential.NewDiscourseCredentialSource(
		credential.DiscourseCredentials{Username: cfg.Discourse.APIUsername, Key: cfg.Discourse.APIKey},
		cfg.Discourse.URL,
		cfg.Discourse.CredentialsFile,
		prompter,
	)

	fmt.Fprintln(noticeOut, "--- Discourse Contribution Counter ---")
	creds := credentials.Credentials()
	announceDiscourseCredentials(noticeOut, creds)

	discourseGateway := gateway.NewDiscourseGateway(gateway.DiscourseOptions{
		BaseURL:   cfg.Discourse.URL,
		PageDelay: cfg.Discourse.PageDelay,
		Timeout:   cfg.HTTPTimeout,
	}, logger)
	discourseGateway.SetCredentials(creds.Username, creds.Key)

	r := &discourseRunner{
		gateway:     discourseGateway,
		summarizer:  usecase.NewDiscourseSummarizer(discourseGateway, cfg.Discourse.URL, logger),
		credentials: credentials,
		printer:     report.NewPrinter(out),
		notices:     report.NewPrinter(noticeOut),
		noticeOut:   noticeOut,
		jsonOutput:  jsonOutput,
		now:         time.Now,
	}

	if user, _ := cmd.Flags().GetString("user"); user != "" {
		if err := r.lookup(cmd.Context(), user); err != nil {
			return errReported
		}
		return nil
	}
	s := &session{
		prompter:   prompter,
		prompt:     sessionPrompt,
		lookup:     r.lookup,
		rateLimit:  func(context.Context) { r.notices.DiscourseRateLimitInfo() },
		resetToken: r.resetCredentials,
	}
	return s.run(cmd.Context())
}

func announceDiscourseCredentials(w io.Writer, creds credential.DiscourseCredentials) {
	if creds.Valid() {
		fmt.Fprintf(w, "\nUsing API credentials for user '%s'.\n", creds.Username)
	} else {
		fmt.Fprintln(w, "\nProceeding without authentication. You may be rate-limited.")
	}
}

func (r *discourseRunner) lookup(ctx context.Context, username string) error {
	fmt.Fprintf(r.noticeOut, "\nFetching contributions for '%s' from %s. This may take a moment...\n", username, r.summarizer.Forum())
	summary, err := r.summarizer.Summarize(ctx, username, r.now())
	if err != nil {
		r.reportError(username, err)
		return err
	}
	if r.jsonOutput {
		return r.printer.JSON(summary)
	}
	r.printer.DiscourseSummary(summary)
	return nil
}

func (r *discourseRunner) reportError(username string, err error) {
	var limitErr *gateway.RateLimitError
	switch {
	case errors.As(err, &limitErr):
		r.notices.RateLimitExceeded("Discourse", limitErr)
	case errors.Is(err, gateway.ErrUserNotFound):
		fmt.Fprintf(r.noticeOut, "User '%s' not found on %s.\n", username, r.summarizer.Forum())
	default:
		fmt.Fprintf(r.noticeOut, "Error fetching contributions for '%s': %v\n", username, err)
		authenticated := r.gateway.Authenticated()
		switch {
		case errors.Is(err, gateway.ErrUnauthorized) && authenticated:
			fmt.Fprintln(r.noticeOut, "The forum rejected the API credentials. Enter 'resettoken' to replace them.")
		case errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, gateway.ErrForbidden) && !authenticated:
			fmt.Fprintln(r.noticeOut, "The forum requires API credentials for this profile. Enter 'resettoken' to provide them.")
		case errors.Is(err, gateway.ErrForbidden):
			fmt.Fprintln(r.noticeOut, "The forum denied access. The profile may be hidden, or the API key may lack permission.")
		}
	}
}

func (r *discourseRunner) resetCredentials() error {
	creds := r.credentials.Reset()
	r.gateway.SetCredentials(creds.Username, creds.Key)
	if creds.Valid() {
		fmt.Fprintln(r.noticeOut, "\nAPI headers updated.")
	} else {
		fmt.Fprintln(r.noticeOut, "\nProceeding without authentication.")
	}
	return nil
}
