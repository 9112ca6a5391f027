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

// githubRunner holds the dependencies of one github command invocation.
type githubRunner struct {
	gateway    *gateway.GitHubGateway
	summarizer *usecase.GitHubSummarizer
	tokens     *credential.GitHubTokenSource
	printer    *report.Printer
	notices    *report.Printer
	noticeOut  io.Writer
	jsonOutput bool
	now        func() time.Time
}

func newGitHubCmd() *cobra.Command {
	githubCmd := &cobra.Command{
		Use:   "github",
		Short: "Counts a user's contributions to a GitHub repository",
		Long: `Counts pull requests (merged, open, closed), reviews, commits, issues and
commented threads of a GitHub user in one repository, for all time and for
the last 12 months. Authenticates with GITHUB_TOKEN, a cached token file or
a token entered at the prompt.`,
		Args: cobra.NoArgs,
		RunE: runGitHub,
	}
	githubCmd.Flags().StringP("user", "u", "", "GitHub user to look up (omit for interactive mode)")
	githubCmd.Flags().StringP("repo", "r", "", "Repository as owner/name (default from GITHUB_REPO or llvm/llvm-project)")
	githubCmd.Flags().String("token-file", "", "Path of the cached token file")
	githubCmd.Flags().String("api-url", "", "GitHub REST API root, e.g. https://ghe.example.com/api/v3")
	githubCmd.Flags().Duration("max-rate-limit-wait", 0, "Longest single sleep on a secondary rate limit (0 disables waiting)")
	githubCmd.Flags().StringP("output", "o", "text", "Output format: text or json")
	return githubCmd
}

func runGitHub(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	overrideString(cmd, "repo", &cfg.GitHub.Repo)
	overrideString(cmd, "token-file", &cfg.GitHub.TokenFile)
	overrideString(cmd, "api-url", &cfg.GitHub.APIURL)
	if cmd.Flags().Changed("max-rate-limit-wait") {
		cfg.GitHub.MaxRateLimitWait, _ = cmd.Flags().GetDuration("max-rate-limit-wait")
	}
	jsonOutput, err := parseOutput(cmd)
	if err != nil {
		return err
	}

	out, noticeOut := outputs(cmd, jsonOutput)
	prompter := credential.NewPrompter(cmd.InOrStdin(), noticeOut)
	tokens := credential.NewGitHubTokenSource(cfg.GitHub.Token, cfg.GitHub.TokenFile, prompter)

	fmt.Fprintln(noticeOut, "--- GitHub Contribution Counter ---")
	token := tokens.Token()
	announceGitHubToken(noticeOut, token)

	// Inject dependencies.
	githubGateway, err := gateway.NewGitHubGateway(token, gateway.GitHubOptions{
		APIURL:           cfg.GitHub.APIURL,
		MaxRateLimitWait: cfg.GitHub.MaxRateLimitWait,
		Timeout:          cfg.HTTPTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	r := &githubRunner{
		gateway:    githubGateway,
		summarizer: usecase.NewGitHubSummarizer(githubGateway, cfg.GitHub.Repo, logger),
		tokens:     tokens,
		printer:    report.NewPrinter(out),
		notices:    report.NewPrinter(noticeOut),
		noticeOut:  noticeOut,
		jsonOutput: jsonOutput,
		now:        time.Now,
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
		rateLimit:  r.rateLimit,
		resetToken: r.resetToken,
	}
	return s.run(cmd.Context())
}

func announceGitHubToken(w io.Writer, token string) {
	if token != "" {
		fmt.Fprintln(w, "\nUsing provided GitHub token for authentication.")
	} else {
		fmt.Fprintln(w, "\nProceeding without a GitHub token. You may encounter rate limits.")
	}
}

func (r *githubRunner) lookup(ctx context.Context, username string) error {
	fmt.Fprintf(r.noticeOut, "\nFetching contributions for '%s' in '%s'. This may take a moment...\n", username, r.summarizer.Repo())
	summary, err := r.summarizer.Summarize(ctx, username, r.now())
	if err != nil {
		r.reportError(username, err)
		return err
	}
	if r.jsonOutput {
		return r.printer.JSON(summary)
	}
	r.printer.GitHubSummary(summary)
	return nil
}

func (r *githubRunner) reportError(username string, err error) {
	var limitErr *gateway.RateLimitError
	if errors.As(err, &limitErr) {
		r.notices.RateLimitExceeded("GitHub", limitErr)
		return
	}
	fmt.Fprintf(r.noticeOut, "Error fetching contributions for '%s': %v\n", username, err)
	if errors.Is(err, gateway.ErrUnauthorized) {
		if r.gateway.Authenticated() {
			fmt.Fprintln(r.noticeOut, "This indicates an invalid GitHub token. Please check your token or run without one.")
		} else {
			fmt.Fprintln(r.noticeOut, "GitHub requires a token for this request. Enter 'resettoken' to provide one.")
		}
	}
}

func (r *githubRunner) rateLimit(ctx context.Context) {
	fmt.Fprintln(r.noticeOut, "\nChecking GitHub API Rate Limit Status for Used Endpoints...")
	limits, err := r.summarizer.RateLimits(ctx)
	if err != nil {
		fmt.Fprintf(r.noticeOut, "Error checking rate limit: %v\n", err)
		return
	}
	r.notices.RateLimits(limits)
}

func (r *githubRunner) resetToken() error {
	token := r.tokens.Reset()
	if err := r.gateway.SetToken(token); err != nil {
		return err
	}
	if token != "" {
		fmt.Fprintln(r.noticeOut, "\nAuthentication headers have been updated with the new token.")
	} else {
		fmt.Fprintln(r.noticeOut, "\nProceeding without a GitHub token.")
	}
	return nil
}

// parseOutput validates --output and reports whether JSON was requested.
func parseOutput(cmd *cobra.Command) (bool, error) {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "text":
		return false, nil
	case "json":
		return true, nil
	default:
		return false, fmt.Errorf("invalid --output %q: must be text or json", output)
	}
}

// outputs returns the writer for results and the writer for prompts and
// progress notices. JSON results keep stdout machine-readable.
func outputs(cmd *cobra.Command, jsonOutput bool) (io.Writer, io.Writer) {
	if jsonOutput {
		return cmd.OutOrStdout(), cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout(), cmd.OutOrStdout()
}
