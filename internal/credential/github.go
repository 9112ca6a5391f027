package credential

import (
	"errors"
	"fmt"
	"io"
)

// GitHubTokenSource resolves a GitHub personal access token.
type GitHubTokenSource struct {
	envToken string
	store    fileStore
	prompter *Prompter
}

// NewGitHubTokenSource creates a source that prefers envToken, then the cache
// file at path, then asks through prompter.
func NewGitHubTokenSource(envToken, path string, prompter *Prompter) *GitHubTokenSource {
	return &GitHubTokenSource{
		envToken: envToken,
		store:    fileStore{path: path},
		prompter: prompter,
	}
}

// Token returns the token to authenticate with. An empty token means the
// user chose to proceed unauthenticated. Cache file problems are reported
// as warnings and never fail the lookup.
func (s *GitHubTokenSource) Token() string {
	out := s.prompter.Out()
	if s.envToken != "" {
		fmt.Fprintln(out, "Found GITHUB_TOKEN environment variable. Using it for authentication.")
		return s.envToken
	}

	token, err := s.store.read()
	if err != nil {
		fmt.Fprintf(out, "Warning: Could not read token file '%s': %v\n", s.store.path, err)
	} else if token != "" {
		fmt.Fprintf(out, "Using cached GitHub token from '%s'.\n", s.store.path)
		return token
	}

	fmt.Fprintln(out, "\nPlease provide a GitHub Personal Access Token.")
	fmt.Fprintln(out, "This is recommended to avoid API rate limits and access private data if needed.")
	fmt.Fprintf(out, "Your token will be saved to '%s' for future use.\n", s.store.path)

	token, err = s.prompter.ReadSecret("Enter token (or press Enter to proceed without one): ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nCould not read from input. Proceeding without a token.")
		} else {
			fmt.Fprintf(out, "\nCould not read token: %v. Proceeding without a token.\n", err)
		}
		return ""
	}
	if token == "" {
		return ""
	}
	if err := s.store.write(token); err != nil {
		fmt.Fprintf(out, "Warning: Could not save token to file '%s': %v\n", s.store.path, err)
	} else {
		fmt.Fprintf(out, "Token saved to '%s'.\n", s.store.path)
	}
	return token
}

// Reset forgets the cached token and resolves a new one.
func (s *GitHubTokenSource) Reset() string {
	out := s.prompter.Out()
	removed, err := s.store.remove()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Error removing token file: %v\n", err)
	case removed:
		fmt.Fprintf(out, "Cached token '%s' has been removed.\n", s.store.path)
	}
	return s.Token()
}
