package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRoot executes the CLI with args and scripted stdin.
func runRoot(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(input))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// newGitHubServer mimics GitHub: GraphQL needs a token, REST search does not.
// graphqlCalls counts GraphQL requests when non-nil.
func newGitHubServer(t *testing.T, graphqlCalls *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if graphqlCalls != nil {
			atomic.AddInt32(graphqlCalls, 1)
		}
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message": "This endpoint requires you to be authenticated."}`)
			return
		}
		fmt.Fprint(w, `{"data":{"mergedPRs":{"issueCount":10},"reviews":{"issueCount":4},"prComments":{"issueCount":2}}}`)
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count": 3, "items": []}`)
	})
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count": 12}`)
	})
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resources":{"search":{"limit":30,"remaining":26,"reset":1700000000}}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGitHubCommand_OneShot(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	server := newGitHubServer(t, nil)

	stdout, _, err := runRoot(t, "", "github", "--user", "alice", "--api-url", server.URL,
		"--token-file", filepath.Join(t.TempDir(), ".github_token"))

	require.NoError(t, err)
	assert.Contains(t, stdout, "Found GITHUB_TOKEN environment variable")
	assert.Contains(t, stdout, "Fetching contributions for 'alice' in 'llvm/llvm-project'")
	assert.Contains(t, stdout, "Pull Requests (Authored)      : 10\n")
	assert.Contains(t, stdout, "Commits                       : 12\n")
	assert.Contains(t, stdout, "TOTAL CONTRIBUTIONS           : 28\n")
}

func TestGitHubCommand_JSON(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	server := newGitHubServer(t, nil)

	stdout, stderr, err := runRoot(t, "", "github", "-u", "alice", "-r", "octo/widgets", "--api-url", server.URL, "-o", "json")

	require.NoError(t, err)
	var decoded struct {
		User    string `json:"user"`
		Repo    string `json:"repo"`
		AllTime struct {
			MergedPRs int `json:"merged_prs"`
			Commits   int `json:"commits"`
		} `json:"all_time"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	assert.Equal(t, "alice", decoded.User)
	assert.Equal(t, "octo/widgets", decoded.Repo)
	assert.Equal(t, 10, decoded.AllTime.MergedPRs)
	assert.Equal(t, 12, decoded.AllTime.Commits)
	assert.Contains(t, stderr, "Fetching contributions for 'alice' in 'octo/widgets'")
}

func TestGitHubCommand_Interactive(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	server := newGitHubServer(t, nil)
	tokenFile := filepath.Join(t.TempDir(), ".github_token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("ghp_cached"), 0o600))

	input := "ratelimit\nalice\nresettoken\nghp_new\nstop\n"
	stdout, _, err := runRoot(t, input, "github", "--api-url", server.URL, "--token-file", tokenFile)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Using cached GitHub token")
	assert.Contains(t, stdout, "Search                   : 26/30 remaining")
	assert.Contains(t, stdout, "Contribution Summary for: alice")
	assert.Contains(t, stdout, "Authentication headers have been updated with the new token.")
	assert.Contains(t, stdout, "Exiting program. Goodbye!")
	b, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "ghp_new", string(b))
}

func TestGitHubCommand_Anonymous(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	var graphqlCalls int32
	server := newGitHubServer(t, &graphqlCalls)
	tokenFile := filepath.Join(t.TempDir(), ".github_token")

	stdout, _, err := runRoot(t, "\n", "github", "--user", "alice", "--api-url", server.URL, "--token-file", tokenFile)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Proceeding without a GitHub token. You may encounter rate limits.")
	assert.Contains(t, stdout, "Pull Requests (Authored)      : 9\n")
	assert.Contains(t, stdout, "Threads Commented On          : 6\n")
	assert.Contains(t, stdout, "Commits                       : 12\n")
	assert.Contains(t, stdout, "TOTAL CONTRIBUTIONS           : 33\n")
	assert.Contains(t, stdout, "TOTAL YEARLY CONTRIBUTIONS    : 33\n")
	assert.NotContains(t, stdout, "invalid GitHub token")
	assert.Zero(t, atomic.LoadInt32(&graphqlCalls))
	assert.NoFileExists(t, tokenFile)
}

func TestGitHubCommand_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	t.Cleanup(server.Close)

	testCases := []struct {
		name  string
		token string
		want  string
	}{
		{name: "token sent", token: "ghp_revoked", want: "This indicates an invalid GitHub token."},
		{name: "no token", token: "", want: "GitHub requires a token for this request."},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GITHUB_TOKEN", tc.token)

			stdout, _, err := runRoot(t, "\n", "github", "--user", "alice", "--api-url", server.URL,
				"--token-file", filepath.Join(t.TempDir(), ".github_token"))

			assert.ErrorIs(t, err, errReported)
			assert.Contains(t, stdout, "Error fetching contributions for 'alice'")
			assert.Contains(t, stdout, tc.want)
		})
	}
}

func TestGitHubCommand_RateLimited(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.Header().Set("X-RateLimit-Resource", "search")
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	stdout, _, err := runRoot(t, "", "github", "--user", "alice", "--api-url", server.URL)

	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stdout, "--- GitHub API Rate Limit Exceeded ---")
	assert.Contains(t, stdout, "Your limit will reset at: 2023-11-14 22:13:20 UTC")
}

func TestGitHubCommand_InvalidOutput(t *testing.T) {
	_, _, err := runRoot(t, "", "github", "--user", "alice", "--output", "yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --output")
}

func newDiscourseServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice/summary.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k3y", r.Header.Get("Api-Key"))
		fmt.Fprint(w, `{"user_summary":{"topic_count":2,"post_count":30,"likes_given":5,"likes_received":9,"solved_count":1}}`)
	})
	mux.HandleFunc("/users/alice.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user":{"username":"alice","created_at":"2099-01-01T00:00:00.000Z"}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestDiscourseCommand_OneShot(t *testing.T) {
	t.Setenv("DISCOURSE_API_USERNAME", "system")
	t.Setenv("DISCOURSE_API_KEY", "k3y")
	server := newDiscourseServer(t)

	stdout, _, err := runRoot(t, "", "discourse", "--user", "alice", "--url", server.URL)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Using API credentials for user 'system'.")
	assert.Contains(t, stdout, "Replies Created               : 30\n")
	assert.Contains(t, stdout, "TOTAL CONTRIBUTIONS           : 33\n")
	assert.NotContains(t, stdout, "Yearly Post Activity")
}

func TestDiscourseCommand_Interactive(t *testing.T) {
	t.Setenv("DISCOURSE_API_USERNAME", "system")
	t.Setenv("DISCOURSE_API_KEY", "k3y")
	server := newDiscourseServer(t)

	input := "ghost\nratelimit\nalice\nstop\n"
	stdout, _, err := runRoot(t, input, "discourse", "--url", server.URL,
		"--credentials-file", filepath.Join(t.TempDir(), ".discourse_api_credentials"))

	require.NoError(t, err)
	assert.Contains(t, stdout, fmt.Sprintf("User 'ghost' not found on %s.", server.URL))
	assert.Contains(t, stdout, "Discourse API rate limits are included in response headers.")
	assert.Contains(t, stdout, "Contribution Summary for: alice")
}

func TestDiscourseCommand_ResetToken(t *testing.T) {
	t.Setenv("DISCOURSE_API_USERNAME", "")
	t.Setenv("DISCOURSE_API_KEY", "")
	mux := http.NewServeMux()
	mux.HandleFunc("/users/alice/summary.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "k3y" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"user_summary":{"topic_count":1,"post_count":4}}`)
	})
	mux.HandleFunc("/users/alice.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user":{"username":"alice","created_at":"2099-01-01T00:00:00.000Z"}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	credsFile := filepath.Join(t.TempDir(), ".discourse_api_credentials")
	require.NoError(t, os.WriteFile(credsFile, []byte("system:stale"), 0o600))

	input := "alice\nresettoken\nsystem\nk3y\nalice\nstop\n"
	stdout, _, err := runRoot(t, input, "discourse", "--url", server.URL, "--credentials-file", credsFile)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Using cached Discourse API credentials")
	assert.Contains(t, stdout, "The forum rejected the API credentials. Enter 'resettoken' to replace them.")
	assert.Contains(t, stdout, "have been removed.")
	assert.Contains(t, stdout, "API headers updated.")
	assert.Contains(t, stdout, "TOTAL CONTRIBUTIONS           : 5\n")
	b, err := os.ReadFile(credsFile)
	require.NoError(t, err)
	assert.Equal(t, "system:k3y", string(b))
}

func TestDiscourseCommand_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":["You are not permitted to view the requested resource."]}`)
	}))
	t.Cleanup(server.Close)

	testCases := []struct {
		name     string
		username string
		key      string
		want     string
	}{
		{name: "with credentials", username: "system", key: "k3y", want: "The profile may be hidden"},
		{name: "anonymous", want: "The forum requires API credentials for this profile."},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DISCOURSE_API_USERNAME", tc.username)
			t.Setenv("DISCOURSE_API_KEY", tc.key)

			stdout, _, err := runRoot(t, "\n\n", "discourse", "--user", "alice", "--url", server.URL,
				"--credentials-file", filepath.Join(t.TempDir(), ".discourse_api_credentials"))

			assert.ErrorIs(t, err, errReported)
			assert.Contains(t, stdout, tc.want)
			assert.NotContains(t, stdout, "rejected the API credentials")
		})
	}
}
