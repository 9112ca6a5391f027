package credential

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// DiscourseCredentials authenticate requests to a Discourse forum.
type DiscourseCredentials struct {
	Username string
	Key      string
}

// Valid reports whether both parts are present.
func (c DiscourseCredentials) Valid() bool {
	return c.Username != "" && c.Key != ""
}

// ParseDiscourseCredentials parses the "username:key" cache file format.
// The key may itself contain colons.
func ParseDiscourseCredentials(s string) (DiscourseCredentials, error) {
	username, key, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DiscourseCredentials{}, errors.New("expected 'api_username:api_key'")
	}
	c := DiscourseCredentials{Username: username, Key: key}
	if !c.Valid() {
		return DiscourseCredentials{}, errors.New("api_username and api_key must both be non-empty")
	}
	return c, nil
}

// encode renders the cache file format.
func (c DiscourseCredentials) encode() string {
	return c.Username + ":" + c.Key
}

// DiscourseCredentialSource resolves Discourse API credentials.
type DiscourseCredentialSource struct {
	env      DiscourseCredentials
	forumURL string
	store    fileStore
	prompter *Prompter
}

// NewDiscourseCredentialSource creates a source that prefers env when both
// parts are set, then the cache file at path, then asks through prompter.
func NewDiscourseCredentialSource(env DiscourseCredentials, forumURL, path string, prompter *Prompter) *DiscourseCredentialSource {
	return &DiscourseCredentialSource{
		env:      env,
		forumURL: forumURL,
		store:    fileStore{path: path},
		prompter: prompter,
	}
}

// Credentials returns the credentials to authenticate with. The zero value
// means unauthenticated access.
func (s *DiscourseCredentialSource) Credentials() DiscourseCredentials {
	out := s.prompter.Out()
	if s.env.Valid() {
		fmt.Fprintln(out, "Found DISCOURSE_API_KEY and DISCOURSE_API_USERNAME environment variables.")
		return s.env
	}

	content, err := s.store.read()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Warning: Could not read credentials file '%s': %v\n", s.store.path, err)
	case content != "":
		creds, err := ParseDiscourseCredentials(content)
		if err == nil {
			fmt.Fprintf(out, "Using cached Discourse API credentials from '%s'.\n", s.store.path)
			return creds
		}
		fmt.Fprintf(out, "Warning: Credentials file '%s' has an invalid format: %v\n", s.store.path, err)
	}

	fmt.Fprintln(out, "\nPlease provide Discourse API credentials.")
	fmt.Fprintln(out, "This is recommended to avoid being rate-limited.")
	fmt.Fprintf(out, "You can generate these from your user admin panel at %s/admin/api/keys\n", strings.TrimRight(s.forumURL, "/"))
	fmt.Fprintf(out, "Your credentials will be saved to '%s' for future use (format: api_username:api_key).\n", s.store.path)

	var creds DiscourseCredentials
	creds.Username, err = s.prompter.ReadLine("Enter your Discourse API Username (e.g., your username or 'system'): ")
	if err == nil {
		creds.Key, err = s.prompter.ReadSecret("Enter your Discourse API Key: ")
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "\nCould not read from input. Proceeding without authentication.")
		} else {
			fmt.Fprintf(out, "\nCould not read credentials: %v. Proceeding without authentication.\n", err)
		}
		return DiscourseCredentials{}
	}
	if !creds.Valid() {
		return DiscourseCredentials{}
	}
	if err := s.store.write(creds.encode()); err != nil {
		fmt.Fprintf(out, "Warning: Could not save credentials to file '%s': %v\n", s.store.path, err)
	} else {
		fmt.Fprintf(out, "Credentials saved to '%s'.\n", s.store.path)
	}
	return creds
}

// Reset forgets the cached credentials and resolves new ones.
func (s *DiscourseCredentialSource) Reset() DiscourseCredentials {
	out := s.prompter.Out()
	removed, err := s.store.remove()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Error removing credentials file: %v\n", err)
	case removed:
		fmt.Fprintf(out, "Cached credentials '%s' have been removed.\n", s.store.path)
	}
	return s.Credentials()
}
