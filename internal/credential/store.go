package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// fileStore is a single-value plaintext cache file.
type fileStore struct {
	path string
}

// read returns the trimmed file content, or "" when the file does not exist.
func (s fileStore) read() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s fileStore) write(value string) error {
	return os.WriteFile(s.path, []byte(value), 0o600)
}

// remove deletes the file. It reports whether a file was actually removed.
func (s fileStore) remove() (bool, error) {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return true, nil
}
