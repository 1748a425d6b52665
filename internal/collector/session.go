package collector

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SessionStore persists the opaque session token between runs.
// The collector never parses the token's contents.
type SessionStore interface {
	Load() (token string, ok bool, err error)
	Save(token string) error
}

// FileSessionStore keeps the token in a single file with owner-only perms.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (s *FileSessionStore) Load() (string, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *FileSessionStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token+"\n"), 0o600)
}
