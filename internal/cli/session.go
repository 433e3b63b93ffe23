package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gaa1973/memo-platform/internal/client"
)

// SessionFile persists the API session cookies between runs.
type SessionFile struct {
	path string
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// DefaultSessionPath is ~/.memocli/session.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".memocli", "session"), nil
}

// Restore loads saved cookies into c. A missing file is not an error.
func (s *SessionFile) Restore(c *client.Client) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("parse session: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, sc := range saved {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	c.SetCookies(cookies)
	return nil
}

// Save writes c's current cookies, readable only by the owner.
func (s *SessionFile) Save(c *client.Client) error {
	var saved []savedCookie
	for _, ck := range c.Cookies() {
		saved = append(saved, savedCookie{Name: ck.Name, Value: ck.Value})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *SessionFile) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
