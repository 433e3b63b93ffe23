package cli

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaa1973/memo-platform/internal/client"
)

func TestSessionFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session")
	sf := NewSessionFile(path)

	src, err := client.New("http://localhost:8000/api")
	require.NoError(t, err)
	src.SetCookies([]*http.Cookie{{Name: "memos_session", Value: "abc"}})
	require.NoError(t, sf.Save(src))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dst, err := client.New("http://localhost:8000/api")
	require.NoError(t, err)
	require.NoError(t, sf.Restore(dst))
	require.Len(t, dst.Cookies(), 1)
	assert.Equal(t, "abc", dst.Cookies()[0].Value)
}

func TestSessionFileMissingIsEmpty(t *testing.T) {
	sf := NewSessionFile(filepath.Join(t.TempDir(), "session"))
	c, err := client.New("http://localhost:8000/api")
	require.NoError(t, err)

	require.NoError(t, sf.Restore(c))
	assert.Empty(t, c.Cookies())
	assert.NoError(t, sf.Clear())
}
