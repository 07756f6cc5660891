package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeProfile(t, "name: test\nready-patterns:\n  - \"> \"\n")
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "\n", p.ReplyKeys)
	assert.True(t, p.AutoYes)
}

func TestLoadAutoYesExplicitFalse(t *testing.T) {
	path := writeProfile(t, "name: test\nauto-yes: false\nready-patterns:\n  - \"> \"\n")
	p, err := Load(path)
	require.NoError(t, err)
	assert.False(t, p.AutoYes)
}

func TestAllPatternKindsMatchSameTail(t *testing.T) {
	path := writeProfile(t, `
name: test
ready-patterns:
  - "> "
confirm-patterns:
  - "\\(y/N\\)"
dangerous-patterns:
  - "rm -rf"
`)
	p, err := Load(path)
	require.NoError(t, err)

	tail := []byte("About to run rm -rf /tmp/x (y/N) > ")
	assert.True(t, p.MatchReady(tail))
	assert.True(t, p.MatchConfirm(tail))
	assert.True(t, p.MatchDangerous(tail))
}

func TestInvalidPattern(t *testing.T) {
	path := writeProfile(t, "name: test\nready-patterns:\n  - \"(\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/profile.yaml")
	assert.Error(t, err)
}
