package logsink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesLayoutAndGitignore(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, Init(cwd))

	assert.DirExists(t, filepath.Join(Root(cwd), "logs"))
	assert.DirExists(t, filepath.Join(Root(cwd), "fifo"))

	data, err := os.ReadFile(filepath.Join(Root(cwd), ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "logs/")
	assert.Contains(t, string(data), "fifo/")
	assert.Contains(t, string(data), "*.sqlite*")
}

func TestInitNeverOverwritesGitignore(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, Init(cwd))

	custom := []byte("# custom\n")
	require.NoError(t, os.WriteFile(filepath.Join(Root(cwd), ".gitignore"), custom, 0o644))

	require.NoError(t, Init(cwd))

	data, err := os.ReadFile(filepath.Join(Root(cwd), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, custom, data)
}

func TestOpenCreatesThreeFiles(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, Init(cwd))

	sinks, err := Open(cwd, 4242)
	require.NoError(t, err)
	defer sinks.Close()

	sinks.Raw.WriteString("raw\x1b[0m bytes")
	sinks.WriteLine("decoded line")
	sinks.Debug.Println("trace")

	assert.FileExists(t, filepath.Join(Root(cwd), "logs", "4242.raw.log"))
	assert.FileExists(t, filepath.Join(Root(cwd), "logs", "4242.lines.log"))
	assert.FileExists(t, filepath.Join(Root(cwd), "logs", "4242.debug.log"))
}

func TestWriteLineAppendsNewlineTerminated(t *testing.T) {
	cwd := t.TempDir()
	require.NoError(t, Init(cwd))

	sinks, err := Open(cwd, 7)
	require.NoError(t, err)
	sinks.WriteLine("hello")
	sinks.WriteLine("world")
	sinks.Close()

	data, err := os.ReadFile(filepath.Join(Root(cwd), "logs", "7.lines.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}
