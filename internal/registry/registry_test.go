package registry

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenFindActiveIPC(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, nil)
	require.NoError(t, err)
	defer r.Close()

	rec := Record{
		PID:       os.Getpid(),
		Assistant: "claude",
		Argv:      []string{"--foo"},
		CWD:       dir,
		LogFile:   filepath.Join(dir, "logs", "1.log"),
		IPCPath:   filepath.Join(dir, "fifo", "1.fifo"),
		StartedAt: 1000,
		UpdatedAt: 1000,
	}
	require.NoError(t, r.Register(rec))

	found, err := r.FindActiveIPC(dir)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.PID, found.PID)
	assert.Equal(t, "claude", found.Assistant)
	assert.Equal(t, []string{"--foo"}, found.Argv)
}

func TestRegisterUpsertOnReusedPID(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, nil)
	require.NoError(t, err)
	defer r.Close()

	pid := os.Getpid()
	require.NoError(t, r.Register(Record{PID: pid, Assistant: "claude", CWD: dir, StartedAt: 1, UpdatedAt: 1}))
	require.NoError(t, r.Register(Record{PID: pid, Assistant: "codex", CWD: dir, StartedAt: 2, UpdatedAt: 2}))

	found, err := r.FindByPID(pid, dir)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "codex", found.Assistant)
	assert.Equal(t, int64(2), found.StartedAt)
}

func TestUpdateStatusMarksExited(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, nil)
	require.NoError(t, err)
	defer r.Close()

	pid := os.Getpid()
	require.NoError(t, r.Register(Record{PID: pid, Assistant: "claude", CWD: dir, StartedAt: 1, UpdatedAt: 1}))

	code := 0
	require.NoError(t, r.UpdateStatus(pid, StatusExited, "normal", &code, 2))

	found, err := r.FindActiveIPC(dir)
	require.NoError(t, err)
	assert.Nil(t, found)

	byPID, err := r.FindByPID(pid, dir)
	require.NoError(t, err)
	require.NotNil(t, byPID)
	assert.Equal(t, StatusExited, byPID.Status)
	assert.Equal(t, "normal", byPID.ExitReason)
	require.NotNil(t, byPID.ExitCode)
	assert.Equal(t, 0, *byPID.ExitCode)
}

// TestStaleCleanupOnOpen exercises spec.md's scenario S5: a row left behind
// by a pid that is no longer alive gets marked exited/stale-cleanup on the
// next Open, and a second Open (idempotence, property 3) changes nothing.
func TestStaleCleanupOnOpen(t *testing.T) {
	dir := t.TempDir()

	deadPID := spawnAndReap(t)

	r, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, r.Register(Record{PID: deadPID, Assistant: "claude", CWD: dir, StartedAt: 1, UpdatedAt: 1}))
	require.NoError(t, r.Close())

	r2, err := Open(dir, nil)
	require.NoError(t, err)
	defer r2.Close()

	found, err := r2.FindActiveIPC(dir)
	require.NoError(t, err)
	assert.Nil(t, found, "stale row must not be reported active")

	byPID, err := r2.FindByPID(deadPID, dir)
	require.NoError(t, err)
	require.NotNil(t, byPID)
	assert.Equal(t, StatusExited, byPID.Status)
	assert.Equal(t, "stale-cleanup", byPID.ExitReason)

	// idempotence: reopening again must not error or alter the row further.
	r3, err := Open(dir, nil)
	require.NoError(t, err)
	defer r3.Close()
	again, err := r3.FindByPID(deadPID, dir)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, StatusExited, again.Status)
	assert.Equal(t, "stale-cleanup", again.ExitReason)
}

// spawnAndReap returns a pid guaranteed to be dead: a short-lived child
// process, started and waited on so the OS will not reuse it as "alive"
// for the duration of the test.
func spawnAndReap(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}
