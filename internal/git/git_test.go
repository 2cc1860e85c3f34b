package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a git repo in dir with a user config so commits work on CI.
func initTestRepo(t *testing.T, dir string) {
	t.Helper()
	cmds := [][]string{
		{"git", "-C", dir, "init", "-b", "main"},
		{"git", "-C", dir, "config", "user.email", "test@test.com"},
		{"git", "-C", dir, "config", "user.name", "Test"},
	}
	for _, args := range cmds {
		require.NoError(t, exec.Command(args[0], args[1:]...).Run())
	}
}

func commitAll(t *testing.T, dir, msg string) {
	t.Helper()
	require.NoError(t, exec.Command("git", "-C", dir, "add", ".").Run())
	require.NoError(t, exec.Command("git", "-C", dir, "commit", "-m", msg).Run())
}

func TestParseNumstat(t *testing.T) {
	input := "10\t2\tinternal/auth/login.go\n0\t5\tREADME.md\n-\t-\tassets/logo.png\n"
	stats := ParseNumstat(input)
	require.Len(t, stats, 3)

	assert.Equal(t, "internal/auth/login.go", stats[0].Path)
	assert.Equal(t, 10, stats[0].Insertions)
	assert.Equal(t, 2, stats[0].Deletions)

	assert.Equal(t, "README.md", stats[1].Path)
	assert.Equal(t, 0, stats[1].Insertions)
	assert.Equal(t, 5, stats[1].Deletions)

	// Binary files report "-" counts
	assert.Equal(t, 0, stats[2].Insertions)
	assert.Equal(t, 0, stats[2].Deletions)
}

func TestParseNumstat_Empty(t *testing.T) {
	assert.Nil(t, ParseNumstat(""))
}

func TestRealClient_ChangedFilesAndFileDiff(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("hello\n"), 0644))
	commitAll(t, dir, "initial")

	require.NoError(t, exec.Command("git", "-C", dir, "checkout", "-b", "feature").Run())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("hello world\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file2.txt"), []byte("new file\n"), 0644))
	commitAll(t, dir, "feature changes")

	c := NewClient()

	stats, err := c.ChangedFiles(dir, "main", "feature")
	require.NoError(t, err)
	require.Len(t, stats, 2)

	paths := []string{stats[0].Path, stats[1].Path}
	assert.ElementsMatch(t, []string{"file1.txt", "file2.txt"}, paths)

	diff, err := c.FileDiff(dir, "main", "feature", "file1.txt")
	require.NoError(t, err)
	assert.Contains(t, diff, "hello world")
	assert.NotContains(t, diff, "file2.txt")
}

func TestRealClient_ChangedFiles_BadRef(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)
	require.NoError(t, exec.Command("git", "-C", dir, "commit", "--allow-empty", "-m", "init").Run())

	c := NewClient()
	_, err := c.ChangedFiles(dir, "no-such-ref", "main")
	assert.Error(t, err)
}

func TestRealClient_CurrentBranch(t *testing.T) {
	dir := t.TempDir()
	initTestRepo(t, dir)
	require.NoError(t, exec.Command("git", "-C", dir, "commit", "--allow-empty", "-m", "init").Run())

	c := NewClient()
	branch, err := c.CurrentBranch(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}
