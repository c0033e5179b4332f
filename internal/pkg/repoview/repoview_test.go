package repoview

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitsage/gitsage/internal/pkg/domain"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "gitsage-repoview-test-*")
	require.NoError(t, err)
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
	return string(out)
}

func writeAndCommit(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", message)
	return runGit(t, dir, "rev-parse", "HEAD")
}

func TestBuild_TwoCommitsProducesOrderedCommitInfo(t *testing.T) {
	dir := setupTestRepo(t)

	writeAndCommit(t, dir, "a.txt", "hello\n", "add a")
	writeAndCommit(t, dir, "b.txt", "world\n", "add b")

	builder := NewBuilder(dir)
	view, cleanup, err := builder.Build(context.Background(), "HEAD~2..HEAD", "main", "")
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, view.Commits, 2)
	require.Equal(t, "add a\n", view.Commits[0].OriginalMessage)
	require.Equal(t, "add b\n", view.Commits[1].OriginalMessage)
	require.Equal(t, "main", view.BranchLabel)

	require.Len(t, view.Commits[0].FileDiffs, 1)
	ref := view.Commits[0].FileDiffs[0]
	require.Equal(t, "a.txt", ref.Path)

	content, err := os.ReadFile(ref.DiffFile)
	require.NoError(t, err)
	require.Equal(t, ref.ByteLen, len(content))
	require.Contains(t, string(content), "a.txt")
}

func TestBuild_DetectsAddedModifiedDeleted(t *testing.T) {
	dir := setupTestRepo(t)

	writeAndCommit(t, dir, "keep.txt", "v1\n", "seed")
	writeAndCommit(t, dir, "keep.txt", "v2\n", "modify keep")

	os.Remove(filepath.Join(dir, "keep.txt"))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-q", "-m", "delete keep")

	builder := NewBuilder(dir)
	view, cleanup, err := builder.Build(context.Background(), "HEAD~2..HEAD", "main", "")
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, view.Commits, 2)
	require.Equal(t, 1, view.Commits[0].FileChanges.Modified)
	require.Equal(t, 1, view.Commits[1].FileChanges.Deleted)
}

func TestClassifyFiles_NewFile(t *testing.T) {
	patch := "diff --git a/new.txt b/new.txt\n" +
		"new file mode 100644\n" +
		"index 0000000..e69de29\n"
	got := classifyFiles(patch)
	require.Len(t, got, 1)
	require.Equal(t, "new.txt", got[0].path)
	require.Equal(t, domain.FileStatusAdded, got[0].status)
}

func TestClassifyFiles_Rename(t *testing.T) {
	patch := "diff --git a/old.txt b/new.txt\n" +
		"similarity index 100%\n" +
		"rename from old.txt\n" +
		"rename to new.txt\n"
	got := classifyFiles(patch)
	require.Len(t, got, 1)
	require.Equal(t, "new.txt", got[0].path)
	require.Equal(t, domain.FileStatusRenamed, got[0].status)
}
