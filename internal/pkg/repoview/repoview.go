// Package repoview builds a domain.RepositoryView by shelling out to
// Git for a commit range. It is the dispatch core's sole caller-side
// collaborator for Git introspection — the core itself never invokes
// Git and only ever consumes the RepositoryView this package produces.
package repoview

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gitsage/gitsage/internal/pkg/diffpack"
	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
)

// GitCommandTimeout bounds every git subprocess invocation.
const GitCommandTimeout = 30 * time.Second

const recordSep = "\x1e"
const fieldSep = "\x1f"

// Builder constructs RepositoryViews for a working copy.
type Builder struct {
	workDir string
	tempDir string
}

// NewBuilder creates a Builder rooted at workDir (empty uses the
// current directory).
func NewBuilder(workDir string) *Builder {
	return &Builder{workDir: workDir}
}

// Build enumerates revisionRange (any `git log`-accepted range, e.g.
// "main..HEAD" or a single "HEAD~3..HEAD") and materializes each
// commit's per-file diffs to flat files on disk, matching the
// FileDiffRef contract the dispatch core reads verbatim. The returned
// cleanup func removes the temporary directory holding those files;
// callers must invoke it once the RepositoryView is no longer needed.
func (b *Builder) Build(ctx context.Context, revisionRange, branchLabel, prTemplate string) (domain.RepositoryView, func(), error) {
	tempDir, err := os.MkdirTemp("", "gitsage-repoview-*")
	if err != nil {
		return domain.RepositoryView{}, nil, fmt.Errorf("failed to create temp dir for diff files: %w", err)
	}
	b.tempDir = tempDir
	cleanup := func() { os.RemoveAll(tempDir) }

	hashes, err := b.commitLog(ctx, revisionRange)
	if err != nil {
		cleanup()
		return domain.RepositoryView{}, nil, err
	}

	commits := make([]domain.CommitInfo, 0, len(hashes))
	for _, h := range hashes {
		commit, err := b.buildCommit(ctx, h)
		if err != nil {
			cleanup()
			return domain.RepositoryView{}, nil, err
		}
		commits = append(commits, commit)
	}

	return domain.RepositoryView{
		Commits:     commits,
		BranchLabel: branchLabel,
		PrTemplate:  prTemplate,
	}, cleanup, nil
}

type commitHeader struct {
	hash      string
	author    string
	timestamp time.Time
	message   string
}

// commitLog runs `git log` over the range and returns commits oldest-first.
func (b *Builder) commitLog(ctx context.Context, revisionRange string) ([]commitHeader, error) {
	ctx, cancel := context.WithTimeout(ctx, GitCommandTimeout)
	defer cancel()

	format := recordSep + "%H" + fieldSep + "%an" + fieldSep + "%aI" + fieldSep + "%B"
	cmd := exec.CommandContext(ctx, "git", "log", "--reverse", "--format="+format, revisionRange)
	cmd.Dir = b.workDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError(ctx.Err())
		}
		return nil, fmt.Errorf("git log failed: %w (%s)", err, stderr.String())
	}

	records := strings.Split(string(out), recordSep)
	headers := make([]commitHeader, 0, len(records))
	for _, record := range records {
		if strings.TrimSpace(record) == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, parts[2])
		headers = append(headers, commitHeader{
			hash:      parts[0],
			author:    parts[1],
			timestamp: ts,
			message:   strings.TrimRight(parts[3], "\n"),
		})
	}
	return headers, nil
}

// buildCommit runs `git show` for one commit, splits its diff by file,
// writes each file's diff verbatim to its own flat file, and derives
// the commit's FileChanges summary and diff-stat text.
func (b *Builder) buildCommit(ctx context.Context, h commitHeader) (domain.CommitInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, GitCommandTimeout)
	defer cancel()

	patchCmd := exec.CommandContext(ctx, "git", "show", "--format=", "--no-color", h.hash)
	patchCmd.Dir = b.workDir
	patch, err := patchCmd.Output()
	if err != nil {
		return domain.CommitInfo{}, fmt.Errorf("git show %s failed: %w", h.hash, err)
	}

	statCmd := exec.CommandContext(ctx, "git", "show", "--format=", "--stat", h.hash)
	statCmd.Dir = b.workDir
	statOut, err := statCmd.Output()
	if err != nil {
		return domain.CommitInfo{}, fmt.Errorf("git show --stat %s failed: %w", h.hash, err)
	}

	commitDir := filepath.Join(b.tempDir, h.hash)
	if err := os.MkdirAll(commitDir, 0o755); err != nil {
		return domain.CommitInfo{}, fmt.Errorf("failed to create diff dir for %s: %w", h.hash, err)
	}

	whole := string(patch)
	wholeDiffFile := filepath.Join(commitDir, "commit.diff")
	if err := os.WriteFile(wholeDiffFile, patch, 0o644); err != nil {
		return domain.CommitInfo{}, apperrors.NewDiffFileReadError(wholeDiffFile, err)
	}

	fileDiffs := diffpack.SplitByFile(whole)
	refs := make([]domain.FileDiffRef, 0, len(fileDiffs))
	for i, fd := range fileDiffs {
		diffPath := filepath.Join(commitDir, fmt.Sprintf("%04d.diff", i))
		if err := os.WriteFile(diffPath, []byte(fd.Content), 0o644); err != nil {
			return domain.CommitInfo{}, apperrors.NewDiffFileReadError(diffPath, err)
		}
		refs = append(refs, domain.FileDiffRef{Path: fd.Path, DiffFile: diffPath, ByteLen: fd.ByteLen})
	}

	changeTypes := classifyFiles(whole)
	changes := domain.FileChanges{Files: make([]domain.FileChange, 0, len(changeTypes))}
	for _, ct := range changeTypes {
		changes.Files = append(changes.Files, domain.FileChange{Path: ct.path, Status: ct.status})
		switch ct.status {
		case domain.FileStatusAdded:
			changes.Added++
		case domain.FileStatusModified:
			changes.Modified++
		case domain.FileStatusDeleted:
			changes.Deleted++
		case domain.FileStatusRenamed:
			changes.Renamed++
		}
	}
	return domain.CommitInfo{
		Hash:            h.hash,
		Author:          h.author,
		Timestamp:       h.timestamp,
		OriginalMessage: h.message,
		FileChanges:     changes,
		DiffSummary:     strings.TrimSpace(string(statOut)),
		DiffFile:        wholeDiffFile,
		FileDiffs:       refs,
	}, nil
}

type fileClassification struct {
	path   string
	status domain.FileStatus
}

var diffGitLine = regexp.MustCompile(`^diff --git a/(.*) b/(.*)$`)

// classifyFiles scans a full commit patch for per-file change headers.
func classifyFiles(patch string) []fileClassification {
	var out []fileClassification
	scanner := bufio.NewScanner(strings.NewReader(patch))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var current *fileClassification
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := diffGitLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &fileClassification{path: m[2], status: domain.FileStatusModified}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "new file mode"):
			current.status = domain.FileStatusAdded
		case strings.HasPrefix(line, "deleted file mode"):
			current.status = domain.FileStatusDeleted
		case strings.HasPrefix(line, "rename to "):
			current.status = domain.FileStatusRenamed
			current.path = strings.TrimPrefix(line, "rename to ")
		}
	}
	flush()
	return out
}

// CurrentBranch returns the repository's current branch name, used as
// the RepositoryView's BranchLabel.
func CurrentBranch(ctx context.Context, workDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, GitCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = workDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to determine current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
