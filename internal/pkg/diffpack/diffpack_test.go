package diffpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// makeFileDiffRef writes a single-hunk diff of approximately
// contentSize bytes to a temp file and returns its FileDiffRef.
func makeFileDiffRef(t *testing.T, dir, path string, contentSize int) domain.FileDiffRef {
	t.Helper()

	header := fmt.Sprintf("diff --git a/%s b/%s\nindex abc1234..def5678 100644\n--- a/%s\n+++ b/%s\n", path, path, path, path)
	hunkHeader := "@@ -1,3 +1,4 @@\n"
	bodySize := contentSize - len(header) - len(hunkHeader)
	if bodySize < 1 {
		bodySize = 1
	}
	body := strings.Repeat("+", bodySize) + "\n"
	content := header + hunkHeader + body

	fileName := strings.ReplaceAll(path, "/", "_")
	diskPath := filepath.Join(dir, fileName)
	if err := os.WriteFile(diskPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp diff file: %v", err)
	}

	return domain.FileDiffRef{Path: path, DiffFile: diskPath, ByteLen: len(content)}
}

func TestPackFileDiffs_SingleSmallFile(t *testing.T) {
	dir := t.TempDir()
	ref := makeFileDiffRef(t, dir, "main.go", 50)

	plan, err := PackFileDiffs(strings.Repeat("a", 40), []domain.FileDiffRef{ref}, 10000)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}
	if len(plan.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(plan.Chunks))
	}
	if len(plan.Chunks[0].FilePaths) != 1 || plan.Chunks[0].FilePaths[0] != "main.go" {
		t.Errorf("unexpected chunk file paths: %v", plan.Chunks[0].FilePaths)
	}
}

func TestPackFileDiffs_SplitsAcrossChunksWhenOversized(t *testing.T) {
	dir := t.TempDir()
	// Each file individually fits capacity but two together don't.
	a := makeFileDiffRef(t, dir, "a.go", 300)
	b := makeFileDiffRef(t, dir, "b.go", 300)

	// 300 bytes * 1.2 / 3.5 ~= 103 tokens each; set capacity so effective
	// capacity (70%) fits one but not two.
	plan, err := PackFileDiffs(strings.Repeat("a", 40), []domain.FileDiffRef{a, b}, 150)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}
	if len(plan.Chunks) < 2 {
		t.Fatalf("expected at least 2 chunks for oversized combination, got %d", len(plan.Chunks))
	}
}

func TestPackFileDiffs_OversizedUnsplittableFile_Placeholder(t *testing.T) {
	dir := t.TempDir()
	// No hunk markers at all: binary-style content that can't be split.
	content := "diff --git a/bin.dat b/bin.dat\nBinary files differ\n" + strings.Repeat("X", 5000)
	diskPath := filepath.Join(dir, "bin.dat")
	if err := os.WriteFile(diskPath, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	ref := domain.FileDiffRef{Path: "bin.dat", DiffFile: diskPath, ByteLen: len(content)}

	plan, err := PackFileDiffs(strings.Repeat("a", 40), []domain.FileDiffRef{ref}, 10)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}
	if len(plan.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(plan.Chunks))
	}
	override := plan.Chunks[0].DiffOverrides[0]
	if override == nil || !strings.Contains(*override, "exceeds capacity") {
		t.Errorf("expected placeholder override, got %v", override)
	}
}

func TestPackFileDiffs_Empty(t *testing.T) {
	plan, err := PackFileDiffs(strings.Repeat("a", 40), nil, 10000)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}
	if len(plan.Chunks) != 0 {
		t.Errorf("expected 0 chunks for empty input, got %d", len(plan.Chunks))
	}
}

func TestSplitByFile(t *testing.T) {
	diff := "diff --git a/a.go b/a.go\n@@ -1 +1 @@\n-old\n+new\n" +
		"diff --git a/b.go b/b.go\n@@ -1 +1 @@\n-old2\n+new2\n"

	files := SplitByFile(diff)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "a.go" || files[1].Path != "b.go" {
		t.Errorf("unexpected paths: %q, %q", files[0].Path, files[1].Path)
	}
}

func TestSplitFileByHunk_NoHunks(t *testing.T) {
	fd := FileDiff{Path: "bin.dat", Content: "diff --git a/bin.dat b/bin.dat\nBinary files differ\n"}
	hunks := SplitFileByHunk(fd)
	if len(hunks) != 0 {
		t.Errorf("expected 0 hunks for binary diff, got %d", len(hunks))
	}
}

func TestSplitFileByHunk_MultipleHunks(t *testing.T) {
	header := "diff --git a/a.go b/a.go\nindex 1..2 100644\n--- a/a.go\n+++ b/a.go\n"
	content := header + "@@ -1,3 +1,4 @@\n+one\n@@ -10,3 +11,4 @@\n+two\n"
	fd := FileDiff{Path: "a.go", Content: content, ByteLen: len(content)}

	hunks := SplitFileByHunk(fd)
	if len(hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(hunks))
	}
	for _, h := range hunks {
		if h.FileHeader != header {
			t.Errorf("FileHeader = %q, want %q", h.FileHeader, header)
		}
	}
	if !strings.Contains(hunks[0].Content, "+one") || !strings.Contains(hunks[1].Content, "+two") {
		t.Errorf("hunk contents misaligned: %+v", hunks)
	}
}

// TestPackingTotality checks the §8 invariant: a non-empty input
// always yields at least one chunk, and parallel lists stay aligned.
func TestPackingTotality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(11)

	properties := gopter.NewProperties(parameters)

	properties.Property("non-empty input yields at least one chunk with aligned parallel lists", prop.ForAll(
		func(sizes []int) bool {
			if len(sizes) == 0 {
				return true
			}
			dir := t.TempDir()
			refs := make([]domain.FileDiffRef, len(sizes))
			for i, sz := range sizes {
				size := sz%2000 + 50
				refs[i] = makeFileDiffRef(t, dir, fmt.Sprintf("f%d.go", i), size)
			}

			plan, err := PackFileDiffs(strings.Repeat("a", 40), refs, 5000)
			if err != nil {
				return false
			}
			if len(plan.Chunks) == 0 {
				return false
			}
			for _, chunk := range plan.Chunks {
				if len(chunk.FilePaths) != len(chunk.DiffOverrides) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(1, 10000)),
	))

	properties.TestingRun(t)
}

// TestPackerDeterminism checks the §8 invariant: equal inputs produce
// chunks with equal file-path multisets and equal total tokens.
func TestPackerDeterminism(t *testing.T) {
	dir := t.TempDir()
	refs := []domain.FileDiffRef{
		makeFileDiffRef(t, dir, "a.go", 400),
		makeFileDiffRef(t, dir, "b.go", 900),
		makeFileDiffRef(t, dir, "c.go", 150),
	}

	plan1, err := PackFileDiffs(strings.Repeat("a", 40), refs, 1000)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}
	plan2, err := PackFileDiffs(strings.Repeat("a", 40), refs, 1000)
	if err != nil {
		t.Fatalf("PackFileDiffs() error = %v", err)
	}

	total1, total2 := 0, 0
	for _, c := range plan1.Chunks {
		total1 += c.EstimatedTokens
	}
	for _, c := range plan2.Chunks {
		total2 += c.EstimatedTokens
	}
	if total1 != total2 {
		t.Errorf("non-deterministic total tokens: %d vs %d", total1, total2)
	}
	if len(plan1.Chunks) != len(plan2.Chunks) {
		t.Errorf("non-deterministic chunk count: %d vs %d", len(plan1.Chunks), len(plan2.Chunks))
	}
}
