// Package diffpack bin-packs a single commit's per-file diffs into
// chunks that fit a token budget, splitting oversized files into
// per-hunk items and falling back to a placeholder when even a single
// hunk cannot fit.
package diffpack

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/gitsage/gitsage/internal/pkg/tokenbudget"
)

// ChunkCapacityFactor is the fraction of the supplied capacity actually
// usable, reserving headroom for YAML serialization expansion. More
// aggressive than the Batch Planner's headroom because observed
// variance is higher at this layer.
const ChunkCapacityFactor = 0.70

// packableItem is a unit of diff content to be packed into a chunk.
type packableItem struct {
	path            string
	estimatedTokens int
	diffOverride    *string
}

// PackFileDiffs packs one commit's file diffs into chunks fitting
// capacityTokens. Always returns at least one chunk when fileDiffs is
// non-empty.
func PackFileDiffs(commitHash string, fileDiffs []domain.FileDiffRef, capacityTokens int) (domain.CommitDiffPlan, error) {
	effectiveCapacity := int(float64(capacityTokens) * ChunkCapacityFactor)

	items, err := buildPackableItems(fileDiffs, effectiveCapacity)
	if err != nil {
		return domain.CommitDiffPlan{}, err
	}

	chunks := firstFitDecreasing(items, effectiveCapacity)

	logShort := commitHash
	if len(logShort) > 8 {
		logShort = logShort[:8]
	}
	logging.L().Debug().
		Str("commit", logShort).
		Int("capacity_tokens", capacityTokens).
		Int("effective_capacity", effectiveCapacity).
		Int("num_items", len(items)).
		Int("num_chunks", len(chunks)).
		Msg("pack_file_diffs: packing complete")

	for i, chunk := range chunks {
		oversized := chunk.EstimatedTokens > effectiveCapacity
		logging.L().Debug().
			Str("commit", logShort).
			Int("chunk_index", i).
			Int("estimated_tokens", chunk.EstimatedTokens).
			Int("effective_capacity", effectiveCapacity).
			Bool("oversized", oversized).
			Int("num_files", len(chunk.FilePaths)).
			Strs("files", chunk.FilePaths).
			Msg("pack_file_diffs: chunk details")
	}

	// Chunks exceeding capacity are allowed through; they surface as
	// prompt-validation errors with diagnostic context downstream.

	return domain.CommitDiffPlan{CommitHash: commitHash, Chunks: chunks}, nil
}

func buildPackableItems(fileDiffs []domain.FileDiffRef, capacity int) ([]packableItem, error) {
	var items []packableItem

	for _, ref := range fileDiffs {
		fileTokens := tokenbudget.EstimateTokensFromCharCount(ref.ByteLen)

		if fileTokens <= capacity {
			items = append(items, packableItem{path: ref.Path, estimatedTokens: fileTokens})
			continue
		}

		hunkItems, err := splitOversizedFile(ref, capacity)
		if err != nil {
			return nil, err
		}
		items = append(items, hunkItems...)
	}

	return items, nil
}

// splitOversizedFile reads a file diff from disk, splits it into
// hunks, and returns packable items for each hunk — or a single
// placeholder item when the file has no hunk markers (binary, mode-only)
// or a single hunk still exceeds capacity.
func splitOversizedFile(ref domain.FileDiffRef, capacity int) ([]packableItem, error) {
	content, err := os.ReadFile(ref.DiffFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read diff file for hunk splitting %q: %w", ref.DiffFile, err)
	}

	fileDiff := FileDiff{Path: ref.Path, Content: string(content), ByteLen: len(content)}
	hunks := SplitFileByHunk(fileDiff)

	if len(hunks) == 0 {
		fileTokens := tokenbudget.EstimateTokensFromCharCount(ref.ByteLen)
		if fileTokens > capacity {
			logging.L().Debug().
				Str("path", ref.Path).
				Int("file_tokens", fileTokens).
				Int("capacity", capacity).
				Int("byte_len", ref.ByteLen).
				Msg("replacing oversized unsplittable file with placeholder")

			placeholder := fmt.Sprintf(
				"diff --git a/%s b/%s\n[File content omitted: %d bytes, estimated %d tokens - exceeds capacity]\n[This file was too large to include in the analysis]\n",
				ref.Path, ref.Path, ref.ByteLen, fileTokens)
			placeholderTokens := tokenbudget.EstimateTokensFromCharCount(len(placeholder))
			return []packableItem{{path: ref.Path, estimatedTokens: placeholderTokens, diffOverride: &placeholder}}, nil
		}
		return []packableItem{{path: ref.Path, estimatedTokens: fileTokens}}, nil
	}

	result := make([]packableItem, 0, len(hunks))
	for _, hunk := range hunks {
		hunkTokens := tokenbudget.EstimateTokensFromCharCount(hunk.ByteLen)
		if hunkTokens > capacity {
			logging.L().Debug().
				Str("path", ref.Path).
				Int("hunk_tokens", hunkTokens).
				Int("capacity", capacity).
				Int("byte_len", hunk.ByteLen).
				Msg("replacing oversized hunk with placeholder")

			placeholder := fmt.Sprintf(
				"%s[Hunk content omitted: %d bytes, estimated %d tokens - exceeds capacity]\n",
				hunk.FileHeader, hunk.ByteLen, hunkTokens)
			placeholderTokens := tokenbudget.EstimateTokensFromCharCount(len(placeholder))
			result = append(result, packableItem{path: ref.Path, estimatedTokens: placeholderTokens, diffOverride: &placeholder})
			continue
		}

		override := hunk.FileHeader + hunk.Content
		result = append(result, packableItem{path: ref.Path, estimatedTokens: hunkTokens, diffOverride: &override})
	}

	return result, nil
}

// firstFitDecreasing sorts items largest-first, then places each into
// the first open chunk with sufficient remaining capacity, opening a
// new chunk when none fits.
func firstFitDecreasing(items []packableItem, capacity int) []domain.DiffChunk {
	indexed := make([]int, len(items))
	for i := range indexed {
		indexed[i] = i
	}
	// Stable sort descending by token estimate, matching the packer's
	// input-order tie-break for equal-sized items.
	sort.SliceStable(indexed, func(i, j int) bool {
		return items[indexed[i]].estimatedTokens > items[indexed[j]].estimatedTokens
	})

	var chunks []domain.DiffChunk

	for _, itemIdx := range indexed {
		item := items[itemIdx]
		placed := false
		for i := range chunks {
			if chunks[i].EstimatedTokens+item.estimatedTokens <= capacity {
				chunks[i].FilePaths = append(chunks[i].FilePaths, item.path)
				chunks[i].DiffOverrides = append(chunks[i].DiffOverrides, item.diffOverride)
				chunks[i].EstimatedTokens += item.estimatedTokens
				placed = true
				break
			}
		}
		if !placed {
			chunks = append(chunks, domain.DiffChunk{
				FilePaths:       []string{item.path},
				DiffOverrides:   []*string{item.diffOverride},
				EstimatedTokens: item.estimatedTokens,
			})
		}
	}

	return chunks
}

// FileDiff is a per-file slice of a unified diff.
type FileDiff struct {
	Path    string
	Content string
	ByteLen int
}

// HunkDiff is a single hunk within one file's diff, self-contained via
// its FileHeader.
type HunkDiff struct {
	FileHeader string
	Content    string
	ByteLen    int
}

const (
	fileDiffMarker = "diff --git a/"
	hunkMarker     = "@@ "
)

// SplitByFile splits a flat unified diff at "diff --git a/" boundaries.
func SplitByFile(diff string) []FileDiff {
	var positions []int

	if strings.HasPrefix(diff, fileDiffMarker) {
		positions = append(positions, 0)
	}
	search := "\n" + fileDiffMarker
	start := 0
	for {
		idx := strings.Index(diff[start:], search)
		if idx == -1 {
			break
		}
		positions = append(positions, start+idx+1)
		start = start + idx + 1
	}

	result := make([]FileDiff, 0, len(positions))
	for i, pos := range positions {
		end := len(diff)
		if i+1 < len(positions) {
			end = positions[i+1]
		}
		content := diff[pos:end]
		firstLine := content
		if nl := strings.IndexByte(content, '\n'); nl != -1 {
			firstLine = content[:nl]
		}
		result = append(result, FileDiff{
			Path:    extractPathFromDiffHeader(firstLine),
			Content: content,
			ByteLen: len(content),
		})
	}

	return result
}

// SplitFileByHunk splits a FileDiff into per-hunk segments, each
// carrying the file header so it is self-contained. A file with no
// hunk markers (binary, mode-only changes) returns an empty slice.
func SplitFileByHunk(fileDiff FileDiff) []HunkDiff {
	content := fileDiff.Content
	var positions []int

	if strings.HasPrefix(content, hunkMarker) {
		positions = append(positions, 0)
	}
	search := "\n" + hunkMarker
	start := 0
	for {
		idx := strings.Index(content[start:], search)
		if idx == -1 {
			break
		}
		positions = append(positions, start+idx+1)
		start = start + idx + 1
	}

	if len(positions) == 0 {
		return nil
	}

	fileHeader := content[:positions[0]]

	result := make([]HunkDiff, 0, len(positions))
	for i, pos := range positions {
		end := len(content)
		if i+1 < len(positions) {
			end = positions[i+1]
		}
		hunkContent := content[pos:end]
		result = append(result, HunkDiff{
			FileHeader: fileHeader,
			Content:    hunkContent,
			ByteLen:    len(fileHeader) + len(hunkContent),
		})
	}

	return result
}

// extractPathFromDiffHeader extracts the path from the "b/" side of a
// "diff --git a/... b/..." header line.
func extractPathFromDiffHeader(headerLine string) string {
	if idx := strings.LastIndex(headerLine, " b/"); idx != -1 {
		return headerLine[idx+3:]
	}
	return strings.TrimPrefix(headerLine, fileDiffMarker)
}
