// Package prompts builds the three operation-specific dispatch.Prompts[T]
// values the Request Orchestrator needs: amendment generation, commit
// checking, and PR content drafting. Each builder supplies the system
// prompt, the full-view/single-commit/chunk user-prompt templates, the
// response parser, and the chunk-level reducer — the orchestrator
// itself stays generic over all three (spec §4.4).
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/gitsage/gitsage/internal/pkg/dispatch"
	"github.com/gitsage/gitsage/internal/pkg/domain"
	"github.com/gitsage/gitsage/internal/pkg/reduce"
	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

func render(tmplName, tmplText string, data interface{}) string {
	tmpl := template.Must(template.New(tmplName).Parse(tmplText))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		panic(fmt.Sprintf("prompts: template %s failed to execute: %v", tmplName, err))
	}
	return buf.String()
}

// loadChunkDiff concatenates a chunk's file diffs, using the override
// text verbatim when present and reading from disk otherwise (spec
// §4.4 step 3).
func loadChunkDiff(commit domain.CommitInfo, chunk domain.DiffChunk) string {
	byPath := make(map[string]string, len(commit.FileDiffs))
	for _, ref := range commit.FileDiffs {
		byPath[ref.Path] = ref.DiffFile
	}

	var sb strings.Builder
	for i, path := range chunk.FilePaths {
		if i < len(chunk.DiffOverrides) && chunk.DiffOverrides[i] != nil {
			sb.WriteString(*chunk.DiffOverrides[i])
			continue
		}
		if diffFile, ok := byPath[path]; ok {
			content, err := os.ReadFile(diffFile)
			if err == nil {
				sb.Write(content)
				continue
			}
		}
		fmt.Fprintf(&sb, "diff --git a/%s b/%s\n[diff content unavailable]\n", path, path)
	}
	return sb.String()
}

func wholeCommitDiff(commit domain.CommitInfo) string {
	content, err := os.ReadFile(commit.DiffFile)
	if err != nil {
		return fmt.Sprintf("[diff unavailable: %v]", err)
	}
	return string(content)
}

type commitTmplData struct {
	Hash        string
	Author      string
	Message     string
	DiffSummary string
	Diff        string
	Guidelines  string
	BranchLabel string
}

func newCommitTmplData(view domain.RepositoryView, idx int, diff, guidelines string) commitTmplData {
	commit := view.Commits[idx]
	return commitTmplData{
		Hash:        commit.Hash,
		Author:      commit.Author,
		Message:     commit.OriginalMessage,
		DiffSummary: commit.DiffSummary,
		Diff:        diff,
		Guidelines:  guidelines,
		BranchLabel: view.BranchLabel,
	}
}

type repoTmplData struct {
	BranchLabel string
	PrTemplate  string
	Guidelines  string
	Commits     []commitTmplData
}

func newRepoTmplData(view domain.RepositoryView, guidelines string) repoTmplData {
	commits := make([]commitTmplData, len(view.Commits))
	for i := range view.Commits {
		commits[i] = newCommitTmplData(view, i, wholeCommitDiff(view.Commits[i]), guidelines)
	}
	return repoTmplData{
		BranchLabel: view.BranchLabel,
		PrTemplate:  view.PrTemplate,
		Guidelines:  guidelines,
		Commits:     commits,
	}
}

// subView narrows view down to the commits named by indices, for a
// Batch Planner group's request (spec §4.3): same branch label and PR
// template, a restricted commit list.
func subView(view domain.RepositoryView, indices []int) domain.RepositoryView {
	commits := make([]domain.CommitInfo, len(indices))
	for i, idx := range indices {
		commits[i] = view.Commits[idx]
	}
	return domain.RepositoryView{
		Commits:     commits,
		BranchLabel: view.BranchLabel,
		PrTemplate:  view.PrTemplate,
	}
}

// --- Amendments -------------------------------------------------------

const amendmentSystemPrompt = `You are an expert at rewriting Git commit messages.

Format Requirements:
- Use Conventional Commits format: <type>(<scope>): <subject>
- Subject: imperative mood, no period, max 72 characters
- Body: optional, explain what and why, not how

For every commit you are given, output one amendment with its full
40-character commit hash and a replacement message. Respond only with
YAML of the form:

amendments:
  - commit: <40-hex>
    message: |
      <type>(<scope>): <subject>

      <optional body>
    summary: <one-line summary of what changed, optional>

No prose outside the YAML document.`

const amendmentFullViewTmpl = `Rewrite the commit message for every commit below.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
{{range .Commits}}
---
Commit: {{.Hash}}
Author: {{.Author}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff:
{{.Diff}}
{{end}}`

const amendmentSingleTmpl = `Rewrite the commit message for this commit.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
Commit: {{.Hash}}
Author: {{.Author}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff:
{{.Diff}}`

const amendmentChunkTmpl = `Rewrite the commit message for this commit. You are shown only a
subset of its changed files; base your message on what you can see,
the diff stat, and the original message below.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
Commit: {{.Hash}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff (partial):
{{.Diff}}`

const amendmentMergeSystemPrompt = `You synthesize a single commit message from several partial drafts,
each written from a different slice of the same commit's diff.
Produce one coherent amendment covering the whole commit. Respond only
with the same amendments YAML, containing exactly one entry.`

// AmendmentPrompts builds the Prompts[Amendment] value for the
// "generate amendments" operation.
func AmendmentPrompts(guidelines string) dispatch.Prompts[wireformat.Amendment] {
	return dispatch.Prompts[wireformat.Amendment]{
		SystemPrompt: amendmentSystemPrompt,
		FullView: func(view domain.RepositoryView) string {
			if len(view.Commits) == 0 {
				return ""
			}
			return render("amendment-full", amendmentFullViewTmpl, newRepoTmplData(view, guidelines))
		},
		SingleCommit: func(view domain.RepositoryView, idx int) string {
			data := newCommitTmplData(view, idx, wholeCommitDiff(view.Commits[idx]), guidelines)
			return render("amendment-single", amendmentSingleTmpl, data)
		},
		Chunk: func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string {
			commit := view.Commits[idx]
			data := newCommitTmplData(view, idx, loadChunkDiff(commit, chunk), guidelines)
			return render("amendment-chunk", amendmentChunkTmpl, data)
		},
		Batch: func(view domain.RepositoryView, indices []int) string {
			return render("amendment-full", amendmentFullViewTmpl, newRepoTmplData(subView(view, indices), guidelines))
		},
		CommitKey: func(item wireformat.Amendment) string { return item.Commit },
		Parse: func(raw string) ([]wireformat.Amendment, error) {
			file, err := wireformat.ParseAmendments(raw)
			if err != nil {
				return nil, err
			}
			return file.Amendments, nil
		},
		NeedsAIMerge: func(partials []wireformat.Amendment) bool { return len(partials) > 1 },
		AIMergePrompt: func(commit domain.CommitInfo, partials []wireformat.Amendment) (string, string) {
			return amendmentMergeSystemPrompt, buildPartialsMergeUser(commit, amendmentPartialsText(partials))
		},
	}
}

func amendmentPartialsText(partials []wireformat.Amendment) []string {
	out := make([]string, len(partials))
	for i, p := range partials {
		out[i] = p.Message
	}
	return out
}

// --- Checks -------------------------------------------------------

const checkSystemPrompt = `You are an expert reviewer validating Git commits against project
conventions: commit message quality, scope boundaries, and
atomicity.

For every commit you are given, output a check result with its commit
hash (full or short), a passes flag, and zero or more issues. Each
issue has a severity (error, warning, or info), a section naming what
aspect failed, a rule name, and an explanation. Respond only with YAML
of the form:

checks:
  - commit: <hash>
    passes: true|false
    issues:
      - severity: error|warning|info
        section: <str>
        rule: <str>
        explanation: <str>
    suggestion:
      message: <str>
      explanation: <str>
    summary: <one-line summary, optional>

Omit suggestion when the original message needs no change. No prose
outside the YAML document.`

const checkFullViewTmpl = `Check every commit below against project conventions.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
{{range .Commits}}
---
Commit: {{.Hash}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff:
{{.Diff}}
{{end}}`

const checkSingleTmpl = `Check this commit against project conventions.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
Commit: {{.Hash}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff:
{{.Diff}}`

const checkChunkTmpl = `Check this commit against project conventions. You are shown only a
subset of its changed files.
{{if .Guidelines}}
Project guidelines:
{{.Guidelines}}
{{end}}
Commit: {{.Hash}}
Original message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff (partial):
{{.Diff}}`

const checkMergeSystemPrompt = `You synthesize a single commit check result from several partial
checks, each covering a different slice of the same commit's diff.
The partials have already been merged deterministically where
possible; you are only asked to reconcile conflicting suggestions into
one. Respond only with the same checks YAML, containing exactly one
entry.`

// CheckPrompts builds the Prompts[CommitCheckResult] value for the
// "check commits" operation.
func CheckPrompts(guidelines string) dispatch.Prompts[wireformat.CommitCheckResult] {
	return dispatch.Prompts[wireformat.CommitCheckResult]{
		SystemPrompt: checkSystemPrompt,
		FullView: func(view domain.RepositoryView) string {
			if len(view.Commits) == 0 {
				return ""
			}
			return render("check-full", checkFullViewTmpl, newRepoTmplData(view, guidelines))
		},
		SingleCommit: func(view domain.RepositoryView, idx int) string {
			data := newCommitTmplData(view, idx, wholeCommitDiff(view.Commits[idx]), guidelines)
			return render("check-single", checkSingleTmpl, data)
		},
		Chunk: func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string {
			commit := view.Commits[idx]
			data := newCommitTmplData(view, idx, loadChunkDiff(commit, chunk), guidelines)
			return render("check-chunk", checkChunkTmpl, data)
		},
		Batch: func(view domain.RepositoryView, indices []int) string {
			return render("check-full", checkFullViewTmpl, newRepoTmplData(subView(view, indices), guidelines))
		},
		CommitKey: func(item wireformat.CommitCheckResult) string { return item.Commit },
		Parse: func(raw string) ([]wireformat.CommitCheckResult, error) {
			report, err := wireformat.ParseCheckReport(raw)
			if err != nil {
				return nil, err
			}
			return report.Checks, nil
		},
		MergeChunks: func(commitHash string, partials []wireformat.CommitCheckResult) wireformat.CommitCheckResult {
			return reduce.MergeDeterministic(commitHash, partials)
		},
		NeedsAIMerge: reduce.NeedsAIMerge,
		AIMergePrompt: func(commit domain.CommitInfo, partials []wireformat.CommitCheckResult) (string, string) {
			texts := make([]string, len(partials))
			for i, p := range partials {
				texts[i] = checkPartialText(p)
			}
			return checkMergeSystemPrompt, buildPartialsMergeUser(commit, texts)
		},
	}
}

func checkPartialText(r wireformat.CommitCheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "passes: %v\n", r.Passes)
	for _, issue := range r.Issues {
		fmt.Fprintf(&sb, "- [%s] %s/%s: %s\n", issue.Severity, issue.Section, issue.Rule, issue.Explanation)
	}
	if r.Suggestion != nil {
		fmt.Fprintf(&sb, "suggestion: %s (%s)\n", r.Suggestion.Message, r.Suggestion.Explanation)
	}
	if r.Summary != "" {
		fmt.Fprintf(&sb, "summary: %s\n", r.Summary)
	}
	return sb.String()
}

// --- PR content -------------------------------------------------------

const prSystemPrompt = `You draft Pull Request titles and descriptions from a set of commits.

Respond only with YAML of the form:

title: <str>
description: |
  <markdown body>

No prose outside the YAML document.`

const prFullViewTmpl = `Draft a PR title and description summarizing every commit below.
{{if .PrTemplate}}
Fill in this PR template, preserving its section headings:
{{.PrTemplate}}
{{end}}
Branch: {{.BranchLabel}}
{{range .Commits}}
---
Commit: {{.Hash}}
Message: {{.Message}}
Diff stat:
{{.DiffSummary}}
{{end}}`

// prSingleTmpl and prChunkTmpl produce a *fragment* describing one
// commit's contribution — not a final PR title/description. The
// fragments are synthesized into one PrContent by PRSynthesisPrompt
// once every commit has been dispatched (spec §4.4's per-operation
// reducer note: PR content always needs the secondary merge pass).
const prSingleTmpl = `Summarize this commit's contribution to the pull request, as a short
paragraph suitable for one bullet point. Do not produce a title.
Commit: {{.Hash}}
Message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff:
{{.Diff}}`

const prChunkTmpl = `Summarize this commit's contribution to the pull request, as a short
paragraph. You are shown only a subset of its changed files.
Commit: {{.Hash}}
Message: {{.Message}}
Diff stat:
{{.DiffSummary}}

Diff (partial):
{{.Diff}}`

const prChunkMergeSystemPrompt = `You synthesize one paragraph describing a commit's contribution to a
pull request from several partial paragraphs, each covering a
different slice of the same commit's diff. Respond only with the same
YAML shape, using the "description" field for the paragraph and an
empty "title".`

// PRPrompts builds the Prompts[PrContent] value for the "generate PR
// content" operation. Per-commit/chunk results are fragments (title
// empty, description holding one paragraph); PRSynthesisPrompt
// combines them into the final title+description after dispatch.
func PRPrompts() dispatch.Prompts[wireformat.PrContent] {
	return dispatch.Prompts[wireformat.PrContent]{
		SystemPrompt: prSystemPrompt,
		FullView: func(view domain.RepositoryView) string {
			if len(view.Commits) == 0 {
				return ""
			}
			return render("pr-full", prFullViewTmpl, newRepoTmplData(view, ""))
		},
		SingleCommit: func(view domain.RepositoryView, idx int) string {
			data := newCommitTmplData(view, idx, wholeCommitDiff(view.Commits[idx]), "")
			return render("pr-single", prSingleTmpl, data)
		},
		Chunk: func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string {
			commit := view.Commits[idx]
			data := newCommitTmplData(view, idx, loadChunkDiff(commit, chunk), "")
			return render("pr-chunk", prChunkTmpl, data)
		},
		Parse: func(raw string) ([]wireformat.PrContent, error) {
			content, err := parsePrFragment(raw)
			if err != nil {
				return nil, err
			}
			return []wireformat.PrContent{content}, nil
		},
		NeedsAIMerge: func(partials []wireformat.PrContent) bool { return len(partials) > 1 },
		AIMergePrompt: func(commit domain.CommitInfo, partials []wireformat.PrContent) (string, string) {
			texts := make([]string, len(partials))
			for i, p := range partials {
				texts[i] = p.Description
			}
			return prChunkMergeSystemPrompt, buildPartialsMergeUser(commit, texts)
		},
	}
}

// parsePrFragment accepts either a full "title:"-anchored document or a
// bare description fragment lacking a title (the per-commit/chunk
// prompts above explicitly ask for the latter).
func parsePrFragment(raw string) (wireformat.PrContent, error) {
	if content, err := wireformat.ParsePrContent(raw); err == nil {
		return content, nil
	}
	return wireformat.PrContent{Description: strings.TrimSpace(raw)}, nil
}

const prSynthesisSystemPrompt = `You synthesize a final Pull Request title and description from a set
of per-commit summaries produced independently, possibly with
overlapping or redundant content. Produce one coherent title and a
description that reads as a single narrative, deduplicated across
commits. Respond only with YAML of the form:

title: <str>
description: |
  <markdown body>`

// PRSynthesisPrompt builds the final whole-PR synthesis call: it turns
// N independently-generated per-commit fragments into one PrContent.
// This is the PR-specific analogue of the cross-commit coherence pass
// (spec §4.6) — coherence normalizes N results in place, PR synthesis
// collapses N fragments into exactly one.
func PRSynthesisPrompt(prTemplate string, fragments []wireformat.PrContent) (system, user string) {
	var sb strings.Builder
	if prTemplate != "" {
		fmt.Fprintf(&sb, "Fill in this PR template, preserving its section headings:\n%s\n\n", prTemplate)
	}
	sb.WriteString("Per-commit summaries:\n")
	for i, f := range fragments {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, f.Description)
	}
	return prSynthesisSystemPrompt, sb.String()
}

// --- shared helpers -------------------------------------------------------

func buildPartialsMergeUser(commit domain.CommitInfo, partials []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Commit: %s\nOriginal message: %s\nDiff stat:\n%s\n\nPartial results from each chunk:\n",
		commit.Hash, commit.OriginalMessage, commit.DiffSummary)
	for i, p := range partials {
		fmt.Fprintf(&sb, "--- partial %d ---\n%s\n", i+1, p)
	}
	return sb.String()
}
