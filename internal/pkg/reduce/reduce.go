// Package reduce merges the map phase's per-chunk and per-commit
// partial results into the orchestrator's final typed output, per
// spec §4.6: a deterministic union pass for check issues, a secondary
// LLM merge pass for amendments/PR content (and checks when any chunk
// produced a suggestion), and an optional cross-commit coherence pass.
package reduce

import (
	"sort"
	"strings"

	"github.com/gitsage/gitsage/internal/pkg/wireformat"
)

// MergeDeterministic unions a commit's per-chunk check results without
// another model call: issues are deduplicated by (rule, severity,
// section), passes is the logical AND across chunks, and summary is
// the first non-empty chunk summary. Used when no chunk produced a
// suggestion — otherwise the orchestrator routes through MergeWithAI.
func MergeDeterministic(commit string, partials []wireformat.CommitCheckResult) wireformat.CommitCheckResult {
	seen := make(map[string]wireformat.CommitIssue)
	var order []string
	passes := true
	summary := ""

	for _, p := range partials {
		passes = passes && p.Passes
		if summary == "" && strings.TrimSpace(p.Summary) != "" {
			summary = p.Summary
		}
		for _, issue := range p.Issues {
			key := issue.Key()
			if _, ok := seen[key]; !ok {
				order = append(order, key)
			}
			seen[key] = issue
		}
	}

	issues := make([]wireformat.CommitIssue, 0, len(order))
	for _, key := range order {
		issues = append(issues, seen[key])
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Key() < issues[j].Key()
	})

	return wireformat.CommitCheckResult{
		Commit:  commit,
		Passes:  passes,
		Issues:  issues,
		Summary: summary,
	}
}

// NeedsAIMerge reports whether a commit's partial check results must
// go through the secondary LLM merge pass instead of the deterministic
// union: true as soon as any chunk carries a suggestion, since
// synthesizing one coherent suggestion out of several requires model
// judgment the deterministic pass can't provide.
func NeedsAIMerge(partials []wireformat.CommitCheckResult) bool {
	for _, p := range partials {
		if p.Suggestion != nil {
			return true
		}
	}
	return false
}

// CoherenceInput is one commit's pre-coherence result plus the short
// summary context the cross-commit normalization prompt needs.
type CoherenceInput struct {
	CommitHash string
	Summary    string
}

// BuildCoherencePrompt renders the user prompt for the coherence pass:
// every commit's short summary, asking the model to normalize scopes,
// remove cross-commit redundancy, and keep severity consistent. The
// caller supplies the per-operation system prompt and re-parses the
// response with the same Response Parser path as the map phase.
func BuildCoherencePrompt(inputs []CoherenceInput) string {
	var b strings.Builder
	b.WriteString("The following per-commit results were produced independently ")
	b.WriteString("and never saw each other. Normalize overlapping scope, remove ")
	b.WriteString("cross-commit redundancy, and keep severity judgments consistent ")
	b.WriteString("across commits. Return the full corrected set in the same format.\n\n")
	for _, in := range inputs {
		b.WriteString("- commit ")
		b.WriteString(in.CommitHash)
		b.WriteString(": ")
		b.WriteString(in.Summary)
		b.WriteString("\n")
	}
	return b.String()
}
