// Package wireformat defines the typed YAML structures the dispatch
// core exchanges with an LLM, extraction of YAML out of a possibly
// fenced response, and validation of the parsed result against the
// invariants the orchestrator and reducer depend on.
package wireformat

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"gopkg.in/yaml.v3"
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Severity is the recognized severity enum for a CommitIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityInfo:
		return true
	default:
		return false
	}
}

// Amendment pairs a commit hash with its replacement message.
type Amendment struct {
	Commit  string `yaml:"commit"`
	Message string `yaml:"message"`
	Summary string `yaml:"summary,omitempty"`
}

// AmendmentFile is the top-level amendments wire document.
type AmendmentFile struct {
	Amendments []Amendment `yaml:"amendments"`
}

// Validate checks every amendment's hash format and message non-emptiness.
func (f AmendmentFile) Validate() error {
	for i, a := range f.Amendments {
		if !commitHashPattern.MatchString(a.Commit) {
			return apperrors.NewInvalidResponseFormatError(
				fmt.Sprintf("amendment[%d]: commit hash %q is not 40 lowercase hex characters", i, a.Commit))
		}
		if strings.TrimSpace(a.Message) == "" {
			return apperrors.NewInvalidResponseFormatError(
				fmt.Sprintf("amendment[%d]: message is empty after trim", i))
		}
	}
	return nil
}

// CommitIssue identifies a single finding. The (Rule, Severity,
// Section) triple is the identity used for deterministic dedup.
type CommitIssue struct {
	Severity    Severity `yaml:"severity"`
	Section     string   `yaml:"section"`
	Rule        string   `yaml:"rule"`
	Explanation string   `yaml:"explanation"`
}

// Key returns the dedup identity tuple as a comparable string.
func (i CommitIssue) Key() string {
	return string(i.Severity) + "\x00" + i.Section + "\x00" + i.Rule
}

// CommitSuggestion is an optional replacement message attached to a check result.
type CommitSuggestion struct {
	Message     string `yaml:"message"`
	Explanation string `yaml:"explanation"`
}

// CommitCheckResult is one commit's check outcome, possibly partial
// (produced by a single chunk before reduction).
type CommitCheckResult struct {
	Commit     string            `yaml:"commit"`
	Passes     bool              `yaml:"passes"`
	Issues     []CommitIssue     `yaml:"issues"`
	Suggestion *CommitSuggestion `yaml:"suggestion,omitempty"`
	Summary    string            `yaml:"summary,omitempty"`
}

// CheckReport is the top-level check wire document.
type CheckReport struct {
	Checks []CommitCheckResult `yaml:"checks"`
}

// Validate checks hash format and recognized severity enums.
func (r CheckReport) Validate() error {
	for i, c := range r.Checks {
		if !commitHashPattern.MatchString(c.Commit) && !isShortHex(c.Commit) {
			return apperrors.NewInvalidResponseFormatError(
				fmt.Sprintf("checks[%d]: commit %q is neither a 40-hex hash nor a short-hex prefix", i, c.Commit))
		}
		for j, issue := range c.Issues {
			if !issue.Severity.valid() {
				return apperrors.NewInvalidResponseFormatError(
					fmt.Sprintf("checks[%d].issues[%d]: unrecognized severity %q", i, j, issue.Severity))
			}
			if strings.TrimSpace(issue.Section) == "" || strings.TrimSpace(issue.Rule) == "" {
				return apperrors.NewInvalidResponseFormatError(
					fmt.Sprintf("checks[%d].issues[%d]: section and rule must be non-empty", i, j))
			}
		}
	}
	return nil
}

func isShortHex(s string) bool {
	if len(s) < 4 || len(s) > 40 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// PrContent is the title/description pair for PR-description generation.
type PrContent struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Validate checks that a title was produced; an empty description is
// permitted (an empty PR body is a valid, if unhelpful, result).
func (c PrContent) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return apperrors.NewInvalidResponseFormatError("pr content: title is empty after trim")
	}
	return nil
}

// ExtractYAML pulls a YAML document out of a raw LLM response. The
// response may be pure YAML already starting with discriminator, a
// ```yaml fenced block, or a generic ``` block whose content begins
// with discriminator. Falls back to the trimmed input.
func ExtractYAML(content, discriminator string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, discriminator) {
		return content
	}

	if yamlStart := strings.Index(content, "```yaml"); yamlStart != -1 {
		rest := content[yamlStart+len("```yaml"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	if codeStart := strings.Index(content, "```"); codeStart != -1 {
		rest := content[codeStart+3:]
		var body string
		if end := strings.Index(rest, "```"); end != -1 {
			body = rest[:end]
		} else {
			body = rest
		}
		potential := strings.TrimSpace(body)
		if strings.HasPrefix(potential, discriminator) {
			return potential
		}
	}

	return content
}

// Discriminators used to locate each operation's root key.
const (
	DiscriminatorAmendments = "amendments:"
	DiscriminatorChecks     = "checks:"
	DiscriminatorPrTitle    = "title:"
)

// ParseAmendments extracts and validates an AmendmentFile from a raw response.
func ParseAmendments(raw string) (AmendmentFile, error) {
	yamlContent := ExtractYAML(raw, DiscriminatorAmendments)

	var file AmendmentFile
	if err := yaml.Unmarshal([]byte(yamlContent), &file); err != nil {
		return AmendmentFile{}, wrapYAMLError(err)
	}
	if err := file.Validate(); err != nil {
		return AmendmentFile{}, err
	}
	return file, nil
}

// ParseCheckReport extracts and validates a CheckReport from a raw response.
func ParseCheckReport(raw string) (CheckReport, error) {
	yamlContent := ExtractYAML(raw, DiscriminatorChecks)

	var report CheckReport
	if err := yaml.Unmarshal([]byte(yamlContent), &report); err != nil {
		return CheckReport{}, wrapYAMLError(err)
	}
	if err := report.Validate(); err != nil {
		return CheckReport{}, err
	}
	return report, nil
}

// ParsePrContent extracts and validates PrContent from a raw response.
func ParsePrContent(raw string) (PrContent, error) {
	yamlContent := ExtractYAML(raw, DiscriminatorPrTitle)

	var content PrContent
	if err := yaml.Unmarshal([]byte(yamlContent), &content); err != nil {
		return PrContent{}, wrapYAMLError(err)
	}
	if err := content.Validate(); err != nil {
		return PrContent{}, err
	}
	return content, nil
}

// wrapYAMLError converts a yaml.v3 parse error into an AppError,
// adding hints for the pitfalls most common in LLM-generated YAML.
func wrapYAMLError(err error) error {
	msg := err.Error()
	hint := ""
	switch {
	case strings.Contains(msg, "found character that cannot start any token"):
		hint = "response likely uses tab indentation; YAML requires spaces"
	case strings.Contains(msg, "did not find expected '-' indicator"):
		hint = "response likely has a dash without a following space in a list item"
	case strings.Contains(msg, "mapping values are not allowed"):
		hint = "response likely has an unescaped colon inside a plain scalar"
	}

	appErr := apperrors.NewInvalidResponseFormatError(msg)
	if hint != "" {
		appErr.WithSuggestion(hint)
	}
	return appErr
}

// marshalLiteral renders v as YAML with every multiline string field
// forced to a literal block scalar (`|`), matching the wire format's
// requirement that multiline messages/explanations never emit as
// escaped-quoted strings.
func marshalLiteral(v interface{}) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	forceLiteralStyle(&node)

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// forceLiteralStyle walks a yaml.Node tree and sets LiteralStyle on
// every scalar string value containing a newline.
func forceLiteralStyle(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" && strings.Contains(node.Value, "\n") {
		node.Style = yaml.LiteralStyle
	}
	for _, child := range node.Content {
		forceLiteralStyle(child)
	}
}

// MarshalAmendments renders an AmendmentFile with literal block scalars.
func MarshalAmendments(f AmendmentFile) ([]byte, error) {
	return marshalLiteral(f)
}

// MarshalCheckReport renders a CheckReport with literal block scalars.
func MarshalCheckReport(r CheckReport) ([]byte, error) {
	return marshalLiteral(r)
}

// MarshalPrContent renders PrContent with literal block scalars.
func MarshalPrContent(c PrContent) ([]byte, error) {
	return marshalLiteral(c)
}
