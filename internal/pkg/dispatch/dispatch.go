// Package dispatch is the Request Orchestrator (spec §4.4): it decides,
// per commit, whether a full-repository view, a single-commit view, or
// a file-chunk sub-dispatch fits the model's budget, fans requests out
// under bounded concurrency, retries each call, splits a failed batch
// into per-commit retries, and stitches results back in input order.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/gitsage/gitsage/internal/pkg/aiclient"
	"github.com/gitsage/gitsage/internal/pkg/batchplan"
	"github.com/gitsage/gitsage/internal/pkg/diffpack"
	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
	"github.com/gitsage/gitsage/internal/pkg/logging"
	"github.com/gitsage/gitsage/internal/pkg/tokenbudget"
)

// RetryPromptFunc asks the user whether to retry the given number of
// failed commits; returning false ends the interactive retry loop. The
// core never renders UI itself — the CLI wires this to its own
// [R]etry/[S]kip prompt.
type RetryPromptFunc func(failedCount int) bool

// Options configures one orchestrator call.
type Options struct {
	Concurrency int
	MaxRetries  int
	NoCoherence bool
	Interactive bool
	Verb        string // "processed" or "checked", for the progress line
	RetryPrompt RetryPromptFunc
}

// DefaultOptions returns the dispatch core's default knobs (spec §4.4, §5).
func DefaultOptions() Options {
	return Options{Concurrency: 4, MaxRetries: 2, Verb: "processed"}
}

func (o Options) retryConfig() apperrors.RetryConfig {
	cfg := apperrors.DefaultRetryConfig()
	cfg.MaxAttempts = o.MaxRetries + 1
	return cfg
}

// Prompts supplies the per-operation hooks the orchestrator needs to
// stay agnostic to whether it's generating amendments, checking
// commits, or drafting PR content. T is the per-commit partial result
// type (Amendment, CommitCheckResult, or a PR-description fragment).
type Prompts[T any] struct {
	SystemPrompt string
	// FullView builds the whole-repository user prompt.
	FullView func(view domain.RepositoryView) string
	// SingleCommit builds a user prompt scoped to one commit, with
	// unrelated metadata stripped (spec §4.4 step 2).
	SingleCommit func(view domain.RepositoryView, idx int) string
	// Chunk builds a user prompt for one file-chunk of one commit.
	Chunk func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string
	// Batch builds a user prompt covering several whole commits in one
	// request (spec §4.3's Batch Planner output). Nil disables
	// batch-level dispatch for this operation, falling straight to
	// per-commit dispatch; PR content leaves this nil since its
	// fragments don't key by a single commit hash (see PRPrompts).
	Batch func(view domain.RepositoryView, indices []int) string
	// CommitKey returns the commit hash a parsed batch item belongs
	// to, for matching the response back to RepositoryView indices.
	// Required whenever Batch is set.
	CommitKey func(item T) string
	// Parse extracts and validates T (or a slice of T, for full-view
	// responses that cover every commit at once) from a raw response.
	Parse func(raw string) ([]T, error)
	// MergeChunks deterministically unions a commit's chunk partials
	// when no AI merge is required; nil means always use the AI pass.
	MergeChunks func(commitHash string, partials []T) T
	// NeedsAIMerge decides, given a commit's chunk partials, whether
	// MergeChunks's deterministic union is insufficient.
	NeedsAIMerge func(partials []T) bool
	// AIMergePrompt builds the secondary "synthesize one result"
	// system+user prompt pair for a commit's partials.
	AIMergePrompt func(commit domain.CommitInfo, partials []T) (system, user string)
}

// Result is one orchestrator call's outcome.
type Result[T any] struct {
	Items         []T
	FailedIndices []int
	Warning       string
	// UsedSingleCall is true when exactly one request saw every commit
	// in view at once (a full-view success, or a single batch covering
	// all commits that needed no split-and-retry). Callers use this to
	// gate the coherence pass (spec §4.6): a single call already has
	// full cross-commit context, so a second pass would be redundant.
	UsedSingleCall bool
}

// Engine runs one operation's dispatch strategy against a client.
type Engine[T any] struct {
	Client  aiclient.AiClient
	Opts    Options
	Prompts Prompts[T]
}

// Run executes the dispatch strategy selection (spec §4.4) for every
// commit in view, then the interactive retry loop if stdin is a
// terminal and indices remain failed.
func (e *Engine[T]) Run(ctx context.Context, view domain.RepositoryView) (Result[T], error) {
	metadata := e.Client.GetMetadata()
	budget := tokenbudget.FromMetadata(tokenbudget.Metadata{
		MaxContextLength:  metadata.MaxContextLength,
		MaxResponseLength: metadata.MaxResponseLength,
	})

	// Step 1: full-view attempt.
	if fullUser := e.Prompts.FullView(view); fullUser != "" {
		if _, err := budget.ValidatePrompt(e.Prompts.SystemPrompt, fullUser); err == nil {
			items, err := e.sendAndParse(ctx, e.Prompts.SystemPrompt, fullUser, "full-view")
			if err == nil {
				logging.LogDispatchProgress(len(view.Commits), len(view.Commits), e.verb())
				return Result[T]{Items: items, UsedSingleCall: true}, nil
			}
			logging.L().Warn().Err(err).Msg("full-view dispatch failed, falling back to per-commit dispatch")
		}
	}

	// Step 2/3: batch dispatch (when the operation supports it) with
	// per-commit and file-chunk fallback, fanned out under bounded
	// concurrency and stitched back in input order.
	items := make([]*T, len(view.Commits))
	failed := make([]error, len(view.Commits))
	var completed atomic.Int64
	var anySplit atomic.Bool

	units := e.planUnits(view, budget)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency())

	for _, unit := range units {
		indices := unit
		group.Go(func() error {
			if e.dispatchUnit(gctx, view, indices, budget, items, failed) {
				anySplit.Store(true)
			}
			done := completed.Add(int64(len(indices)))
			logging.LogDispatchProgress(int(done), len(view.Commits), e.verb())
			return nil
		})
	}
	// errgroup's cancellation on a returned error is unused here: a
	// per-commit failure is recorded, not propagated, so peers in
	// flight are never cancelled (spec §4.4 concurrency model).
	_ = group.Wait()

	var out []T
	var failedIndices []int
	for i, item := range items {
		if item != nil {
			out = append(out, *item)
		} else if failed[i] != nil {
			failedIndices = append(failedIndices, i)
		}
	}

	failedIndices = e.interactiveRetryLoop(ctx, view, budget, items, failedIndices)

	out = out[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}

	if len(out) == 0 && len(view.Commits) > 0 {
		return Result[T]{}, apperrors.New(apperrors.ErrNoFileDiffsForOversized, "all commits failed to process")
	}

	warning := ""
	if len(failedIndices) > 0 {
		warning = fmt.Sprintf("%d of %d commits could not be processed", len(failedIndices), len(view.Commits))
	}

	usedSingleCall := len(units) == 1 && !anySplit.Load()
	return Result[T]{Items: out, FailedIndices: failedIndices, Warning: warning, UsedSingleCall: usedSingleCall}, nil
}

// planUnits groups view.Commits into the map-phase dispatch units: one
// multi-commit batch per batchplan.Plan group when the operation
// supports batch dispatch, or one unit per commit otherwise.
func (e *Engine[T]) planUnits(view domain.RepositoryView, budget tokenbudget.Budget) [][]int {
	if e.Prompts.Batch == nil || e.Prompts.CommitKey == nil {
		units := make([][]int, len(view.Commits))
		for i := range view.Commits {
			units[i] = []int{i}
		}
		return units
	}

	systemTokens := tokenbudget.EstimateTokens(e.Prompts.SystemPrompt)
	plan := batchplan.Plan(view.Commits, budget.AvailableInputTokens(), systemTokens)

	units := make([][]int, len(plan.Batches))
	for i, batch := range plan.Batches {
		units[i] = batch.CommitIndices
	}
	return units
}

// dispatchUnit sends one map-phase unit. A singleton unit goes straight
// through dispatchCommit. A multi-commit batch is sent as one request;
// when the response fails to parse, or leaves some of the batch's
// commits unmatched, those commits are split out and retried one at a
// time through dispatchCommit (spec §4.3/§4.4's split-and-retry). The
// returned bool reports whether a batch had to be split, so Run can
// tell a genuine single-call unit from one that fell back to several.
func (e *Engine[T]) dispatchUnit(ctx context.Context, view domain.RepositoryView, indices []int, budget tokenbudget.Budget, items []*T, failed []error) bool {
	if len(indices) == 1 {
		idx := indices[0]
		result, err := e.dispatchCommit(ctx, view, idx, budget)
		if err != nil {
			failed[idx] = err
		} else {
			items[idx] = result
		}
		return false
	}

	split := false
	batchUser := e.Prompts.Batch(view, indices)
	parsed, err := e.sendAndParse(ctx, e.Prompts.SystemPrompt, batchUser, fmt.Sprintf("batch(%d commits)", len(indices)))
	if err != nil {
		split = true
		logging.L().Warn().Err(err).Int("batch_size", len(indices)).Msg("batch dispatch failed, splitting into per-commit retries")
	} else {
		unmatched := e.assignBatchResults(view, indices, parsed, items)
		if len(unmatched) == 0 {
			return false
		}
		split = true
		indices = unmatched
		logging.L().Warn().Int("missing_count", len(indices)).Msg("batch response left commits unmatched, splitting into per-commit retries")
	}

	for _, idx := range indices {
		result, err := e.dispatchCommit(ctx, view, idx, budget)
		if err != nil {
			failed[idx] = err
		} else {
			items[idx] = result
		}
	}
	return split
}

// assignBatchResults matches a batch response's parsed items back to
// RepositoryView indices by commit hash (exact or prefix match, mirroring
// ResolveCommitHash), writing matches into items and returning the
// indices the response left unresolved.
func (e *Engine[T]) assignBatchResults(view domain.RepositoryView, indices []int, parsed []T, items []*T) []int {
	var unmatched []int
	for _, idx := range indices {
		hash := view.Commits[idx].Hash
		matched := false
		for i := range parsed {
			key := e.Prompts.CommitKey(parsed[i])
			if strings.HasPrefix(key, hash) || strings.HasPrefix(hash, key) {
				items[idx] = &parsed[i]
				matched = true
				break
			}
		}
		if !matched {
			unmatched = append(unmatched, idx)
		}
	}
	return unmatched
}

// dispatchCommit implements steps 2 and 3 of the decision tree for one commit.
func (e *Engine[T]) dispatchCommit(ctx context.Context, view domain.RepositoryView, idx int, budget tokenbudget.Budget) (*T, error) {
	commit := view.Commits[idx]
	singleUser := e.Prompts.SingleCommit(view, idx)

	if _, err := budget.ValidatePrompt(e.Prompts.SystemPrompt, singleUser); err == nil {
		items, err := e.sendAndParse(ctx, e.Prompts.SystemPrompt, singleUser, commit.Hash)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, apperrors.NewInvalidResponseFormatError("response produced no result for commit " + commit.Hash)
		}
		return &items[0], nil
	}

	if len(commit.FileDiffs) == 0 {
		return nil, apperrors.NewNoFileDiffsForOversizedError(commit.Hash)
	}

	return e.fileChunkSubDispatch(ctx, view, idx, budget)
}

// fileChunkSubDispatch implements step 3: pack the commit's diffs into
// budget-sized chunks, dispatch each, and reduce the partials.
func (e *Engine[T]) fileChunkSubDispatch(ctx context.Context, view domain.RepositoryView, idx int, budget tokenbudget.Budget) (*T, error) {
	commit := view.Commits[idx]
	systemTokens := tokenbudget.EstimateTokens(e.Prompts.SystemPrompt)
	capacity := batchplan.ChunkCapacity(budget.AvailableInputTokens(), systemTokens, commit)

	plan, err := diffpack.PackFileDiffs(commit.Hash, commit.FileDiffs, capacity)
	if err != nil {
		return nil, err
	}

	partials := make([]T, 0, len(plan.Chunks))
	for _, chunk := range plan.Chunks {
		chunkUser := e.Prompts.Chunk(view, idx, chunk)
		items, err := e.sendAndParse(ctx, e.Prompts.SystemPrompt, chunkUser, commit.Hash)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			partials = append(partials, items[0])
		}
	}

	if len(partials) == 0 {
		return nil, apperrors.NewInvalidResponseFormatError("no chunk produced a result for commit " + commit.Hash)
	}
	if len(partials) == 1 {
		return &partials[0], nil
	}

	if e.Prompts.NeedsAIMerge == nil || !e.Prompts.NeedsAIMerge(partials) {
		merged := e.Prompts.MergeChunks(commit.Hash, partials)
		return &merged, nil
	}

	system, user := e.Prompts.AIMergePrompt(commit, partials)
	items, err := e.sendAndParse(ctx, system, user, commit.Hash+":merge")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NewInvalidResponseFormatError("merge pass produced no result for commit " + commit.Hash)
	}
	return &items[0], nil
}

// sendAndParse wraps one logical request (which may internally be a
// split-and-retry of a multi-commit batch) in the bounded-retry loop:
// transport failure, non-2xx, malformed YAML, and schema-validation
// failure are all retryable (spec §4.4, §7).
func (e *Engine[T]) sendAndParse(ctx context.Context, system, user, correlation string) ([]T, error) {
	id := uuid.New().String()
	var items []T

	err := apperrors.RetryWithNotify(ctx, e.Opts.retryConfig(), func(ctx context.Context) error {
		raw, err := e.Client.SendRequest(ctx, system, user)
		if err != nil {
			return err
		}
		parsed, err := e.Prompts.Parse(raw)
		if err != nil {
			return err
		}
		items = parsed
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		logging.L().Warn().
			Str("correlation_id", id).
			Str("target", correlation).
			Int("attempt", attempt).
			Err(err).
			Msg("dispatch retry")
	})

	return items, err
}

// interactiveRetryLoop implements spec §4.4's "[R]etry / [S]kip"
// prompt: after the map phase, if any indices remain failed and stdin
// is a terminal, retry re-runs the single-commit path for each failed
// index and replaces the recorded error with a success when available.
// The loop terminates when RetryPrompt returns false or all failures
// clear.
func (e *Engine[T]) interactiveRetryLoop(ctx context.Context, view domain.RepositoryView, budget tokenbudget.Budget, items []*T, failedIndices []int) []int {
	if len(failedIndices) == 0 {
		return nil
	}
	if !e.Opts.Interactive || e.Opts.RetryPrompt == nil || !isatty.IsTerminal(os.Stdin.Fd()) {
		logging.L().Warn().Int("failed_count", len(failedIndices)).Msg("non-interactive session: skipping retry prompt")
		return failedIndices
	}

	remaining := append([]int(nil), failedIndices...)

	for len(remaining) > 0 {
		if !e.Opts.RetryPrompt(len(remaining)) {
			break
		}

		var stillFailed []int
		for _, idx := range remaining {
			result, err := e.dispatchCommit(ctx, view, idx, budget)
			if err != nil {
				stillFailed = append(stillFailed, idx)
				continue
			}
			items[idx] = result
		}
		remaining = stillFailed
	}

	return remaining
}

func (e *Engine[T]) concurrency() int {
	if e.Opts.Concurrency > 0 {
		return e.Opts.Concurrency
	}
	return 4
}

func (e *Engine[T]) verb() string {
	if e.Opts.Verb != "" {
		return e.Opts.Verb
	}
	return "processed"
}

// ResolveCommitHash implements spec §9's hash-resolution open
// question: first-match-wins prefix scan over view.Commits in order.
// candidate may be a full 40-hex hash or a short prefix; a candidate
// commit's full hash having candidate as a prefix (or vice versa)
// counts as a match.
func ResolveCommitHash(view domain.RepositoryView, candidate string) (int, bool) {
	for i, commit := range view.Commits {
		if strings.HasPrefix(commit.Hash, candidate) || strings.HasPrefix(candidate, commit.Hash) {
			return i, true
		}
	}
	return -1, false
}
