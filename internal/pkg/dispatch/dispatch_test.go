package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitsage/gitsage/internal/pkg/domain"
	apperrors "github.com/gitsage/gitsage/internal/pkg/errors"
)

// fakeClient is a scripted AiClient: SendRequest returns responses[i]
// for the i-th call (errors included), then repeats the last entry.
type fakeClient struct {
	responses []scriptedResponse
	calls     atomic.Int64
	metadata  domain.AiClientMetadata
}

type scriptedResponse struct {
	text string
	err  error
}

func (c *fakeClient) SendRequest(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := c.calls.Add(1) - 1
	if int(i) >= len(c.responses) {
		i = int64(len(c.responses) - 1)
	}
	r := c.responses[i]
	return r.text, r.err
}

func (c *fakeClient) GetMetadata() domain.AiClientMetadata {
	if c.metadata.MaxContextLength == 0 {
		return domain.AiClientMetadata{MaxContextLength: 100000, MaxResponseLength: 4096}
	}
	return c.metadata
}

func makeView(n int) domain.RepositoryView {
	commits := make([]domain.CommitInfo, n)
	for i := range commits {
		commits[i] = domain.CommitInfo{
			Hash:            fmt.Sprintf("%040x", i+1),
			OriginalMessage: "fix bug",
			DiffSummary:     " 1 file changed",
		}
	}
	return domain.RepositoryView{Commits: commits}
}

func parseEcho(raw string) ([]string, error) {
	if strings.HasPrefix(raw, "err:") {
		return nil, apperrors.NewInvalidResponseFormatError(raw)
	}
	return []string{raw}, nil
}

func stringPrompts() Prompts[string] {
	return Prompts[string]{
		SystemPrompt: "system",
		FullView:     func(view domain.RepositoryView) string { return "" }, // force per-commit path
		SingleCommit: func(view domain.RepositoryView, idx int) string {
			return "commit:" + view.Commits[idx].Hash
		},
		Chunk: func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string {
			return "chunk:" + view.Commits[idx].Hash
		},
		Parse: parseEcho,
		MergeChunks: func(commitHash string, partials []string) string {
			return strings.Join(partials, "|")
		},
	}
}

func TestEngine_PerCommitDispatch_PreservesOrder(t *testing.T) {
	view := makeView(5)
	responses := make([]scriptedResponse, 0, 5)
	for _, c := range view.Commits {
		responses = append(responses, scriptedResponse{text: "commit:" + c.Hash})
	}
	client := &fakeClient{responses: responses}

	engine := &Engine[string]{Client: client, Opts: DefaultOptions(), Prompts: stringPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 5)
	for i, item := range result.Items {
		assert.Equal(t, "commit:"+view.Commits[i].Hash, item)
	}
	assert.Empty(t, result.FailedIndices)
}

func TestEngine_RetriesTransientFailureThenSucceeds(t *testing.T) {
	view := makeView(1)
	client := &fakeClient{responses: []scriptedResponse{
		{err: apperrors.NewNetworkError(errors.New("connection reset"))},
		{text: "commit:" + view.Commits[0].Hash},
	}}

	opts := DefaultOptions()
	engine := &Engine[string]{Client: client, Opts: opts, Prompts: stringPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(2), client.calls.Load())
}

func TestEngine_ExhaustsRetriesThenFails(t *testing.T) {
	view := makeView(1)
	client := &fakeClient{responses: []scriptedResponse{
		{err: apperrors.NewNetworkError(errors.New("down"))},
	}}

	opts := DefaultOptions()
	engine := &Engine[string]{Client: client, Opts: opts, Prompts: stringPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.Error(t, err)
	assert.Empty(t, result.Items)
	// MaxRetries=2 means 3 total attempts before giving up.
	assert.Equal(t, int64(3), client.calls.Load())
}

func TestEngine_NonRetryableErrorFailsImmediately(t *testing.T) {
	view := makeView(1)
	client := &fakeClient{responses: []scriptedResponse{
		{err: apperrors.NewAuthenticationError("openai")},
	}}

	engine := &Engine[string]{Client: client, Opts: DefaultOptions(), Prompts: stringPrompts()}
	_, err := engine.Run(context.Background(), view)
	require.Error(t, err)
	assert.Equal(t, int64(1), client.calls.Load())
}

// batchPrompts lets the batch-planning tests below drive Run's
// multi-commit map-phase path: Batch renders every targeted commit's
// hash into one request, Parse splits a "batch:"-prefixed response
// back into one item per hash, and CommitKey reports which hash each
// parsed item belongs to.
func batchPrompts() Prompts[string] {
	return Prompts[string]{
		SystemPrompt: "system",
		FullView:     func(view domain.RepositoryView) string { return "" }, // force batch/per-commit path
		SingleCommit: func(view domain.RepositoryView, idx int) string {
			return "commit:" + view.Commits[idx].Hash
		},
		Chunk: func(view domain.RepositoryView, idx int, chunk domain.DiffChunk) string {
			return "chunk:" + view.Commits[idx].Hash
		},
		Batch: func(view domain.RepositoryView, indices []int) string {
			hashes := make([]string, len(indices))
			for i, idx := range indices {
				hashes[i] = view.Commits[idx].Hash
			}
			return "batch:" + strings.Join(hashes, ",")
		},
		CommitKey: func(item string) string {
			hash, _, _ := strings.Cut(item, ":")
			return hash
		},
		Parse: func(raw string) ([]string, error) {
			if strings.HasPrefix(raw, "err:") {
				return nil, apperrors.NewInvalidResponseFormatError(raw)
			}
			if !strings.HasPrefix(raw, "batch:") {
				return []string{raw}, nil
			}
			hashes := strings.Split(strings.TrimPrefix(raw, "batch:"), ",")
			items := make([]string, len(hashes))
			for i, h := range hashes {
				items[i] = h + ":result"
			}
			return items, nil
		},
		MergeChunks: func(commitHash string, partials []string) string {
			return strings.Join(partials, "|")
		},
	}
}

func TestEngine_BatchDispatch_GroupsCommitsIntoOneRequest(t *testing.T) {
	view := makeView(3)
	client := &fakeClient{responses: []scriptedResponse{
		{text: fmt.Sprintf("batch:%s,%s,%s", view.Commits[0].Hash, view.Commits[1].Hash, view.Commits[2].Hash)},
	}}

	engine := &Engine[string]{Client: client, Opts: DefaultOptions(), Prompts: batchPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, int64(1), client.calls.Load())
	for i, item := range result.Items {
		assert.Equal(t, view.Commits[i].Hash+":result", item)
	}
	// One batch covered every commit with no split: a caller's
	// coherence pass would be redundant.
	assert.True(t, result.UsedSingleCall)
}

func TestEngine_BatchDispatch_FailsOverToPerCommit(t *testing.T) {
	view := makeView(2)
	client := &fakeClient{responses: []scriptedResponse{
		{text: "err:malformed"},
		{text: "commit:" + view.Commits[0].Hash},
		{text: "commit:" + view.Commits[1].Hash},
	}}

	opts := Options{Concurrency: 4, MaxRetries: 0, Verb: "processed"}
	engine := &Engine[string]{Client: client, Opts: opts, Prompts: batchPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(3), client.calls.Load())
	assert.Equal(t, "commit:"+view.Commits[0].Hash, result.Items[0])
	assert.Equal(t, "commit:"+view.Commits[1].Hash, result.Items[1])
	// The batch had to split into per-commit retries: no single call
	// saw both commits together, so a coherence pass is still needed.
	assert.False(t, result.UsedSingleCall)
}

// TestEngine_FullViewSuccess_UsedSingleCall checks the other source of
// a single-call result: a full-view attempt that succeeds outright
// never reaches the batch/per-commit map phase at all.
func TestEngine_FullViewSuccess_UsedSingleCall(t *testing.T) {
	view := makeView(2)
	client := &fakeClient{responses: []scriptedResponse{{text: "commit:" + view.Commits[0].Hash}}}

	prompts := stringPrompts()
	prompts.FullView = func(view domain.RepositoryView) string { return "full-view" }
	prompts.Parse = func(raw string) ([]string, error) {
		return []string{"a", "b"}, nil
	}

	engine := &Engine[string]{Client: client, Opts: DefaultOptions(), Prompts: prompts}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(1), client.calls.Load())
	assert.True(t, result.UsedSingleCall)
}

// TestEngine_PerCommitDispatch_MultipleCommits_NotUsedSingleCall
// checks that a plain per-commit run (Batch unset, one call per
// commit) never reports UsedSingleCall for more than one commit.
func TestEngine_PerCommitDispatch_MultipleCommits_NotUsedSingleCall(t *testing.T) {
	view := makeView(2)
	client := &fakeClient{responses: []scriptedResponse{
		{text: "commit:" + view.Commits[0].Hash},
		{text: "commit:" + view.Commits[1].Hash},
	}}

	engine := &Engine[string]{Client: client, Opts: DefaultOptions(), Prompts: stringPrompts()}
	result, err := engine.Run(context.Background(), view)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.False(t, result.UsedSingleCall)
}

func TestResolveCommitHash_FirstMatchWins(t *testing.T) {
	view := makeView(3)
	idx, ok := ResolveCommitHash(view, view.Commits[1].Hash[:8])
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = ResolveCommitHash(view, "ffffffff")
	assert.False(t, ok)
}

// TestRetryBoundFormula checks spec §4.4/§8: with MaxRetries=n, a
// client that always fails with a retryable error is called exactly
// n+1 times before the orchestrator gives up.
func TestRetryBoundFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(7)

	properties := gopter.NewProperties(parameters)

	properties.Property("total attempts equals max_retries + 1", prop.ForAll(
		func(maxRetries int) bool {
			view := makeView(1)
			client := &fakeClient{responses: []scriptedResponse{
				{err: apperrors.NewNetworkError(errors.New("down"))},
			}}
			opts := Options{Concurrency: 1, MaxRetries: maxRetries, Verb: "processed"}

			engine := &Engine[string]{Client: client, Opts: opts, Prompts: stringPrompts()}
			_, _ = engine.Run(context.Background(), view)
			return client.calls.Load() == int64(maxRetries+1)
		},
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
