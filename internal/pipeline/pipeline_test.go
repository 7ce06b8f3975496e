package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendpipe/internal/docstore"
	"trendpipe/internal/job"
	"trendpipe/internal/market"
	"trendpipe/internal/testutil"
)

type fakeDiscoverer struct {
	trends []docstore.Trend
	err    error
	block  bool
	calls  atomic.Int64
}

func (f *fakeDiscoverer) Discover(ctx context.Context) ([]docstore.Trend, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.trends, nil
}

type fakeSynthesizer struct {
	ideas     []docstore.Idea
	err       error
	panicWith string
	calls     atomic.Int64
	gotTrends atomic.Int64
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, trends []docstore.Trend) ([]docstore.Idea, error) {
	f.calls.Add(1)
	f.gotTrends.Store(int64(len(trends)))
	if f.panicWith != "" {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ideas, nil
}

type fakeGenerator struct {
	err   error
	runID string // overrides the real run id when set
	calls atomic.Int64
}

func (f *fakeGenerator) Generate(ctx context.Context, runID string, ideas []docstore.Idea) (*docstore.Manifest, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.runID != "" {
		runID = f.runID
	}
	m := &docstore.Manifest{GeneratedAt: time.Now().UTC().Format(time.RFC3339), RunID: runID}
	for i, idea := range ideas {
		m.Images = append(m.Images, docstore.ImageAsset{
			ID:        runID + "-" + string(rune('a'+i)),
			Title:     idea.Title,
			Style:     idea.Style,
			ImagePath: "/tmp/" + idea.Title + ".png",
		})
	}
	return m, nil
}

type fakePublisher struct {
	configured bool
	res        market.Result
	err        error
	calls      atomic.Int64
}

func (f *fakePublisher) Configured() bool { return f.configured }

func (f *fakePublisher) Publish(ctx context.Context, m *docstore.Manifest) (market.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return market.Result{}, f.err
	}
	return f.res, nil
}

type fixture struct {
	store       *job.Store
	docs        *docstore.Store
	discoverer  *fakeDiscoverer
	synthesizer *fakeSynthesizer
	generator   *fakeGenerator
	publisher   *fakePublisher
	runner      *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := docstore.New(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store: job.NewStore(job.DefaultCapacity),
		docs:  docs,
		discoverer: &fakeDiscoverer{trends: []docstore.Trend{
			{Title: "Warm minimalism", Content: "muted palettes", Source: "https://example.com/a"},
			{Title: "Retro futurism", Content: "chrome and neon", Source: "https://example.com/b"},
		}},
		synthesizer: &fakeSynthesizer{ideas: []docstore.Idea{
			{Title: "Dawn Grid", Description: "warm geometric print", Style: "minimalist", Prompt: "a warm minimal grid"},
			{Title: "Neon Drive", Description: "retro chrome skyline", Style: "retro", Prompt: "a neon retro skyline"},
		}},
		generator: &fakeGenerator{},
		publisher: &fakePublisher{configured: true, res: market.Result{Uploaded: 2}},
	}
	f.runner = NewRunner(Config{
		Store:       f.store,
		Docs:        docs,
		Discoverer:  f.discoverer,
		Synthesizer: f.synthesizer,
		Generator:   f.generator,
		Publisher:   f.publisher,
		Timeout:     5 * time.Second,
	})
	return f
}

func (f *fixture) startJob(t *testing.T) string {
	t.Helper()
	id := "run-" + t.Name()
	f.store.Create(id)
	f.runner.Start(id)
	return id
}

func waitTerminal(t *testing.T, store *job.Store, id string) job.Record {
	t.Helper()
	testutil.MustWaitFor(t, func() bool {
		rec, ok := store.Get(id)
		return ok && rec.Status.Terminal()
	})
	rec, _ := store.Get(id)
	return rec
}

func hasLog(rec job.Record, typ, substr string) bool {
	for _, entry := range rec.Logs {
		if entry.Type == typ && strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunner_CompletesAllStages(t *testing.T) {
	f := newFixture(t)
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Nil(t, rec.Error)
	assert.True(t, hasLog(rec, job.LogSuccess, "Found 2 design trends"))
	assert.True(t, hasLog(rec, job.LogSuccess, "Generated 2 product ideas"))
	assert.True(t, hasLog(rec, job.LogSuccess, "Generated 2 images"))
	assert.True(t, hasLog(rec, job.LogSuccess, "Uploaded 2 draft listing(s)"))
	assert.True(t, hasLog(rec, job.LogSuccess, "Pipeline completed successfully"))

	manifest, err := f.docs.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, id, manifest.RunID)
	assert.Equal(t, int64(1), f.publisher.calls.Load())
}

func TestRunner_DiscoveryFailureFallsBackToSamples(t *testing.T) {
	f := newFixture(t)
	f.discoverer.err = assert.AnError
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.True(t, hasLog(rec, job.LogWarning, assert.AnError.Error()))
	assert.True(t, hasLog(rec, job.LogSuccess, "built-in sample trends"))
	// Downstream stages consumed the fallback document.
	assert.Equal(t, int64(5), f.synthesizer.gotTrends.Load())
}

func TestRunner_SynthesisFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.synthesizer.err = assert.AnError
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, assert.AnError.Error())
	assert.True(t, hasLog(rec, job.LogError, "Pipeline failed"))
	assert.Equal(t, 25, rec.Progress)
	assert.Equal(t, int64(0), f.generator.calls.Load())
	assert.Equal(t, int64(0), f.publisher.calls.Load())
}

func TestRunner_PublishSkippedWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	f.publisher.configured = false
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.True(t, hasLog(rec, job.LogInfo, "skipping publish"))
	assert.Equal(t, int64(0), f.publisher.calls.Load())
}

func TestRunner_PublishReportsPartialFailures(t *testing.T) {
	f := newFixture(t)
	f.publisher.res = market.Result{Uploaded: 2, Failed: 1}
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.True(t, hasLog(rec, job.LogSuccess, "Uploaded 2 draft listing(s), 1 failed"))
}

func TestRunner_PublishFailureIsRecoverable(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = assert.AnError
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.True(t, hasLog(rec, job.LogWarning, assert.AnError.Error()))
	assert.True(t, hasLog(rec, job.LogSuccess, "Continuing without publish results"))
}

func TestRunner_StaleManifestIsNotPublished(t *testing.T) {
	f := newFixture(t)
	f.generator.runID = "some-earlier-run"
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusCompleted, rec.Status)
	assert.True(t, hasLog(rec, job.LogWarning, "refusing to publish"))
	assert.Equal(t, int64(0), f.publisher.calls.Load())
}

func TestRunner_TimeoutFailsJob(t *testing.T) {
	f := newFixture(t)
	f.discoverer.block = true
	f.runner.timeout = 50 * time.Millisecond
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "timed out")
}

func TestRunner_StagePanicFailsJob(t *testing.T) {
	f := newFixture(t)
	f.synthesizer.panicWith = "nil idea slice"
	id := f.startJob(t)

	rec := waitTerminal(t, f.store, id)

	assert.Equal(t, job.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "pipeline panicked")
}

func TestRunner_UnknownJobIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.runner.Start("never-created")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, int64(0), f.discoverer.calls.Load())
}
