package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/reviewsense/ai/core/errs"
	"github.com/hrygo/reviewsense/store"
)

type serviceFixture struct {
	store    *memStore
	cache    *Cache
	gen      *fakeGenerator
	reviews  *fakeReviews
	recorder *fakeRecorder
	clock    *clock
	svc      *Service
}

func newServiceFixture(t *testing.T, gen *fakeGenerator, cfg Config) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store: newMemStore(),
		gen:   gen,
		reviews: &fakeReviews{byProduct: map[int64][]string{
			1:  {"Love it."},
			42: {"Great battery.", "Screen scratches easily.", "Fast shipping."},
		}},
		recorder: newFakeRecorder(),
		clock:    &clock{now: t0},
	}
	f.cache = NewCache(f.store, WithCacheRecorder(f.recorder))

	svc, err := NewService(f.cache, gen, f.reviews, cfg,
		WithRecorder(f.recorder),
		WithClock(f.clock.Now),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestService_MissGeneratesAndStores(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: "  Mostly positive.  "}, DefaultConfig())

	got, err := f.svc.SummarizeReviews(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Mostly positive.", got)

	require.Equal(t, 1, f.gen.calls())
	assert.Contains(t, f.gen.prompts[0], "Great battery.\n\nScreen scratches easily.\n\nFast shipping.")
	assert.Equal(t, 300, f.gen.opts[0].MaxOutputTokens)

	rec, err := f.cache.Get(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Mostly positive.", rec.Content)
	assert.True(t, rec.ExpiresAt.Equal(t0.Add(DefaultTTL)))

	assert.Equal(t, 1, f.recorder.generations[StatusSuccess])
	assert.Equal(t, 1, f.recorder.lookups[LookupMiss])
}

func TestService_HitSkipsGeneration(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: "fresh"}, DefaultConfig())
	require.NoError(t, f.cache.Put(ctx, "42", "cached", t0.Add(-time.Hour), DefaultTTL))

	got, err := f.svc.SummarizeReviews(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "cached", got)
	assert.Zero(t, f.gen.calls())
	assert.Equal(t, 1, f.recorder.lookups[LookupHit])
}

func TestService_ExpiredIsRegenerated(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: "Mixed reviews"}, DefaultConfig())
	require.NoError(t, f.cache.Put(ctx, "42", "Great product", t0, DefaultTTL))

	f.clock.Advance(8 * 24 * time.Hour)
	got, err := f.svc.SummarizeReviews(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Mixed reviews", got)
	assert.Equal(t, 1, f.store.len())
	assert.Equal(t, 1, f.recorder.lookups[LookupStale])
}

func TestService_ReviewLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReviewLimit = 2
	f := newServiceFixture(t, &fakeGenerator{text: "ok"}, cfg)

	_, err := f.svc.SummarizeReviews(context.Background(), 42)
	require.NoError(t, err)
	assert.Contains(t, f.gen.prompts[0], "Screen scratches easily.")
	assert.NotContains(t, f.gen.prompts[0], "Fast shipping.")
}

func TestService_NoReviews(t *testing.T) {
	f := newServiceFixture(t, &fakeGenerator{text: "unused"}, DefaultConfig())

	_, err := f.svc.SummarizeReviews(context.Background(), 99)
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	assert.Zero(t, f.gen.calls())
	assert.Zero(t, f.store.len())
}

func TestService_EmptyModelOutput(t *testing.T) {
	f := newServiceFixture(t, &fakeGenerator{text: " \n "}, DefaultConfig())

	_, err := f.svc.SummarizeReviews(context.Background(), 42)
	assert.Equal(t, errs.KindGenerationFailed, errs.KindOf(err))
	assert.Zero(t, f.store.len())
	assert.Equal(t, 1, f.recorder.generations[StatusFailed])
}

func TestService_GenerationErrorPassesThrough(t *testing.T) {
	cause := errs.GenerationFailed("llm.generate", errors.New("quota exhausted"))
	f := newServiceFixture(t, &fakeGenerator{err: cause}, DefaultConfig())

	_, err := f.svc.SummarizeReviews(context.Background(), 42)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, f.store.len())
}

func TestService_StoreDownOnLookup(t *testing.T) {
	f := newServiceFixture(t, &fakeGenerator{text: "x"}, DefaultConfig())
	f.store.getErr = errors.New("disk I/O error")

	_, err := f.svc.SummarizeReviews(context.Background(), 42)
	assert.Equal(t, errs.KindStoreUnavailable, errs.KindOf(err))
	assert.Zero(t, f.gen.calls())
}

func TestService_StoreDownOnWrite(t *testing.T) {
	f := newServiceFixture(t, &fakeGenerator{text: "x"}, DefaultConfig())
	f.store.putErr = errors.New("read-only database")

	_, err := f.svc.SummarizeReviews(context.Background(), 42)
	assert.Equal(t, errs.KindStoreUnavailable, errs.KindOf(err))
	assert.Equal(t, 1, f.gen.calls())
}

func TestService_GetOrGenerateCustomKey(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: "digest"}, DefaultConfig())

	build := func(context.Context) (string, error) { return "summarize this", nil }
	got, err := f.svc.GetOrGenerate(ctx, "weekly:2026-10", build)
	require.NoError(t, err)
	assert.Equal(t, "digest", got)
	assert.Equal(t, []string{"summarize this"}, f.gen.prompts)

	_, err = f.svc.GetOrGenerate(ctx, "", build)
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
}

func TestService_SingleFlight(t *testing.T) {
	gen := newBlockingGenerator("shared")
	f := newServiceFixture(t, gen, DefaultConfig())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	failures := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], failures[0] = f.svc.SummarizeReviews(context.Background(), 42)
	}()
	<-gen.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], failures[i] = f.svc.SummarizeReviews(context.Background(), 42)
		}(i)
	}
	// Followers either join the in-flight call or, arriving after it
	// finished, hit the cache.
	time.Sleep(20 * time.Millisecond)
	close(gen.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, failures[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.Equal(t, 1, gen.calls())
	assert.Equal(t, 1, f.store.upserts)
}

func TestService_WithoutSingleFlight(t *testing.T) {
	gen := newBlockingGenerator("own")
	cfg := DefaultConfig()
	cfg.SingleFlight = false
	f := newServiceFixture(t, gen, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.SummarizeReviews(context.Background(), 42)
			assert.NoError(t, err)
			assert.Equal(t, "own", got)
		}()
	}
	// Both callers reach the model before either finishes.
	<-gen.started
	<-gen.started
	close(gen.release)
	wg.Wait()

	assert.Equal(t, 2, gen.calls())
	assert.Equal(t, 1, f.store.len())
}

func TestService_CallerCancelStillStores(t *testing.T) {
	gen := newBlockingGenerator("late but stored")
	f := newServiceFixture(t, gen, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SummarizeReviews(ctx, 42)
		done <- err
	}()

	<-gen.started
	cancel()
	err := <-done
	assert.Equal(t, errs.KindGenerationFailed, errs.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	close(gen.release)
	require.Eventually(t, func() bool {
		rec, err := f.cache.Get(context.Background(), "42")
		return err == nil && rec != nil && rec.Content == "late but stored"
	}, time.Second, 5*time.Millisecond)
}

func TestService_RefreshStale(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: "refreshed"}, DefaultConfig())
	f.reviews.byProduct[7] = []string{"Meh."}

	require.NoError(t, f.cache.Put(ctx, "1", "still fresh", t0, DefaultTTL))
	require.NoError(t, f.cache.Put(ctx, "42", "expired", t0.Add(-8*24*time.Hour), DefaultTTL))

	result, err := f.svc.RefreshStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &RefreshResult{Checked: 3, Refreshed: 2, Failed: 0}, result)

	for key, want := range map[string]string{"1": "still fresh", "7": "refreshed", "42": "refreshed"} {
		rec, err := f.cache.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, rec, key)
		assert.Equal(t, want, rec.Content, key)
	}
}

func TestService_RefreshStaleLimitAndFailures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &fakeGenerator{text: ""}, DefaultConfig())

	result, err := f.svc.RefreshStale(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &RefreshResult{Checked: 1, Refreshed: 0, Failed: 1}, result)

	result, err = f.svc.RefreshStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
}

func TestService_RefreshStaleStoreDown(t *testing.T) {
	f := newServiceFixture(t, &fakeGenerator{text: "x"}, DefaultConfig())
	f.reviews.err = errors.New("connection reset")

	_, err := f.svc.RefreshStale(context.Background(), 0)
	assert.Equal(t, errs.KindStoreUnavailable, errs.KindOf(err))
}

func TestService_OverSQLite(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	for _, content := range []string{"Sturdy and light.", "Zipper broke after a week."} {
		_, err := s.CreateReview(ctx, &store.Review{ProductID: 42, Author: "a", Rating: 3, Content: content})
		require.NoError(t, err)
	}

	gen := &fakeGenerator{text: "Light but fragile."}
	svc, err := NewService(NewCache(s), gen, s, DefaultConfig())
	require.NoError(t, err)

	got, err := svc.SummarizeReviews(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Light but fragile.", got)

	got, err = svc.SummarizeReviews(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Light but fragile.", got)
	assert.Equal(t, 1, gen.calls())
	assert.True(t, strings.Contains(gen.prompts[0], "Zipper broke after a week."))
}
