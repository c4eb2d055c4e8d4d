package summary

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/reviewsense/ai/core/llm"
	"github.com/hrygo/reviewsense/store"
)

// memStore is an in-memory Store with one record per key.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]store.ReviewSummary
	gets    int
	upserts int
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]store.ReviewSummary)}
}

func (m *memStore) GetReviewSummary(_ context.Context, key string) (*store.ReviewSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	row, ok := m.rows[key]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memStore) UpsertReviewSummary(_ context.Context, upsert *store.UpsertReviewSummary) (*store.ReviewSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.putErr != nil {
		return nil, m.putErr
	}
	row := store.ReviewSummary{
		Key:         upsert.Key,
		Content:     upsert.Content,
		GeneratedNs: upsert.GeneratedNs,
		ExpiresNs:   upsert.ExpiresNs,
	}
	m.rows[upsert.Key] = row
	return &row, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// fakeGenerator returns text (or err) and records prompts. When block is
// set, each call signals started and waits for release.
type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
	opts    []llm.GenerateRequest

	block   bool
	started chan struct{}
	release chan struct{}
}

func newBlockingGenerator(text string) *fakeGenerator {
	return &fakeGenerator{
		text:    text,
		block:   true,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	req := llm.GenerateRequest{Prompt: prompt}
	for _, opt := range opts {
		opt(&req)
	}

	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, req)
	g.mu.Unlock()

	if g.block {
		g.started <- struct{}{}
		<-g.release
	}
	return g.text, g.err
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// fakeReviews serves reviews per product, newest first.
type fakeReviews struct {
	byProduct map[int64][]string
	err       error
}

func (f *fakeReviews) ListReviews(_ context.Context, find *store.FindReview) ([]*store.Review, error) {
	if f.err != nil {
		return nil, f.err
	}
	contents := f.byProduct[*find.ProductID]
	if find.Limit != nil && len(contents) > *find.Limit {
		contents = contents[:*find.Limit]
	}
	reviews := make([]*store.Review, 0, len(contents))
	for i, c := range contents {
		reviews = append(reviews, &store.Review{ID: int64(i + 1), ProductID: *find.ProductID, Content: c})
	}
	return reviews, nil
}

func (f *fakeReviews) ListReviewedProducts(context.Context) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]int64, 0, len(f.byProduct))
	for id, contents := range f.byProduct {
		if len(contents) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// fakeRecorder counts observations.
type fakeRecorder struct {
	mu          sync.Mutex
	lookups     map[string]int
	storeErrors map[string]int
	generations map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		lookups:     make(map[string]int),
		storeErrors: make(map[string]int),
		generations: make(map[string]int),
	}
}

func (r *fakeRecorder) ObserveCacheLookup(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[result]++
}

func (r *fakeRecorder) ObserveStoreError(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrors[op]++
}

func (r *fakeRecorder) ObserveGeneration(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[status]++
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
