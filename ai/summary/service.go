package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/reviewsense/ai/core/errs"
	"github.com/hrygo/reviewsense/ai/core/llm"
	"github.com/hrygo/reviewsense/store"
)

const (
	opSummarize = "summary.summarize"
	opRefresh   = "summary.refresh"
)

// Generation statuses reported to a Recorder.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Recorder observes cache lookups and summary generations.
type Recorder interface {
	ObserveCacheLookup(result string)
	ObserveStoreError(op string)
	ObserveGeneration(status string, duration time.Duration)
}

// Generator produces text for a prompt. Implemented by *llm.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error)
}

// ReviewReader reads the reviews to summarize.
type ReviewReader interface {
	ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error)
	ListReviewedProducts(ctx context.Context) ([]int64, error)
}

// PromptFunc builds the prompt for a cache miss.
type PromptFunc func(ctx context.Context) (string, error)

// Config holds the summary service policy.
type Config struct {
	// TTL of a generated summary.
	TTL time.Duration

	// ReviewLimit is how many of the newest reviews go into a prompt.
	ReviewLimit int

	// SingleFlight de-duplicates concurrent misses for the same key
	// within this process.
	SingleFlight bool
}

// DefaultConfig returns {TTL: 7d, ReviewLimit: 10, SingleFlight: true}.
func DefaultConfig() Config {
	return Config{
		TTL:          DefaultTTL,
		ReviewLimit:  10,
		SingleFlight: true,
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPrompts sets the prompt configuration. The embedded default is
// used otherwise.
func WithPrompts(p *PromptConfig) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.prompts = p
		}
	}
}

// Service serves summaries from the cache and generates them on a miss.
type Service struct {
	cache     *Cache
	generator Generator
	reviews   ReviewReader
	prompts   *PromptConfig
	cfg       Config
	group     singleflight.Group
	recorder  Recorder
	now       func() time.Time
	log       *slog.Logger
}

// NewService creates a Service. It fails only if the embedded prompt
// cannot be loaded and none was supplied.
func NewService(cache *Cache, generator Generator, reviews ReviewReader, cfg Config, opts ...ServiceOption) (*Service, error) {
	defaults := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.ReviewLimit <= 0 {
		cfg.ReviewLimit = defaults.ReviewLimit
	}

	s := &Service{
		cache:     cache,
		generator: generator,
		reviews:   reviews,
		cfg:       cfg,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prompts == nil {
		prompts, err := LoadPromptConfig("")
		if err != nil {
			return nil, err
		}
		s.prompts = prompts
	}
	s.log = s.log.With("component", "summary")

	return s, nil
}

// ReviewKey is the cache key of a product's review summary.
func ReviewKey(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// GetOrGenerate returns the fresh cached summary for key, or generates
// one from build, stores it and returns it.
//
// Generation and write-back run detached from ctx: a caller that gives
// up gets ctx's error, while the result is still cached.
func (s *Service) GetOrGenerate(ctx context.Context, key string, build PromptFunc) (string, error) {
	content, ok, err := s.cache.GetFresh(ctx, key, s.now())
	if err != nil {
		return "", err
	}
	if ok {
		return content, nil
	}
	return s.generate(ctx, key, build)
}

// SummarizeReviews returns the summary of a product's newest reviews.
func (s *Service) SummarizeReviews(ctx context.Context, productID int64) (string, error) {
	return s.GetOrGenerate(ctx, ReviewKey(productID), s.reviewsPrompt(productID))
}

// RefreshResult reports a RefreshStale pass.
type RefreshResult struct {
	Checked   int
	Refreshed int
	Failed    int
}

// RefreshStale regenerates summaries of reviewed products whose summary
// is missing or expired, stopping after limit attempts (0 means no
// limit). Generation failures are logged and counted; store failures
// abort the pass.
func (s *Service) RefreshStale(ctx context.Context, limit int) (*RefreshResult, error) {
	ids, err := s.reviews.ListReviewedProducts(ctx)
	if err != nil {
		return nil, errs.StoreUnavailable(opRefresh, err)
	}

	result := &RefreshResult{}
	now := s.now()
	for _, id := range ids {
		if limit > 0 && result.Refreshed+result.Failed >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Checked++
		rec, err := s.cache.Get(ctx, ReviewKey(id))
		if err != nil {
			return result, err
		}
		if rec != nil && rec.IsFresh(now) {
			continue
		}

		if _, err := s.generate(ctx, ReviewKey(id), s.reviewsPrompt(id)); err != nil {
			if errs.IsKind(err, errs.KindStoreUnavailable) {
				return result, err
			}
			s.log.Warn("Summary refresh failed", "product_id", id, "error", err)
			result.Failed++
			continue
		}
		result.Refreshed++
	}

	s.log.Info("Summary refresh done",
		"checked", result.Checked,
		"refreshed", result.Refreshed,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *Service) reviewsPrompt(productID int64) PromptFunc {
	return func(ctx context.Context) (string, error) {
		limit := s.cfg.ReviewLimit
		reviews, err := s.reviews.ListReviews(ctx, &store.FindReview{
			ProductID: &productID,
			Limit:     &limit,
		})
		if err != nil {
			return "", errs.StoreUnavailable(opSummarize, err)
		}
		if len(reviews) == 0 {
			return "", errs.InvalidInput(opSummarize, fmt.Sprintf("product %d has no reviews", productID))
		}

		contents := make([]string, 0, len(reviews))
		for _, r := range reviews {
			contents = append(contents, r.Content)
		}

		return s.prompts.BuildReviewsPrompt(&ReviewsPromptData{
			ProductID: productID,
			Count:     len(reviews),
			Reviews:   strings.Join(contents, "\n\n"),
		})
	}
}

// generate runs generateAndStore detached from ctx, shared with other
// callers for the same key when single-flight is on.
func (s *Service) generate(ctx context.Context, key string, build PromptFunc) (string, error) {
	detached := context.WithoutCancel(ctx)

	var ch <-chan singleflight.Result
	if s.cfg.SingleFlight {
		ch = s.group.DoChan(key, func() (any, error) {
			return s.generateAndStore(detached, key, build)
		})
	} else {
		solo := make(chan singleflight.Result, 1)
		go func() {
			v, err := s.generateAndStore(detached, key, build)
			solo <- singleflight.Result{Val: v, Err: err}
		}()
		ch = solo
	}

	select {
	case <-ctx.Done():
		return "", errs.GenerationFailed(opSummarize, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Service) generateAndStore(ctx context.Context, key string, build PromptFunc) (string, error) {
	log := s.log.With("request_id", uuid.NewString(), "key", key)
	start := time.Now()

	// Another caller may have stored a summary since the miss.
	if rec, err := s.cache.Get(ctx, key); err != nil {
		return "", err
	} else if rec != nil && rec.IsFresh(s.now()) {
		log.Debug("Summary filled concurrently, skipping generation")
		return rec.Content, nil
	}

	prompt, err := build(ctx)
	if err != nil {
		s.observeGeneration(StatusFailed, start)
		return "", err
	}

	text, err := s.generator.Generate(ctx, prompt, s.prompts.GenerateOptions()...)
	if err != nil {
		s.observeGeneration(StatusFailed, start)
		log.Error("Summary generation failed", "error", err)
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.observeGeneration(StatusFailed, start)
		return "", errs.GenerationFailed(opSummarize, errors.New("model returned an empty summary"))
	}

	generatedAt := s.now()
	if err := s.cache.Put(ctx, key, text, generatedAt, s.cfg.TTL); err != nil {
		s.observeGeneration(StatusFailed, start)
		log.Error("Failed to store summary", "error", err)
		return "", err
	}

	s.observeGeneration(StatusSuccess, start)
	log.Info("Summary generated",
		"length", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

func (s *Service) observeGeneration(status string, start time.Time) {
	if s.recorder != nil {
		s.recorder.ObserveGeneration(status, time.Since(start))
	}
}
