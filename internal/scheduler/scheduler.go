package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SteelMorgan/cwtail/internal/classify"
	"github.com/SteelMorgan/cwtail/internal/dedup"
	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/SteelMorgan/cwtail/internal/observability"
	"github.com/SteelMorgan/cwtail/internal/sink"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds window and pacing settings of the polling loop
type Config struct {
	Lookback        time.Duration // Window start = now - Lookback (default: 30s)
	BatchSize       int           // Groups per batch (default: 5)
	InterGroupDelay time.Duration // Pause after each group (default: 50ms)
	InterBatchDelay time.Duration // Pause after each batch (default: 500ms)
	InterCycleDelay time.Duration // Pause after each full pass (default: 10s)
	ResetCooldown   time.Duration // Extra pause after the dedup set was reset (default: 20s)
	FetchTimeout    time.Duration // Bound of a single fetch call (default: 10s)
}

// DefaultConfig returns default scheduler settings
func DefaultConfig() Config {
	return Config{
		Lookback:        30 * time.Second,
		BatchSize:       5,
		InterGroupDelay: 50 * time.Millisecond,
		InterBatchDelay: 500 * time.Millisecond,
		InterCycleDelay: 10 * time.Second,
		ResetCooldown:   20 * time.Second,
		FetchTimeout:    10 * time.Second,
	}
}

// CycleStats summarizes one pass over the catalog
type CycleStats struct {
	WindowStart int64 // Epoch milliseconds
	Batches     int
	Groups      int
	Fetched     int
	Accepted    int
	Failures    map[classify.Kind]int
	SinkErrors  int
}

// Scheduler owns the polling state of a run: the catalog and the dedup set
type Scheduler struct {
	cfg        Config
	source     fetcher.EventSource
	groups     []domain.LogGroup
	dedup      *dedup.Deduplicator
	classifier *classify.Classifier
	sink       sink.Sink
	clock      Clock
}

// New creates a scheduler over a fixed catalog
func New(cfg Config, source fetcher.EventSource, groups []domain.LogGroup, d *dedup.Deduplicator, c *classify.Classifier, s sink.Sink, clock Clock) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if clock == nil {
		clock = SystemClock{}
	}
	catalog := make([]domain.LogGroup, len(groups))
	copy(catalog, groups)

	return &Scheduler{
		cfg:        cfg,
		source:     source,
		groups:     catalog,
		dedup:      d,
		classifier: c,
		sink:       s,
		clock:      clock,
	}
}

// Run polls until ctx is cancelled. Fetch failures never stop the loop;
// the only return value is the context error.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Int("groups", len(s.groups)).
		Int("batch_size", s.cfg.BatchSize).
		Dur("lookback", s.cfg.Lookback).
		Dur("cycle_delay", s.cfg.InterCycleDelay).
		Int("dedup_max_size", s.dedup.MaxSize()).
		Msg("Starting polling scheduler")

	// Nothing to poll: the catalog is fixed for the run
	if len(s.groups) == 0 {
		log.Warn().Msg("Catalog is empty, waiting for shutdown")
		<-ctx.Done()
		return ctx.Err()
	}

	for cycle := 1; ; cycle++ {
		stats, err := s.RunCycle(ctx)
		if err != nil {
			return err
		}

		log.Debug().
			Int("cycle", cycle).
			Int64("window_start", stats.WindowStart).
			Int("groups", stats.Groups).
			Int("fetched", stats.Fetched).
			Int("accepted", stats.Accepted).
			Int("failures", stats.failureCount()).
			Int("dedup_size", s.dedup.Size()).
			Msg("Polling cycle completed")

		if err := s.clock.Sleep(ctx, s.cfg.InterCycleDelay); err != nil {
			return err
		}

		if s.dedup.ResetIfFull() {
			log.Warn().
				Int("dedup_max_size", s.dedup.MaxSize()).
				Dur("cooldown", s.cfg.ResetCooldown).
				Msg("Dedup set reset, recent events may be shown again")

			if err := s.clock.Sleep(ctx, s.cfg.ResetCooldown); err != nil {
				return err
			}
		}
	}
}

// RunCycle performs one pass over all batches of the catalog.
// Returns a non-nil error only when ctx is done.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	windowStart := s.clock.Now().Add(-s.cfg.Lookback).UnixMilli()
	stats := CycleStats{
		WindowStart: windowStart,
		Failures:    make(map[classify.Kind]int),
	}

	ctx, span := observability.StartSpan(ctx, "scheduler.cycle",
		observability.AttrWindowStart.Int64(windowStart),
		attribute.Int("catalog.groups", len(s.groups)),
	)

	err := s.runBatches(ctx, windowStart, &stats)

	span.SetAttributes(
		attribute.Int("cycle.fetched", stats.Fetched),
		attribute.Int("cycle.accepted", stats.Accepted),
		attribute.Int("cycle.failures", stats.failureCount()),
	)
	if err != nil {
		observability.EndSpanWithError(span, err, "cycle interrupted")
		return stats, err
	}
	observability.EndSpanSuccess(span)
	return stats, nil
}

func (s *Scheduler) runBatches(ctx context.Context, windowStart int64, stats *CycleStats) error {
	for _, batch := range Batches(s.groups, s.cfg.BatchSize) {
		stats.Batches++

		for _, group := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.pollGroup(ctx, group.Name, windowStart, stats); err != nil {
				return err
			}
			if err := s.clock.Sleep(ctx, s.cfg.InterGroupDelay); err != nil {
				return err
			}
		}

		if err := s.clock.Sleep(ctx, s.cfg.InterBatchDelay); err != nil {
			return err
		}
	}
	return nil
}

// pollGroup fetches one group and routes the outcome.
// Returns an error only when ctx is done.
func (s *Scheduler) pollGroup(ctx context.Context, group string, windowStart int64, stats *CycleStats) error {
	stats.Groups++

	ctx, span := observability.StartFetchSpan(ctx, group, windowStart)

	events, err := s.fetch(ctx, group, windowStart)
	if err != nil {
		// Cancellation of the run is not a fetch failure
		if ctx.Err() != nil {
			observability.EndSpanWithError(span, ctx.Err(), "fetch interrupted")
			return ctx.Err()
		}

		observability.EndSpanWithError(span, err, "fetch failed")
		return s.handleFailure(ctx, group, err, stats)
	}

	stats.Fetched += len(events)
	accepted := 0

	for _, event := range events {
		if !s.dedup.Accept(event) {
			continue
		}
		accepted++

		event.SourceGroup = group
		if err := s.sink.Emit(ctx, event); err != nil {
			stats.SinkErrors++
			log.Warn().
				Err(err).
				Str("log_group", group).
				Str("event_id", event.EventID).
				Msg("Sink failed to consume event")
		}
	}
	stats.Accepted += accepted

	span.SetAttributes(
		attribute.Int("events.fetched", len(events)),
		attribute.Int("events.accepted", accepted),
	)
	observability.EndSpanSuccess(span)
	return nil
}

func (s *Scheduler) fetch(ctx context.Context, group string, windowStart int64) ([]domain.LogEvent, error) {
	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	events, err := s.source.FilterEvents(fetchCtx, group, windowStart)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	return events, nil
}

func (s *Scheduler) handleFailure(ctx context.Context, group string, err error, stats *CycleStats) error {
	decision := s.classifier.Classify(err)
	stats.Failures[decision.Kind]++

	evt := log.Warn()
	if decision.Kind == classify.KindCredentials {
		evt = log.Error()
	}
	evt.
		Str("log_group", group).
		Str("error_kind", decision.Kind.String()).
		Str("action", decision.Action.String()).
		Str("detail", decision.Detail).
		Msg("Failed to fetch log events")

	if decision.Action == classify.ActionBackoff {
		log.Info().
			Str("log_group", group).
			Dur("delay", decision.Delay).
			Msg("Rate limited, pausing batch")
		return s.clock.Sleep(ctx, decision.Delay)
	}
	return nil
}

func (c CycleStats) failureCount() int {
	n := 0
	for _, v := range c.Failures {
		n += v
	}
	return n
}

// Batches splits items into consecutive chunks of at most size elements
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
