package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/SteelMorgan/cwtail/internal/catalog"
	"github.com/SteelMorgan/cwtail/internal/classify"
	"github.com/SteelMorgan/cwtail/internal/config"
	"github.com/SteelMorgan/cwtail/internal/dedup"
	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/SteelMorgan/cwtail/internal/observability"
	"github.com/SteelMorgan/cwtail/internal/scheduler"
	"github.com/SteelMorgan/cwtail/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Option configures TailerService
type Option func(*TailerService)

// WithClock replaces the wall clock used for windows and pacing
func WithClock(clock scheduler.Clock) Option {
	return func(s *TailerService) {
		s.clock = clock
	}
}

// WithRunID sets the run identifier instead of a random one
func WithRunID(id string) Option {
	return func(s *TailerService) {
		s.runID = id
	}
}

// TailerService discovers the catalog once and then polls it until stopped
type TailerService struct {
	cfg     *config.Config
	fetcher fetcher.EventFetcher
	sink    sink.Sink
	clock   scheduler.Clock
	runID   string
}

// NewTailerService creates a new tailer service
func NewTailerService(cfg *config.Config, f fetcher.EventFetcher, s sink.Sink, opts ...Option) (*TailerService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if f == nil {
		return nil, fmt.Errorf("event fetcher is required")
	}
	if s == nil {
		return nil, fmt.Errorf("sink is required")
	}

	svc := &TailerService{
		cfg:     cfg,
		fetcher: f,
		sink:    s,
		clock:   scheduler.SystemClock{},
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RunID identifies this process run in logs and archived rows
func (s *TailerService) RunID() string {
	return s.runID
}

// BuildCatalog lists the groups matching the configured prefix and filter
func (s *TailerService) BuildCatalog(ctx context.Context) ([]domain.LogGroup, error) {
	builder := catalog.NewBuilder(s.fetcher, catalog.Config{
		ProbePageSize: int32(s.cfg.Tail.ProbePageSize),
		PageSize:      int32(s.cfg.Tail.PageSize),
		CallTimeout:   s.cfg.Tail.FetchTimeout,
	})

	groups, err := builder.Build(ctx, s.cfg.Tail.GroupPrefix, s.cfg.Tail.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build log group catalog: %w", err)
	}
	return groups, nil
}

// Start builds the catalog and polls until ctx is cancelled.
// A catalog failure is returned immediately; per-group fetch failures never are.
func (s *TailerService) Start(ctx context.Context) error {
	log.Info().
		Str("run_id", s.runID).
		Str("filter", s.cfg.Tail.Filter).
		Str("prefix", s.cfg.Tail.GroupPrefix).
		Msg("Tailer service starting...")

	observability.SetRunID(s.runID)

	groups, err := s.BuildCatalog(ctx)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		log.Warn().
			Str("filter", s.cfg.Tail.Filter).
			Msg("No log groups match the filter, nothing will be shown")
	} else {
		log.Info().
			Strs("log_groups", domain.GroupNames(groups)).
			Msg("Tailing log groups")
	}

	sched := scheduler.New(
		SchedulerConfig(s.cfg),
		s.fetcher,
		groups,
		dedup.New(s.cfg.Dedup.MaxSize),
		classify.New(s.cfg.Tail.RateLimitDelay),
		s.sink,
		s.clock,
	)

	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop releases the sink
func (s *TailerService) Stop() error {
	log.Info().Str("run_id", s.runID).Msg("Tailer service stopping...")

	if c, ok := s.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close sink: %w", err)
		}
	}
	return nil
}

// SchedulerConfig maps application settings onto the polling loop
func SchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Lookback:        cfg.Tail.Lookback,
		BatchSize:       cfg.Tail.BatchSize,
		InterGroupDelay: cfg.Tail.InterGroupDelay,
		InterBatchDelay: cfg.Tail.InterBatchDelay,
		InterCycleDelay: cfg.Tail.InterCycleDelay,
		ResetCooldown:   cfg.Dedup.Cooldown,
		FetchTimeout:    cfg.Tail.FetchTimeout,
	}
}
