package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/SteelMorgan/cwtail/internal/observability"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ErrTooManyPages is returned when the listing keeps returning continuation
// tokens past the configured page limit
var ErrTooManyPages = errors.New("group listing exceeded page limit")

// Config controls pagination of the group listing
type Config struct {
	ProbePageSize int32         // Page size of the first call (default: 1)
	PageSize      int32         // Page size of the following calls (default: 50)
	MaxPages      int           // Safety cap on the number of calls (default: 1000)
	CallTimeout   time.Duration // Timeout of a single listing call, 0 disables it
}

// DefaultConfig returns default pagination settings
func DefaultConfig() Config {
	return Config{
		ProbePageSize: 1,
		PageSize:      50,
		MaxPages:      1000,
		CallTimeout:   10 * time.Second,
	}
}

// Builder builds the immutable set of log groups polled during a run
type Builder struct {
	lister fetcher.GroupLister
	cfg    Config
}

// NewBuilder creates a catalog builder
func NewBuilder(lister fetcher.GroupLister, cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.ProbePageSize <= 0 {
		cfg.ProbePageSize = def.ProbePageSize
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	return &Builder{lister: lister, cfg: cfg}
}

// Build lists every group whose name starts with prefix and keeps those whose
// name contains filter. An empty filter keeps all groups.
// Fetch failures are returned wrapped, the original error stays reachable with errors.As.
func (b *Builder) Build(ctx context.Context, prefix, filter string) ([]domain.LogGroup, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.Build",
		attribute.String("catalog.prefix", prefix),
		attribute.String("catalog.filter", filter),
	)

	groups, pages, err := b.listAll(ctx, prefix)
	if err != nil {
		observability.EndSpanWithError(span, err, "failed to list log groups")
		return nil, err
	}

	result := Filter(groups, filter)

	span.SetAttributes(
		attribute.Int("catalog.pages", pages),
		attribute.Int("catalog.listed", len(groups)),
		attribute.Int("catalog.matched", len(result)),
	)
	observability.EndSpanSuccess(span)

	log.Info().
		Str("prefix", prefix).
		Str("filter", filter).
		Int("pages", pages).
		Int("listed", len(groups)).
		Int("matched", len(result)).
		Msg("Log group catalog built")

	return result, nil
}

// listAll pages through the listing. Returns accumulated groups and number of calls made.
func (b *Builder) listAll(ctx context.Context, prefix string) ([]domain.LogGroup, int, error) {
	req := fetcher.ListGroupsRequest{
		Limit:  b.cfg.ProbePageSize,
		Prefix: prefix,
	}

	page, err := b.listPage(ctx, req)
	if err != nil {
		return nil, 1, err
	}

	// No group list on the probe means nothing to tail
	if page.Groups == nil {
		return nil, 1, nil
	}

	all := append([]domain.LogGroup(nil), page.Groups...)
	pages := 1

	for page.NextToken != "" {
		if pages >= b.cfg.MaxPages {
			return nil, pages, fmt.Errorf("%w (%d pages)", ErrTooManyPages, pages)
		}

		req = fetcher.ListGroupsRequest{
			Limit:     b.cfg.PageSize,
			Prefix:    prefix,
			NextToken: page.NextToken,
		}

		page, err = b.listPage(ctx, req)
		pages++
		if err != nil {
			return nil, pages, err
		}

		all = append(all, page.Groups...)

		log.Debug().
			Int("page", pages).
			Int("groups", len(page.Groups)).
			Bool("has_next", page.NextToken != "").
			Msg("Log group page fetched")
	}

	return all, pages, nil
}

func (b *Builder) listPage(ctx context.Context, req fetcher.ListGroupsRequest) (fetcher.ListGroupsPage, error) {
	if err := ctx.Err(); err != nil {
		return fetcher.ListGroupsPage{}, err
	}

	callCtx := ctx
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	page, err := b.lister.ListGroups(callCtx, req)
	if err != nil {
		return fetcher.ListGroupsPage{}, fmt.Errorf("failed to list log groups: %w", err)
	}
	return page, nil
}

// Filter keeps groups whose name contains substr. Empty substr keeps everything.
func Filter(groups []domain.LogGroup, substr string) []domain.LogGroup {
	result := make([]domain.LogGroup, 0, len(groups))
	for _, g := range groups {
		if strings.Contains(g.Name, substr) {
			result = append(result, g)
		}
	}
	return result
}
