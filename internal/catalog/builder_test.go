package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLister serves pages in order and records every request
type fakeLister struct {
	pages    []fetcher.ListGroupsPage
	err      error
	errAt    int
	requests []fetcher.ListGroupsRequest
}

func (f *fakeLister) ListGroups(ctx context.Context, req fetcher.ListGroupsRequest) (fetcher.ListGroupsPage, error) {
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if f.err != nil && idx == f.errAt {
		return fetcher.ListGroupsPage{}, f.err
	}
	if idx >= len(f.pages) {
		return fetcher.ListGroupsPage{}, fmt.Errorf("unexpected call %d", idx)
	}
	return f.pages[idx], nil
}

func groups(names ...string) []domain.LogGroup {
	result := make([]domain.LogGroup, 0, len(names))
	for _, n := range names {
		result = append(result, domain.LogGroup{Name: n})
	}
	return result
}

func TestBuildSinglePageProbe(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{{Groups: groups("svc-a")}},
	}

	got, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, groups("svc-a"), got)
	require.Len(t, lister.requests, 1, "no second call after a page without token")
	assert.Equal(t, int32(1), lister.requests[0].Limit)
	assert.Empty(t, lister.requests[0].NextToken)
}

func TestBuildPaginatesAndFilters(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{
			{Groups: groups("/ecs/svc-a"), NextToken: "t1"},
			{Groups: groups("/ecs/svc-b", "/ecs/worker"), NextToken: "t2"},
			{Groups: []domain.LogGroup{}, NextToken: "t3"},
			{Groups: groups("/ecs/svc-c")},
		},
	}

	got, err := NewBuilder(lister, Config{ProbePageSize: 1, PageSize: 50}).Build(context.Background(), "/ecs/", "svc")
	require.NoError(t, err)

	assert.ElementsMatch(t, groups("/ecs/svc-a", "/ecs/svc-b", "/ecs/svc-c"), got)
	require.Len(t, lister.requests, 4)
	assert.Equal(t, int32(1), lister.requests[0].Limit)
	for i, req := range lister.requests[1:] {
		assert.Equal(t, int32(50), req.Limit)
		assert.Equal(t, fmt.Sprintf("t%d", i+1), req.NextToken)
	}
	for _, req := range lister.requests {
		assert.Equal(t, "/ecs/", req.Prefix)
	}
}

func TestBuildEmptyFilterMatchesAll(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{
			{Groups: groups("a"), NextToken: "t1"},
			{Groups: groups("b", "c")},
		},
	}

	got, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBuildProbeIsFiltered(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{{Groups: groups("svc-a")}},
	}

	got, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "billing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildAbsentGroupListIsEmptyCatalog(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{{Groups: nil, NextToken: "t1"}},
	}

	got, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, lister.requests, 1)
}

func TestBuildAbsentListOnLaterPageContinues(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{
			{Groups: groups("a"), NextToken: "t1"},
			{Groups: nil, NextToken: "t2"},
			{Groups: groups("b")},
		},
	}

	got, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, groups("a", "b"), got)
}

func TestBuildPropagatesFetchError(t *testing.T) {
	apiErr := &fetcher.APIError{Operation: "DescribeLogGroups", Code: "AccessDeniedException", Message: "denied"}
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{{Groups: groups("a"), NextToken: "t1"}},
		err:   apiErr,
		errAt: 1,
	}

	_, err := NewBuilder(lister, DefaultConfig()).Build(context.Background(), "", "")
	require.Error(t, err)

	var got *fetcher.APIError
	require.True(t, errors.As(err, &got))
	assert.Same(t, apiErr, got)
}

func TestBuildStopsAtPageLimit(t *testing.T) {
	lister := &fakeLister{
		pages: []fetcher.ListGroupsPage{
			{Groups: groups("a"), NextToken: "t1"},
			{Groups: groups("b"), NextToken: "t2"},
			{Groups: groups("c"), NextToken: "t3"},
		},
	}

	_, err := NewBuilder(lister, Config{MaxPages: 2}).Build(context.Background(), "", "")
	require.ErrorIs(t, err, ErrTooManyPages)
	assert.Len(t, lister.requests, 2)
}

func TestBuildHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeLister{}
	_, err := NewBuilder(lister, DefaultConfig()).Build(ctx, "", "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, lister.requests)
}

func TestFilter(t *testing.T) {
	in := groups("/ecs/api", "/ecs/api-worker", "/lambda/api", "/ecs/web")

	assert.Equal(t, groups("/ecs/api", "/ecs/api-worker", "/lambda/api"), Filter(in, "api"))
	assert.Equal(t, in, Filter(in, ""))
	assert.Empty(t, Filter(in, "nothing"))
}
