package fetcher

import (
	"context"

	"github.com/SteelMorgan/cwtail/internal/domain"
)

// GroupLister pages through the log groups known to the remote service
type GroupLister interface {
	// ListGroups returns one page of groups.
	// A nil Groups slice means the response carried no group list at all.
	// An empty NextToken means there are no more pages.
	ListGroups(ctx context.Context, req ListGroupsRequest) (ListGroupsPage, error)
}

// EventSource fetches events of a single log group
type EventSource interface {
	// FilterEvents returns events of the group with timestamp >= startMillis,
	// in the order the service returned them. There is no upper bound.
	FilterEvents(ctx context.Context, group string, startMillis int64) ([]domain.LogEvent, error)
}

// EventFetcher is the full remote API consumed by the tailer
type EventFetcher interface {
	GroupLister
	EventSource
}

// ListGroupsRequest describes a single listing call
type ListGroupsRequest struct {
	Limit     int32  // Advisory page size
	Prefix    string // Group name prefix, empty for none
	NextToken string // Continuation token from the previous page, empty for the first page
}

// ListGroupsPage is a single page of the group listing
type ListGroupsPage struct {
	Groups    []domain.LogGroup
	NextToken string
}
