package domain

import "time"

// LogGroup is a named container of log entries in the remote service
type LogGroup struct {
	Name string
}

// LogEvent represents a single entry returned by a filter call on a log group
type LogEvent struct {
	EventID       string // Opaque identifier, empty when the service did not provide one
	Timestamp     int64  // Epoch milliseconds
	Message       string
	SourceGroup   string // Name of the group the event was fetched from (display only)
	LogStream     string
	IngestionTime int64 // Epoch milliseconds, 0 if unknown
}

// HasID reports whether the event carries an identifier usable for deduplication
func (e LogEvent) HasID() bool {
	return e.EventID != ""
}

// Time returns the event timestamp as UTC time
func (e LogEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// GroupNames returns the names of the given groups in the same order
func GroupNames(groups []LogGroup) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
