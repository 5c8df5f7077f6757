package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// DatabaseFile is the name of the progress database inside the output directory.
const DatabaseFile = "progress.db"

var allStatuses = []Status{
	StatusPending,
	StatusDone,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Item is one tracked work item.
type Item struct {
	ID           int64
	Path         string
	Status       Status
	Attempts     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DatabaseHealth captures diagnostic information about the progress database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary aggregates item counts per status.
type HealthSummary struct {
	Total       int
	Pending     int
	Done        int
	Error       int
	LastUpdated time.Time
}

// Settled reports how many items reached a terminal status.
func (h HealthSummary) Settled() int {
	return h.Done + h.Error
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the item will no longer be fetched.
func (i Item) IsTerminal() bool {
	return i.Status == StatusDone || i.Status == StatusError
}
