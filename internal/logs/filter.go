package logs

import (
	"encoding/json"
	"log/slog"
	"strings"

	"fable/internal/logging"
)

// Filter selects JSON log lines. Zero values match everything.
type Filter struct {
	MinLevel slog.Level
	ItemPath string
	RunID    string
}

// NewFilter builds a filter from command-line values. level may be empty.
func NewFilter(level, itemPath, runID string) (*Filter, error) {
	f := &Filter{
		MinLevel: slog.LevelDebug,
		ItemPath: strings.TrimSpace(itemPath),
		RunID:    strings.TrimSpace(runID),
	}
	if strings.TrimSpace(level) != "" {
		parsed, err := logging.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		f.MinLevel = parsed
	}
	return f, nil
}

func (f *Filter) empty() bool {
	return f == nil || (f.MinLevel <= slog.LevelDebug && f.ItemPath == "" && f.RunID == "")
}

// Match reports whether line passes the filter. Lines that are not JSON only
// pass an empty filter.
func (f *Filter) Match(line string) bool {
	if f.empty() {
		return true
	}
	var entry struct {
		Level    string `json:"level"`
		ItemPath string `json:"item_path"`
		RunID    string `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return false
	}
	if f.ItemPath != "" && entry.ItemPath != f.ItemPath {
		return false
	}
	if f.RunID != "" && entry.RunID != f.RunID {
		return false
	}
	level, err := logging.ParseLevel(entry.Level)
	if err != nil {
		return false
	}
	return level >= f.MinLevel
}
