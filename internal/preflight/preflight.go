package preflight

import (
	"context"
	"strings"

	"fable/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for a run over dataDir. An empty
// dataDir skips the data directory check.
func RunAll(ctx context.Context, cfg *config.Config, dataDir string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if strings.TrimSpace(dataDir) != "" {
		results = append(results, CheckReadableDir("Data directory", dataDir))
	}
	results = append(results,
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Output free space", cfg.Paths.OutputDir, MinFreeBytes),
		CheckLLM(ctx, "Vision model", cfg),
	)
	return results
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
