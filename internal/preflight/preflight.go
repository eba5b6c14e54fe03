package preflight

import (
	"context"

	"github.com/mohammednabarawy/video-gen/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The installation check only applies to a managed server, and the model
// check needs a configured models root; everything else always runs.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	if cfg.ManagedServer() {
		results = append(results, CheckInstallation(cfg))
	}

	if cfg.ModelsRoot() != "" {
		results = append(results, CheckModels(cfg))
	}

	results = append(results, CheckServer(ctx, cfg))

	return results
}

// Passed reports whether every result in the set passed.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
