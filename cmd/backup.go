package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pixelgardenlabs.io/wbck/pkg/backup"
	"pixelgardenlabs.io/wbck/pkg/buildinfo"
	"pixelgardenlabs.io/wbck/pkg/config"
	"pixelgardenlabs.io/wbck/pkg/ignore"
	"pixelgardenlabs.io/wbck/pkg/plog"
	"pixelgardenlabs.io/wbck/pkg/preflight"
	"pixelgardenlabs.io/wbck/pkg/walker"
)

// progressInterval is how often running counters are logged when metrics are on.
const progressInterval = 10 * time.Second

// RunBackup loads the configuration, merges the explicitly set flags over it
// and executes one backup run.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	baseConfig := config.NewDefault()
	if path, ok := flagMap["config"].(string); ok && path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		baseConfig = loaded
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(baseConfig, flagMap)
	if err := runConfig.Validate(); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	if err := preflight.Run(preflight.DefaultPlan(), runConfig.Source, runConfig.Target, runConfig.Reference); err != nil {
		return err
	}

	filter, err := loadFilter(runConfig)
	if err != nil {
		return err
	}

	var metrics backup.Metrics = &backup.NoopMetrics{}
	if runConfig.Metrics {
		metrics = &backup.RunMetrics{}
	}
	metrics.StartProgress("Backup progress", progressInterval)

	backupper := backup.New(backup.Options{
		DryRun:        runConfig.DryRun,
		VerifyContent: runConfig.VerifyContent,
		BufferSize:    runConfig.BufferSize(),
	}, metrics)

	startTime := time.Now()
	err = walker.Run(ctx, walker.Options{
		Source:    runConfig.Source,
		Target:    runConfig.Target,
		Reference: runConfig.Reference,
		Filter:    filter,
		Backupper: backupper,
		Metrics:   metrics,
		Workers:   runConfig.Performance.Workers,
	})
	metrics.StopProgress()
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		metrics.LogSummary("Backup aborted")
		return err // The error will be logged with full details by main()
	}
	metrics.LogSummary("Backup summary")
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// loadFilter builds the ignore filter: an explicitly configured pattern file,
// else the default file in the source root if present, else no filtering.
func loadFilter(cfg config.Config) (ignore.Filter, error) {
	path := cfg.IgnoreFile
	if path == "" {
		candidate := filepath.Join(cfg.Source, ignore.DefaultFileName)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				plog.Debug("No ignore file found, nothing is ignored", "path", candidate)
				return ignore.Noop{}, nil
			}
			return nil, fmt.Errorf("could not check for ignore file %s: %w", candidate, err)
		}
		path = candidate
	}

	filter, err := ignore.LoadGlobFile(cfg.Source, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore patterns: %w", err)
	}
	plog.Info("Loaded ignore patterns", "file", path, "count", len(filter.Patterns()))
	return filter, nil
}
