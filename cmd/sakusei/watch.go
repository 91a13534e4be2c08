package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/root-talis/sakusei/source/files"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := bindOptions(fs)
	revert := fs.Bool("revert", false, "Also write revert (.down.sql) files")
	debounce := fs.Duration("debounce", 500*time.Millisecond, "Quiet period before regenerating")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := opts.setup()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	regenerate := func() {
		tables, err := s.loadTables(opts.schema)
		if err != nil {
			s.logger.Error("failed to load definitions", "dir", s.cfg.SchemaDir, "err", err)
			return
		}
		if _, err := generateAll(s.generator, tables, false, *revert); err != nil {
			s.logger.Error("failed to generate migration files", "err", err)
		}
	}

	regenerate()

	return watchDefinitions(ctx, s.cfg.SchemaDir, *debounce, s.logger, regenerate)
}

// watchDefinitions calls onChange once definition files in dir stop changing
// for the debounce period. It returns when ctx is done.
func watchDefinitions(ctx context.Context, dir string, debounce time.Duration, logger *slog.Logger, onChange func()) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch: watch %s: %w", dir, err)
	}
	logger.Info("watching definitions", "dir", dir)

	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !files.IsDefinitionFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Debug("definition changed", "file", event.Name, "op", event.Op.String())
				lastEvent = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", "err", err)

		case <-ticker.C:
			if !lastEvent.IsZero() && time.Since(lastEvent) >= debounce {
				lastEvent = time.Time{}
				onChange()
			}
		}
	}
}
