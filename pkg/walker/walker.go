// Package walker drives a backup run: it traverses the source tree, applies
// the ignore filter and hands every surviving entry to the item backupper.
//
// The traversal is a pre-order depth-first walk over an explicit stack, so a
// directory is always dispatched before any of its descendants. Ignored
// directories are pruned: their children are never read.
//
// With more than one worker the walk itself stays in a single goroutine (the
// producer) and items are consumed by a fixed pool. Parent directories are
// still guaranteed to exist before a child is written because the backupper
// creates each item's ancestor chain on demand.
package walker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"pixelgardenlabs.io/wbck/pkg/backup"
	"pixelgardenlabs.io/wbck/pkg/ignore"
	"pixelgardenlabs.io/wbck/pkg/plog"
	"pixelgardenlabs.io/wbck/pkg/util"
)

// ErrMissingBackupper is returned when Run is called without a Backupper.
var ErrMissingBackupper = errors.New("walker: backupper is required")

// ItemBackupper is the part of *backup.Backupper the walker depends on.
type ItemBackupper interface {
	BackupItem(source, target, reference string) error
}

// Options configures a run.
type Options struct {
	Source string
	Target string
	// Reference is the root of the previous backup; empty disables linking.
	Reference string
	// Filter defaults to ignore.Noop when nil.
	Filter    ignore.Filter
	Backupper ItemBackupper
	// Metrics receives the ignored-entry count; nil disables it.
	Metrics backup.Metrics
	// Workers <= 1 runs fully sequentially.
	Workers int
}

// item is one unit of work, resolved to absolute paths by the producer.
type item struct {
	source    string
	target    string
	reference string
}

type run struct {
	src, trg, ref string
	filter        ignore.Filter
	backupper     ItemBackupper
	metrics       backup.Metrics
}

// Run mirrors opts.Source into opts.Target. The first error aborts the run and
// is returned; the target is left as far as it got.
func Run(ctx context.Context, opts Options) error {
	if opts.Backupper == nil {
		return ErrMissingBackupper
	}
	r := &run{
		src:       opts.Source,
		trg:       opts.Target,
		ref:       opts.Reference,
		filter:    opts.Filter,
		backupper: opts.Backupper,
		metrics:   opts.Metrics,
	}
	if r.filter == nil {
		r.filter = ignore.Noop{}
	}
	if r.metrics == nil {
		r.metrics = &backup.NoopMetrics{}
	}

	if opts.Workers <= 1 {
		return r.walk(ctx, func(it item) error {
			return r.backupper.BackupItem(it.source, it.target, it.reference)
		})
	}
	return r.runConcurrent(ctx, opts.Workers)
}

// runConcurrent feeds a fixed pool of workers from a single walking goroutine.
func (r *run) runConcurrent(ctx context.Context, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	items := make(chan item, workers*4)

	g.Go(func() error {
		defer close(items)
		return r.walk(gctx, func(it item) error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case items <- it:
				return nil
			}
		})
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for it := range items {
				if err := r.backupper.BackupItem(it.source, it.target, it.reference); err != nil {
					return err
				}
			}
			return nil
		})
	}

	// A worker failure cancels gctx, which stops the producer and closes items,
	// so the remaining workers drain and exit.
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// walk visits every entry below r.src in pre-order and calls emit for each one
// that is not ignored.
func (r *run) walk(ctx context.Context, emit func(item) error) error {
	stack, err := r.children(r.src)
	if err != nil {
		return err
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := len(stack) - 1
		entry := stack[n]
		stack = stack[:n]

		ignored, err := r.filter.IsIgnored(entry.path)
		if err != nil {
			return fmt.Errorf("could not evaluate ignore patterns for %s: %w", entry.path, err)
		}
		if ignored {
			plog.Notice("SKIP", "reason", "ignored by pattern", "path", entry.path)
			r.metrics.AddEntriesIgnored(1)
			continue
		}

		it, err := r.resolve(entry.path)
		if err != nil {
			return err
		}
		if err := emit(it); err != nil {
			return err
		}

		if entry.isDir {
			children, err := r.children(entry.path)
			if err != nil {
				return err
			}
			stack = append(stack, children...)
		}
	}
	return nil
}

type stackEntry struct {
	path  string
	isDir bool
}

// children lists dir in reverse name order, so popping from the end of the
// stack yields the entries in lexical order.
func (r *run) children(dir string) ([]stackEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", dir, err)
	}
	out := make([]stackEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		// DirEntry.IsDir does not follow symlinks, so linked directories are
		// backed up as markers and never descended into.
		out = append(out, stackEntry{
			path:  filepath.Join(dir, entries[i].Name()),
			isDir: entries[i].IsDir(),
		})
	}
	return out, nil
}

func (r *run) resolve(path string) (item, error) {
	rel, err := util.RelPath(r.src, path)
	if err != nil {
		return item{}, err
	}
	it := item{
		source: path,
		target: filepath.Join(r.trg, rel),
	}
	if r.ref != "" {
		it.reference = filepath.Join(r.ref, rel)
	}
	return it, nil
}
