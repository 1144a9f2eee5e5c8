// Package backup performs the filesystem actions that mirror a single source
// entry into the target tree.
//
// Directories are created, regular files are either copied or hard linked to
// the same relative path of a reference (previous) backup, and symlinks are
// stored as plain marker files holding "LINK <target>". Every action is
// idempotent with respect to already existing parent directories, so items
// may be processed concurrently as long as no two workers handle the same
// target path.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"pixelgardenlabs.io/wbck/pkg/plog"
	"pixelgardenlabs.io/wbck/pkg/sharded"
	"pixelgardenlabs.io/wbck/pkg/util"
)

// SymlinkMarkerPrefix starts the content of every file that stands in for a
// source symlink. The rest of the file is the link target, verbatim.
const SymlinkMarkerPrefix = "LINK "

// tempPrefix names in-flight copies and links inside the target tree.
const tempPrefix = ".wbck-"

// DefaultBufferSize is the copy buffer size used when Options.BufferSize is zero.
const DefaultBufferSize = 256 * 1024

var (
	// ErrConflict is returned when a target path exists with the wrong type.
	ErrConflict = errors.New("target path conflict")
	// ErrInvalidLinkTarget is returned when a symlink target is not valid UTF-8.
	ErrInvalidLinkTarget = errors.New("symlink target is not valid utf-8")
)

// Options configures a Backupper.
type Options struct {
	// DryRun logs every action without touching the target tree.
	DryRun bool
	// VerifyContent compares BLAKE3 digests before linking and copies instead
	// when the reference content differs from the source.
	VerifyContent bool
	// BufferSize is the I/O buffer size for copies and hashing.
	BufferSize int
}

// Backupper performs the per-item backup actions. It is safe for concurrent
// use by multiple goroutines.
type Backupper struct {
	dryRun        bool
	verifyContent bool
	metrics       Metrics

	ioBufferPool *sync.Pool

	// createdDirs holds every target directory known to exist, so parents are
	// only created once per run.
	createdDirs *sharded.ShardedSet

	// createDirGroup collapses concurrent creations of the same directory into
	// a single MkdirAll call.
	createDirGroup singleflight.Group
}

// New returns a Backupper. A nil metrics disables metric collection.
func New(opts Options, metrics Metrics) *Backupper {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Backupper{
		dryRun:        opts.DryRun,
		verifyContent: opts.VerifyContent,
		metrics:       metrics,
		createdDirs:   sharded.NewShardedSet(),
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// BackupItem classifies source and dispatches to the matching strategy.
// reference is empty when there is no previous backup. Entries that are
// neither directory, regular file nor symlink are skipped without error.
func (b *Backupper) BackupItem(source, target, reference string) error {
	item, err := Classify(source)
	if err != nil {
		return err
	}
	b.metrics.AddEntriesProcessed(1)

	switch item.Kind {
	case KindDirectory:
		return b.BackupDirectory(target)
	case KindRegularFile:
		return b.BackupFile(source, target, reference)
	case KindSymlink:
		return b.writeSymlinkMarker(target, item.LinkTarget)
	default:
		plog.Debug("SKIP", "reason", "unsupported file type", "path", source, "type", item.Mode.Type().String())
		b.metrics.AddEntriesSkipped(1)
		return nil
	}
}

// BackupDirectory creates target and any missing ancestors. An existing
// directory is left untouched; an existing non-directory is a conflict.
func (b *Backupper) BackupDirectory(target string) error {
	info, err := os.Lstat(target)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%w: existing target %s is not a directory (%s)", ErrConflict, target, info.Mode().Type())
		}
		b.createdDirs.Store(target)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return b.ensureDir(target)
	default:
		return fmt.Errorf("could not stat target directory %s: %w", target, err)
	}
}

// BackupFile reproduces the regular file source at target, either by linking
// reference or by copying source.
func (b *Backupper) BackupFile(source, target, reference string) error {
	if err := b.ensureDir(filepath.Dir(target)); err != nil {
		return err
	}

	decision := Decide(source, reference)
	if decision == DecisionLink && b.verifyContent {
		same, err := b.sameContent(source, reference)
		if err != nil {
			return fmt.Errorf("could not verify reference %s: %w", reference, err)
		}
		if !same {
			plog.Warn("Reference content differs from source despite newer modification time, copying instead",
				"source", source, "reference", reference)
			b.metrics.AddLinksRejected(1)
			decision = DecisionCopy
		}
	}

	if decision == DecisionLink {
		if b.dryRun {
			plog.Notice("[DRY RUN] LINK", "path", target, "reference", reference)
			b.metrics.AddFilesLinked(1)
			return nil
		}
		if err := linkFile(reference, target); err != nil {
			return err
		}
		plog.Notice("LINK", "path", target, "reference", reference)
		b.metrics.AddFilesLinked(1)
		return nil
	}

	if b.dryRun {
		plog.Notice("[DRY RUN] COPY", "path", target)
		b.metrics.AddFilesCopied(1)
		return nil
	}
	n, err := b.copyFile(source, target)
	if err != nil {
		return err
	}
	plog.Notice("COPY", "path", target)
	b.metrics.AddFilesCopied(1)
	b.metrics.AddBytesWritten(n)
	return nil
}

// BackupSymlink stores the symlink source as a marker file at target.
func (b *Backupper) BackupSymlink(source, target string) error {
	linkTarget, err := os.Readlink(source)
	if err != nil {
		return fmt.Errorf("could not read link %s: %w", source, err)
	}
	return b.writeSymlinkMarker(target, linkTarget)
}

func (b *Backupper) writeSymlinkMarker(target, linkTarget string) error {
	if !utf8.ValidString(linkTarget) {
		return fmt.Errorf("%w: %q", ErrInvalidLinkTarget, linkTarget)
	}
	if err := b.ensureDir(filepath.Dir(target)); err != nil {
		return err
	}

	if b.dryRun {
		plog.Notice("[DRY RUN] SYM", "path", target, "linkTarget", linkTarget)
		b.metrics.AddSymlinksWritten(1)
		return nil
	}

	content := SymlinkMarkerPrefix + linkTarget
	err := writeFileAtomic(target, util.UserWritableFilePerms, time.Time{}, func(w io.Writer) (int64, error) {
		n, err := io.WriteString(w, content)
		return int64(n), err
	})
	if err != nil {
		return fmt.Errorf("could not write symlink marker %s: %w", target, err)
	}
	plog.Notice("SYM", "path", target, "linkTarget", linkTarget)
	b.metrics.AddSymlinksWritten(1)
	b.metrics.AddBytesWritten(int64(len(content)))
	return nil
}

// ensureDir creates dir and its ancestors once per run. Concurrent callers for
// the same dir share one MkdirAll.
func (b *Backupper) ensureDir(dir string) error {
	if b.createdDirs.Has(dir) {
		return nil
	}

	_, err, _ := b.createDirGroup.Do(dir, func() (any, error) {
		if b.createdDirs.Has(dir) {
			return nil, nil
		}

		if b.dryRun {
			if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
				plog.Notice("[DRY RUN] DIR", "path", dir)
				b.metrics.AddDirsCreated(1)
			}
			b.createdDirs.Store(dir)
			return nil, nil
		}

		_, statErr := os.Stat(dir)
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			if blocker := nonDirAncestor(dir); blocker != "" {
				return nil, fmt.Errorf("%w: existing target %s is not a directory, cannot create %s", ErrConflict, blocker, dir)
			}
			return nil, fmt.Errorf("could not create directory %s: %w", dir, err)
		}
		if errors.Is(statErr, fs.ErrNotExist) {
			plog.Notice("DIR", "path", dir)
			b.metrics.AddDirsCreated(1)
		}
		b.createdDirs.Store(dir)
		return nil, nil
	})
	return err
}

// nonDirAncestor returns the nearest existing path at or above dir when it is
// not a directory, or "" when the nearest existing path is a directory.
func nonDirAncestor(dir string) string {
	for p := dir; ; {
		info, err := os.Stat(p)
		if err == nil {
			if info.IsDir() {
				return ""
			}
			return p
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return ""
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}

// copyFile copies source to target through a temporary file and an atomic
// rename, so an existing target (possibly a hard link into the reference
// backup) is replaced rather than written through.
func (b *Backupper) copyFile(source, target string) (int64, error) {
	in, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("could not open source file %s: %w", source, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("could not stat source file %s: %w", source, err)
	}

	bufPtr := b.ioBufferPool.Get().(*[]byte)
	defer b.ioBufferPool.Put(bufPtr)
	buf := *bufPtr
	buf = buf[:cap(buf)]

	var written int64
	err = writeFileAtomic(target, util.WithUserWritePermission(info.Mode().Perm()), info.ModTime(), func(w io.Writer) (int64, error) {
		n, err := io.CopyBuffer(w, in, buf)
		written = n
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("could not copy %s to %s: %w", source, target, err)
	}
	return written, nil
}

func (b *Backupper) sameContent(source, reference string) (bool, error) {
	bufPtr := b.ioBufferPool.Get().(*[]byte)
	defer b.ioBufferPool.Put(bufPtr)
	return sameContent(source, reference, (*bufPtr)[:cap(*bufPtr)])
}

// writeFileAtomic writes a new file next to path and renames it into place.
// A zero modTime leaves the file's timestamps as written.
func writeFileAtomic(path string, perm os.FileMode, modTime time.Time, fill func(io.Writer) (int64, error)) error {
	out, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file in %s: %w", filepath.Dir(path), err)
	}
	tempPath := out.Name()
	// Cleared once the rename succeeded.
	defer func() {
		if tempPath != "" {
			out.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := fill(out); err != nil {
		return err
	}
	if err := out.Chmod(perm); err != nil {
		return fmt.Errorf("could not set permissions on %s: %w", tempPath, err)
	}
	// Close flushes, and must happen before Chtimes.
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", tempPath, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tempPath, modTime, modTime); err != nil {
			return fmt.Errorf("could not set timestamps on %s: %w", tempPath, err)
		}
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("could not move %s into place: %w", tempPath, err)
	}
	tempPath = ""
	return nil
}

// linkFile makes target a hard link to reference. An existing target that is
// already the same file is left alone; any other existing target is replaced.
func linkFile(reference, target string) error {
	err := os.Link(reference, target)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("could not link %s to %s: %w", target, reference, err)
	}

	refInfo, err := os.Stat(reference)
	if err != nil {
		return fmt.Errorf("could not stat reference %s: %w", reference, err)
	}
	if trgInfo, err := os.Lstat(target); err == nil && os.SameFile(refInfo, trgInfo) {
		return nil
	}

	// os.Link cannot overwrite, so link under a free temporary name first.
	f, err := os.CreateTemp(filepath.Dir(target), tempPrefix+"link-*.tmp")
	if err != nil {
		return fmt.Errorf("could not generate temporary link name: %w", err)
	}
	tempName := f.Name()
	f.Close()
	os.Remove(tempName)

	if err := os.Link(reference, tempName); err != nil {
		return fmt.Errorf("could not link %s to %s: %w", tempName, reference, err)
	}
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("could not move link into place at %s: %w", target, err)
	}
	return nil
}
