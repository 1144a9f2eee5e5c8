// Package ignore decides which entries of a source tree are left out of a backup.
//
// Patterns are doublestar globs written relative to a fixed anchor segment
// instead of the absolute location of the source tree. A source file at
// <source>/build/out.o is matched as "root/build/out.o", so the pattern
// "root/build" ignores the top-level build directory wherever the source
// happens to live on disk, and "root/**/*.o" ignores object files at any depth.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"pixelgardenlabs.io/wbck/pkg/util"
)

// AnchorSegment is the synthetic leading path segment every queried path is
// given before it is matched.
const AnchorSegment = "root"

// DefaultFileName is the pattern file looked up inside the source root when no
// explicit pattern file is configured.
const DefaultFileName = "wbck-ignore.txt"

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid ignore pattern")

// Filter reports whether an entry of the source tree is excluded from the backup.
type Filter interface {
	IsIgnored(path string) (bool, error)
}

// Noop is a Filter that never ignores anything.
type Noop struct{}

// IsIgnored always returns false.
func (Noop) IsIgnored(string) (bool, error) { return false, nil }

// Glob is a Filter backed by an immutable list of doublestar patterns.
type Glob struct {
	root     string
	patterns []string
}

// NewGlob compiles patterns for a source tree rooted at root. An empty pattern
// list is valid and ignores nothing.
func NewGlob(root string, patterns ...string) (*Glob, error) {
	g := &Glob{
		root:     filepath.Clean(root),
		patterns: make([]string, 0, len(patterns)),
	}
	for i, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: pattern %d %q", ErrInvalidPattern, i+1, p)
		}
		g.patterns = append(g.patterns, p)
	}
	return g, nil
}

// LoadGlobFile reads one pattern per line from file. Blank lines and lines
// starting with '#' get no special treatment.
func LoadGlobFile(root, file string) (*Glob, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("could not open ignore file %s: %w", file, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read ignore file %s: %w", file, err)
	}

	g, err := NewGlob(root, patterns...)
	if err != nil {
		return nil, fmt.Errorf("could not compile ignore file %s: %w", file, err)
	}
	return g, nil
}

// Root returns the directory patterns are anchored at.
func (g *Glob) Root() string { return g.root }

// Patterns returns a copy of the compiled patterns in file order.
func (g *Glob) Patterns() []string {
	return append([]string(nil), g.patterns...)
}

// IsIgnored matches path against every pattern and stops at the first hit.
// path must be located under the filter's root.
func (g *Glob) IsIgnored(p string) (bool, error) {
	rel, err := util.RelPath(g.root, p)
	if err != nil {
		return false, fmt.Errorf("cannot match ignore patterns: %w", err)
	}

	anchored := AnchorSegment
	if rel != "." {
		anchored = path.Join(AnchorSegment, filepath.ToSlash(rel))
	}

	for _, pattern := range g.patterns {
		// Patterns were validated in NewGlob, so Match cannot fail with ErrBadPattern.
		if ok, _ := doublestar.Match(pattern, anchored); ok {
			return true, nil
		}
	}
	return false, nil
}

// Statically assert that our types implement the interface.
var _ Filter = Noop{}
var _ Filter = (*Glob)(nil)
