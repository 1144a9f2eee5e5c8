package backup

import (
	"fmt"
	"os"
	"time"
)

// Kind is the classification of a source entry.
type Kind int

const (
	KindDirectory Kind = iota
	KindRegularFile
	KindSymlink
	// KindOther covers devices, sockets, named pipes and anything else that is
	// skipped without producing a target artifact.
	KindOther
)

var kindToString = map[Kind]string{
	KindDirectory:   "directory",
	KindRegularFile: "file",
	KindSymlink:     "symlink",
	KindOther:       "other",
}

func (k Kind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_kind(%d)", int(k))
}

// Item is the classification of one source entry, read fresh from the
// filesystem every time it is needed.
type Item struct {
	Kind Kind
	Mode os.FileMode
	// ModTime is set for regular files.
	ModTime time.Time
	// LinkTarget is set for symlinks; it is the raw path the link points at.
	LinkTarget string
}

// Classify reads the metadata of path without following symlinks.
func Classify(path string) (Item, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Item{}, fmt.Errorf("could not retrieve metadata for %s: %w", path, err)
	}

	item := Item{Mode: info.Mode()}
	switch mode := info.Mode(); {
	case mode.IsDir():
		item.Kind = KindDirectory
	case mode.IsRegular():
		item.Kind = KindRegularFile
		item.ModTime = info.ModTime()
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return Item{}, fmt.Errorf("could not read link %s: %w", path, err)
		}
		item.Kind = KindSymlink
		item.LinkTarget = target
	default:
		item.Kind = KindOther
	}
	return item, nil
}
