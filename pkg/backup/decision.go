package backup

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Decision is how a regular file reaches the target tree.
type Decision int

const (
	// DecisionCopy writes the source bytes into a new target file.
	DecisionCopy Decision = iota
	// DecisionLink makes the target another name for the reference file.
	DecisionLink
)

func (d Decision) String() string {
	switch d {
	case DecisionCopy:
		return "copy"
	case DecisionLink:
		return "link"
	default:
		return fmt.Sprintf("unknown_decision(%d)", int(d))
	}
}

// Decide compares modification times only. The reference is reused when it is
// at least as recent as the source; a missing reference or any failed lookup
// falls back to a copy. Content is never compared here.
func Decide(source, reference string) Decision {
	if reference == "" {
		return DecisionCopy
	}
	refInfo, err := os.Stat(reference)
	if err != nil {
		return DecisionCopy
	}
	srcInfo, err := os.Stat(source)
	if err != nil {
		return DecisionCopy
	}
	if refInfo.ModTime().Before(srcInfo.ModTime()) {
		return DecisionCopy
	}
	return DecisionLink
}

// sameContent reports whether two files hold identical bytes, comparing sizes
// first and BLAKE3 digests second.
func sameContent(a, b string, buf []byte) (bool, error) {
	aInfo, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("could not stat %s: %w", a, err)
	}
	bInfo, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("could not stat %s: %w", b, err)
	}
	if aInfo.Size() != bInfo.Size() {
		return false, nil
	}

	aSum, err := hashFile(a, buf)
	if err != nil {
		return false, err
	}
	bSum, err := hashFile(b, buf)
	if err != nil {
		return false, err
	}
	return bytes.Equal(aSum, bSum), nil
}

func hashFile(path string, buf []byte) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, fmt.Errorf("could not hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
