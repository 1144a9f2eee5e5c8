// Package preflight provides the checks that run before a backup begins. They
// are stateless and never modify the filesystem; a failing check stops the run
// before the first target entry is written.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pixelgardenlabs.io/wbck/pkg/util"
)

// ErrNestedPaths is returned when the target lies inside the source tree,
// which would make the backup copy itself.
var ErrNestedPaths = errors.New("target is nested inside source")

// ErrCrossDevice is returned when reference and target are on different
// filesystems, so no hard link between them can succeed.
var ErrCrossDevice = errors.New("reference and target are on different devices")

// Run executes every check enabled in plan against the given roots.
// reference may be empty.
func Run(plan *Plan, source, target, reference string) error {
	if plan.SourceAccessible {
		if err := CheckSourceAccessible(source); err != nil {
			return err
		}
	}
	if plan.TargetAccessible {
		if err := CheckTargetAccessible(target); err != nil {
			return err
		}
	}
	if plan.ReferenceAccessible && reference != "" {
		if err := CheckReferenceAccessible(reference); err != nil {
			return err
		}
	}
	if plan.PathNesting {
		if err := CheckPathNesting(source, target); err != nil {
			return err
		}
	}
	if plan.SameDevice && reference != "" {
		same, err := SameDevice(reference, target)
		if err != nil {
			return fmt.Errorf("could not compare devices of reference and target: %w", err)
		}
		if !same {
			return fmt.Errorf("%w: %s and %s", ErrCrossDevice, reference, target)
		}
	}
	return nil
}

// CheckSourceAccessible validates that the source path exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	return checkDir("source", srcPath)
}

// CheckTargetAccessible validates that the target path exists and is a
// directory. The target root is never created by a run.
func CheckTargetAccessible(targetPath string) error {
	return checkDir("target", targetPath)
}

// CheckReferenceAccessible validates that the reference backup root exists and
// is a directory.
func CheckReferenceAccessible(refPath string) error {
	return checkDir("reference", refPath)
}

// CheckPathNesting fails when target equals source or lies below it.
func CheckPathNesting(source, target string) error {
	absSrc, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("could not resolve source path %s: %w", source, err)
	}
	absTrg, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("could not resolve target path %s: %w", target, err)
	}
	if _, err := util.RelPath(absSrc, absTrg); err == nil {
		return fmt.Errorf("%w: %s is inside %s", ErrNestedPaths, target, source)
	}
	return nil
}

func checkDir(role, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s directory %s does not exist: %w", role, path, err)
		}
		return fmt.Errorf("cannot stat %s directory %s: %w", role, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path %s is not a directory", role, path)
	}
	return nil
}
