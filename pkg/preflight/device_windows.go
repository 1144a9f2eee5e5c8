//go:build windows

package preflight

import (
	"path/filepath"
	"strings"
)

// SameDevice compares volume names. Volumes mounted into folders are not
// detected.
func SameDevice(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(filepath.VolumeName(absA), filepath.VolumeName(absB)), nil
}
