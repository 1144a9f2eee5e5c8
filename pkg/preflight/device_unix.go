//go:build !windows

package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SameDevice reports whether both paths live on the same filesystem, which is
// required for hard links between them.
func SameDevice(a, b string) (bool, error) {
	aDev, err := deviceID(a)
	if err != nil {
		return false, err
	}
	bDev, err := deviceID(b)
	if err != nil {
		return false, err
	}
	return aDev == bDev, nil
}

func deviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return uint64(st.Dev), nil
}
