//go:build unix

package internal

import (
	"golang.org/x/sys/unix"
)

// AvailableSpace returns the bytes available to unprivileged users on the
// filesystem holding path. Missing trailing components are resolved to their
// closest existing ancestor.
func AvailableSpace(path string) (uint64, error) {
	existing, err := existingAncestor(path)
	if err != nil {
		return 0, newPathNotMountedError(path)
	}

	var st unix.Statfs_t
	if err := unix.Statfs(existing, &st); err != nil {
		return 0, newPathNotMountedError(path)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

// MountPoint walks up from path until the device id changes.
func MountPoint(path string) (string, error) {
	current, err := existingAncestor(path)
	if err != nil {
		return "", newPathNotMountedError(path)
	}

	var st unix.Stat_t
	if err := unix.Stat(current, &st); err != nil {
		return "", newPathNotMountedError(path)
	}
	dev := st.Dev

	for {
		parent := parentDir(current)
		if parent == current {
			return current, nil
		}
		var pst unix.Stat_t
		if err := unix.Stat(parent, &pst); err != nil || pst.Dev != dev {
			return current, nil
		}
		current = parent
	}
}
