//go:build windows

package internal

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

func AvailableSpace(path string) (uint64, error) {
	existing, err := existingAncestor(path)
	if err != nil {
		return 0, newPathNotMountedError(path)
	}

	dir, err := windows.UTF16PtrFromString(existing)
	if err != nil {
		return 0, newPathNotMountedError(path)
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return 0, newPathNotMountedError(path)
	}
	return available, nil
}

// MountPoint returns the volume root of path.
func MountPoint(path string) (string, error) {
	existing, err := existingAncestor(path)
	if err != nil {
		return "", newPathNotMountedError(path)
	}
	volume := filepath.VolumeName(existing)
	if volume == "" {
		return "", newPathNotMountedError(path)
	}
	return volume + `\`, nil
}
