package internal

import (
	"errors"
	"os"
	"path/filepath"
)

func parentDir(path string) string {
	return filepath.Dir(path)
}

// existingAncestor resolves path to an absolute, symlink-free path of its
// closest existing ancestor (the path itself when it exists).
func existingAncestor(path string) (string, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(current); err == nil {
			return filepath.EvalSymlinks(current)
		}
		parent := parentDir(current)
		if parent == current {
			return "", errors.New("no existing ancestor")
		}
		current = parent
	}
}

// IsSameDisk reports whether both paths resolve to the same mount point.
func IsSameDisk(a, b string) (bool, error) {
	mountA, err := MountPoint(a)
	if err != nil {
		return false, err
	}
	mountB, err := MountPoint(b)
	if err != nil {
		return false, err
	}
	return mountA == mountB, nil
}

// CheckFreeSpace guards a pipeline run. The temp directory must hold the
// downloads and the target the unpacked files; on a shared disk each side
// must hold both.
func CheckFreeSpace(tempDir, targetDir string, downloadBytes, unpackedBytes uint64, updater DelegateUpdate) error {
	same, err := IsSameDisk(tempDir, targetDir)
	if err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}

	tempRequired, targetRequired := downloadBytes, unpackedBytes
	if same {
		tempRequired += unpackedBytes
		targetRequired += downloadBytes
	}

	if err := requireSpace(tempDir, tempRequired, updater); err != nil {
		return err
	}
	return requireSpace(targetDir, targetRequired, updater)
}

func requireSpace(path string, required uint64, updater DelegateUpdate) error {
	updater.send(CheckingFreeSpace{Path: path})

	available, err := AvailableSpace(path)
	if err == nil && available < required {
		err = newNoSpaceError(path, required, available)
	}
	if err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}
	return nil
}
