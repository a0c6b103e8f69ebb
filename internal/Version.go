package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// VersionFileName is the marker written into the game root after an install or patch run.
const VersionFileName = ".version"

// Version is a (major, minor, patch) triple, ordered lexicographically.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func NewVersion(major, minor, patch uint8) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses "a.b.c".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	var out [3]uint8
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		out[i] = uint8(v)
	}
	return Version{Major: out[0], Minor: out[1], Patch: out[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	a, b := v.Bytes(), other.Bytes()
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) Bytes() [3]byte {
	return [3]byte{v.Major, v.Minor, v.Patch}
}

// ReadVersionFile reads the 3-byte marker from gameDir.
func ReadVersionFile(gameDir string) (Version, error) {
	data, err := os.ReadFile(filepath.Join(gameDir, VersionFileName))
	if err != nil {
		return Version{}, err
	}
	if len(data) != 3 {
		return Version{}, fmt.Errorf("version file has %d bytes, expected 3", len(data))
	}
	return Version{Major: data[0], Minor: data[1], Patch: data[2]}, nil
}

func WriteVersionFile(gameDir string, v Version) error {
	path := filepath.Join(gameDir, VersionFileName)
	if err := GrantUserWrite(path); err != nil {
		return err
	}
	b := v.Bytes()
	return os.WriteFile(path, b[:], 0644)
}
