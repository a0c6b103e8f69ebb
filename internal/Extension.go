package internal

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// BufferSize is the copy buffer used for hashing and file copies.
const BufferSize = 32 * 1024

var sizeSuffixes = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// BytesToHex converts a byte slice to a hexadecimal string
func BytesToHex(bytes []byte) string {
	return hex.EncodeToString(bytes)
}

// PrettifyBytes renders a byte count with a binary unit suffix.
func PrettifyBytes(value uint64, decimalPlaces ...int) string {
	if value == 0 {
		return "0 B"
	}

	dp := 2
	if len(decimalPlaces) > 0 {
		dp = decimalPlaces[0]
	}

	v := float64(value)
	mag := 0
	for v >= 1024 && mag < len(sizeSuffixes)-1 {
		v /= 1024
		mag++
	}
	return fmt.Sprintf("%."+strconv.Itoa(dp)+"f %s", v, sizeSuffixes[mag])
}

// HashReaderMd5 streams r through MD5 and returns the lowercase hex digest.
func HashReaderMd5(r io.Reader) (string, error) {
	h := md5.New()
	buffer := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(h, r, buffer); err != nil {
		return "", err
	}
	return BytesToHex(h.Sum(nil)), nil
}

// FileMd5 hashes a whole file without loading it into memory.
func FileMd5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReaderMd5(f)
}

// RegionMd5 hashes length bytes of stream starting at offset.
func RegionMd5(stream io.ReadWriteSeeker, offset, length int64) (string, error) {
	region, err := NewChunkStream(stream, offset, offset+length)
	if err != nil {
		return "", err
	}
	return HashReaderMd5(region)
}

// CheckFile reports whether path exists with the expected size and MD5. The
// size is compared first so mismatching files are never hashed.
func CheckFile(path string, expectedSize uint64, expectedMd5 string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() || uint64(info.Size()) != expectedSize {
		return false, nil
	}

	sum, err := FileMd5(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sum, expectedMd5), nil
}

// EnsureParent creates every missing parent directory of path.
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// GrantUserWrite adds the user write bit to an existing read-only file. A
// missing file is not an error.
func GrantUserWrite(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if info.Mode()&0200 == 0 {
		return os.Chmod(filePath, info.Mode()|0200)
	}
	return nil
}

// CopyFileVerified promotes src to dst. The bytes are copied into a sibling of
// dst, verified against (size, md5), then renamed over dst, so dst only ever
// holds its previous content or the verified new one.
func CopyFileVerified(src, dst string, size uint64, md5sum string) error {
	if err := EnsureParent(dst); err != nil {
		return newOutputFileError(dst, err)
	}
	if err := GrantUserWrite(dst); err != nil {
		return newOutputFileError(dst, err)
	}

	sibling := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".sophon")
	if err := copyFile(src, sibling); err != nil {
		os.Remove(sibling)
		return newOutputFileError(dst, err)
	}

	ok, err := CheckFile(sibling, size, md5sum)
	if err != nil || !ok {
		got, _ := FileMd5(sibling)
		os.Remove(sibling)
		if err != nil {
			return newOutputFileError(dst, err)
		}
		return newFileHashMismatchError(dst, md5sum, got)
	}

	if err := os.Rename(sibling, dst); err != nil {
		os.Remove(sibling)
		return newOutputFileError(dst, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	buffer := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(out, in, buffer); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// GetStagingFilename names the per-file staging copy. The xxh64 of the asset
// name keeps two assets with identical content from sharing a staging file.
func GetStagingFilename(assetName, assetHash string) string {
	h := xxhash.New()
	h.WriteString(assetName)
	return fmt.Sprintf("%s-%016x", assetHash, h.Sum64())
}

// AssetPath maps a forward-slash asset name onto root, refusing names that
// would escape it.
func AssetPath(root, assetName string) (string, error) {
	rel := filepath.FromSlash(assetName)
	if rel == "" || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("invalid asset name %q", assetName)
	}
	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset name %q escapes the game directory", assetName)
	}
	return filepath.Join(root, clean), nil
}

// ToSet converts a slice to a set (map with empty struct values)
func ToSet[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
