package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var verifiedBucket = []byte("verified")

// SophonHashCache remembers the MD5 of files by (path, size, mtime) so
// unchanged files are not re-hashed on every verification pass. A nil cache
// is valid and always hashes.
type SophonHashCache struct {
	db *bbolt.DB
}

type hashCacheEntry struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime"`
	Md5     string `json:"md5"`
}

func OpenHashCache(path string) (*SophonHashCache, error) {
	if err := EnsureParent(path); err != nil {
		return nil, fmt.Errorf("failed to create hash cache directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(verifiedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create hash cache bucket: %w", err)
	}
	return &SophonHashCache{db: db}, nil
}

func (c *SophonHashCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

func cacheKey(path string) []byte {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return []byte(path)
}

// Lookup returns the remembered MD5 of path if the file still has the size
// and modification time it had when it was stored.
func (c *SophonHashCache) Lookup(path string, info os.FileInfo) (string, bool) {
	if c == nil {
		return "", false
	}

	var entry hashCacheEntry
	found := false
	c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(verifiedBucket).Get(cacheKey(path))
		if data != nil && json.Unmarshal(data, &entry) == nil {
			found = entry.Size == info.Size() && entry.ModTime == info.ModTime().UnixNano()
		}
		return nil
	})
	if !found {
		return "", false
	}
	return entry.Md5, true
}

// Store remembers md5sum for the current state of path.
func (c *SophonHashCache) Store(path, md5sum string) error {
	if c == nil {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return c.put(path, info, md5sum)
}

func (c *SophonHashCache) put(path string, info os.FileInfo, md5sum string) error {
	data, err := json.Marshal(hashCacheEntry{Size: info.Size(), ModTime: info.ModTime().UnixNano(), Md5: md5sum})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(verifiedBucket).Put(cacheKey(path), data)
	})
}

func (c *SophonHashCache) Forget(path string) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(verifiedBucket).Delete(cacheKey(path))
	})
}

// CheckFile behaves like the package level CheckFile but answers from the
// cache when it can and records freshly computed hashes.
func (c *SophonHashCache) CheckFile(path string, expectedSize uint64, expectedMd5 string) (bool, error) {
	if c == nil {
		return CheckFile(path, expectedSize, expectedMd5)
	}

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

	sum, ok := c.Lookup(path, info)
	if !ok {
		if sum, err = FileMd5(path); err != nil {
			return false, err
		}
		if err := c.put(path, info, sum); err != nil {
			PushLogWarning(c, fmt.Sprintf("Failed to remember hash of %s: %v", path, err))
		}
	}
	return strings.EqualFold(sum, expectedMd5), nil
}
