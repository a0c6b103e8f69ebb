package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// SophonRepairTarget is one component to verify, e.g. the game or a voice pack.
type SophonRepairTarget struct {
	Manifest   *protos.SophonManifestProto
	ChunksInfo *SophonChunksInfo
}

// BrokenAsset is a file that failed verification.
type BrokenAsset struct {
	Asset      *protos.SophonManifestAssetProperty
	ChunksInfo *SophonChunksInfo
}

// SophonRepairer verifies a game directory against download manifests and
// fixes the files that do not match.
type SophonRepairer struct {
	Fetcher    *SophonChunkFetcher
	Targets    []SophonRepairTarget
	TempFolder string
	HashCache  *SophonHashCache
	runId      string
}

func NewSophonRepairer(fetcher *SophonChunkFetcher, tempFolder string, targets ...SophonRepairTarget) *SophonRepairer {
	return &SophonRepairer{
		Fetcher:    fetcher,
		Targets:    targets,
		TempFolder: tempFolder,
		runId:      uuid.NewString(),
	}
}

func (r *SophonRepairer) LogName() string {
	return "repairer"
}

func (r *SophonRepairer) RunId() string {
	return r.runId
}

func (r *SophonRepairer) DownloadingTemp() string {
	return filepath.Join(r.TempFolder, "downloading")
}

func (r *SophonRepairer) ChunkTempFolder() string {
	return filepath.Join(r.DownloadingTemp(), "chunks")
}

func (r *SophonRepairer) createTempDirs() error {
	for _, dir := range []string{r.DownloadingTemp(), r.ChunkTempFolder()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newTempFileError(dir, err)
		}
	}
	return nil
}

// CheckAndRepair verifies every file and repairs the broken ones. Files that
// cannot be repaired are reported through updater.
func (r *SophonRepairer) CheckAndRepair(ctx context.Context, gameDir string, threads int, updater DelegateUpdate) error {
	updater.send(VerifyingStarted{})
	broken, err := r.GetBrokenFiles(ctx, gameDir, threads, updater)
	if err != nil {
		return err
	}
	total := uint64(len(broken))
	updater.send(VerifyingFinished{Broken: total})
	PushLogInfo(r, fmt.Sprintf("%d broken files found in %s", total, gameDir))

	updater.send(RepairingStarted{})
	if err := r.createTempDirs(); err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}

	var repaired uint64
	updater.send(RepairingProgress{Total: total, Repaired: repaired})
	for _, asset := range broken {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RepairFile(ctx, gameDir, asset, threads, updater); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			PushLogError(r, fmt.Sprintf("Failed to repair %s: %v", asset.Asset.AssetName, err))
			updater.send(DownloadingError{Err: err})
			continue
		}

		PushLogDebug(r, fmt.Sprintf("Repaired %s", asset.Asset.AssetName))
		repaired++
		updater.send(RepairingProgress{Total: total, Repaired: repaired})
	}

	updater.send(RepairingFinished{})
	return nil
}

// GetBrokenFiles checks every file of every target with threads workers and
// returns the ones that are missing or do not match, sorted by name.
func (r *SophonRepairer) GetBrokenFiles(ctx context.Context, gameDir string, threads int, updater DelegateUpdate) ([]BrokenAsset, error) {
	var pool Injector[BrokenAsset]
	for _, target := range r.Targets {
		for _, asset := range target.Manifest.Assets {
			if asset.IsDirectory() {
				continue
			}
			pool.Push(BrokenAsset{Asset: asset, ChunksInfo: target.ChunksInfo})
		}
	}
	total := uint64(pool.Len())
	updater.send(VerifyingProgress{Total: total, Checked: 0})

	var checked atomic.Uint64
	results := make(chan BrokenAsset)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < max(threads, 1); i++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				next, ok := pool.Steal()
				if !ok {
					return nil
				}

				valid, err := r.checkAsset(gameDir, next.Asset)
				if err != nil {
					PushLogError(r, fmt.Sprintf("Failed to check %s: %v", next.Asset.AssetName, err))
				} else if !valid {
					select {
					case results <- next:
					case <-gctx.Done():
						return gctx.Err()
					}
				}

				updater.send(VerifyingProgress{Total: total, Checked: checked.Add(1)})
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	var broken []BrokenAsset
	for asset := range results {
		broken = append(broken, asset)
	}
	if err := <-done; err != nil {
		return nil, err
	}

	sort.Slice(broken, func(i, j int) bool {
		return broken[i].Asset.AssetName < broken[j].Asset.AssetName
	})
	return broken, nil
}

func (r *SophonRepairer) checkAsset(gameDir string, asset *protos.SophonManifestAssetProperty) (bool, error) {
	path, err := AssetPath(gameDir, asset.AssetName)
	if err != nil {
		return false, err
	}
	// Always rehash: the cache only keys on size and mtime.
	valid, err := CheckFile(path, asset.AssetSize, asset.AssetHashMd5)
	if err != nil {
		return false, err
	}
	if !valid {
		r.HashCache.Forget(path)
		return false, nil
	}
	if err := r.HashCache.Store(path, asset.AssetHashMd5); err != nil {
		PushLogWarning(r, fmt.Sprintf("Failed to remember hash of %s: %v", path, err))
	}
	return true, nil
}

// RepairFile fixes one broken file. A missing file is installed through the
// chunked download path; an existing one has only its mismatching chunk
// regions rewritten.
func (r *SophonRepairer) RepairFile(ctx context.Context, gameDir string, broken BrokenAsset, threads int, updater DelegateUpdate) error {
	asset := broken.Asset
	target, err := AssetPath(gameDir, asset.AssetName)
	if err != nil {
		return newOutputFileError(asset.AssetName, err)
	}

	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return r.downloadChunkedFile(ctx, gameDir, target, broken, threads)
	}

	if err := r.repairRegions(ctx, target, broken); err != nil {
		return err
	}
	r.HashCache.Forget(target)

	valid, err := CheckFile(target, asset.AssetSize, asset.AssetHashMd5)
	if err != nil {
		return newOutputFileError(target, err)
	}
	if !valid {
		got, _ := FileMd5(target)
		updater.send(FileHashCheckFailed{Path: target})
		return newFileHashMismatchError(target, asset.AssetHashMd5, got)
	}
	if err := r.HashCache.Store(target, asset.AssetHashMd5); err != nil {
		PushLogWarning(r, fmt.Sprintf("Failed to remember hash of %s: %v", target, err))
	}
	return nil
}

func (r *SophonRepairer) repairRegions(ctx context.Context, target string, broken BrokenAsset) error {
	asset := broken.Asset
	if err := GrantUserWrite(target); err != nil {
		return newOutputFileError(target, err)
	}

	f, err := os.OpenFile(target, os.O_RDWR, 0644)
	if err != nil {
		return newOutputFileError(target, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(asset.AssetSize)); err != nil {
		return newOutputFileError(target, err)
	}

	for _, ref := range asset.AssetChunks {
		offset, length := int64(ref.ChunkOnFileOffset), int64(ref.ChunkSizeDecompressed)
		sum, err := RegionMd5(f, offset, length)
		if err != nil {
			return newOutputFileError(target, err)
		}
		if strings.EqualFold(sum, ref.ChunkDecompressedHashMd5) {
			continue
		}

		PushLogDebug(r, fmt.Sprintf("Chunk %s of %s is damaged, fetching", ref.ChunkName, asset.AssetName))
		data, err := r.fetchChunk(ctx, &SophonChunk{Manifest: ref, ChunksInfo: broken.ChunksInfo})
		if err != nil {
			return err
		}

		region, err := NewChunkStream(f, offset, offset+length)
		if err != nil {
			return newOutputFileError(target, err)
		}
		if _, err := region.Write(data); err != nil {
			return newOutputFileError(target, err)
		}
	}

	if err := f.Sync(); err != nil {
		return newOutputFileError(target, err)
	}
	return nil
}

// fetchChunk downloads a chunk into memory, retrying as often as the
// pipelines requeue a chunk. Each attempt gets enough time for the body at
// the configured speed limit.
func (r *SophonRepairer) fetchChunk(ctx context.Context, chunk *SophonChunk) ([]byte, error) {
	timeout := r.Fetcher.Limiter.AttemptTimeout(chunk.Manifest.ChunkSize)
	return WaitForRetry[[]byte](ctx, func(ctx context.Context) ([]byte, error) {
		return r.Fetcher.FetchDecompressed(ctx, chunk)
	}, intPtr(timeout), nil, intPtr(int(DefaultChunkRetries)+1), nil)
}

// downloadChunkedFile installs a single missing file with the installer pipeline.
func (r *SophonRepairer) downloadChunkedFile(ctx context.Context, gameDir, target string, broken BrokenAsset, threads int) error {
	installer := NewSophonInstaller(r.Fetcher, &protos.SophonManifestProto{
		Assets: []*protos.SophonManifestAssetProperty{broken.Asset},
	}, broken.ChunksInfo, r.TempFolder)
	installer.CheckFreeSpace = false
	installer.HashCache = r.HashCache

	var mu sync.Mutex
	var failure error
	err := installer.Install(ctx, gameDir, threads, func(update Update) {
		if e, ok := update.(DownloadingError); ok {
			mu.Lock()
			if failure == nil {
				failure = e.Err
			}
			mu.Unlock()
		}
	})
	if err != nil {
		return err
	}

	valid, err := CheckFile(target, broken.Asset.AssetSize, broken.Asset.AssetHashMd5)
	if err != nil {
		return newOutputFileError(target, err)
	}
	if !valid {
		if failure != nil {
			return failure
		}
		got, _ := FileMd5(target)
		return newFileHashMismatchError(target, broken.Asset.AssetHashMd5, got)
	}
	return nil
}
