package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// SophonPatcher moves a game directory from an installed version to the
// version of a patch manifest.
type SophonPatcher struct {
	Fetcher        *SophonChunkFetcher
	Manifest       *protos.SophonPatchProto
	ChunksInfo     *SophonChunksInfo
	TempFolder     string
	CheckFreeSpace bool
	HDiff          HDiffPatcher
	// Version is written to the .version marker after the run.
	Version   Version
	HashCache *SophonHashCache
}

func NewSophonPatcher(fetcher *SophonChunkFetcher, manifest *protos.SophonPatchProto, chunksInfo *SophonChunksInfo, tempFolder string, hdiff HDiffPatcher) *SophonPatcher {
	return &SophonPatcher{
		Fetcher:        fetcher,
		Manifest:       manifest,
		ChunksInfo:     chunksInfo,
		TempFolder:     tempFolder,
		CheckFreeSpace: true,
		HDiff:          hdiff,
	}
}

func (p *SophonPatcher) DownloadingTemp() string {
	return filepath.Join(p.TempFolder, "downloading")
}

func (p *SophonPatcher) ChunkTempFolder() string {
	return filepath.Join(p.DownloadingTemp(), "chunks")
}

func (p *SophonPatcher) PatchesTemp() string {
	return filepath.Join(p.DownloadingTemp(), "patches")
}

func (p *SophonPatcher) createTempDirs() error {
	for _, dir := range []string{p.DownloadingTemp(), p.ChunkTempFolder(), p.PatchesTemp()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newTempFileError(dir, err)
		}
	}
	return nil
}

// Patch updates gameDir from version from. File failures are reported through
// updater; the version marker is still written so a repair can finish the job.
// Only pre-flight failures and cancellation are returned.
func (p *SophonPatcher) Patch(ctx context.Context, gameDir string, from Version, threads int, updater DelegateUpdate) error {
	index := NewPatchIndex(p.Manifest, p.ChunksInfo, from)
	run := newPatchRun(p, index, gameDir, updater, true)
	PushLogInfo(run, fmt.Sprintf("Patching %d files from %s (%d patch chunks, %d unused files)",
		len(index.Files), from, len(index.Chunks), len(index.Unused)))

	if err := run.prescan(ctx, threads); err != nil {
		return err
	}

	if p.CheckFreeSpace {
		if err := CheckFreeSpace(p.TempFolder, gameDir, run.bytesTotal, run.remainingUnpackedBytes(), updater); err != nil {
			return err
		}
	}
	if err := p.createTempDirs(); err != nil {
		updater.send(PatchingError{Err: err})
		return err
	}

	updater.send(PatchingStarted{})
	run.seed()
	run.sendBytes()
	run.sendPatched()

	workers := make(chan error, 1)
	go func() {
		workers <- RunWorkers(ctx, threads, run.filePatchStage, run.checkStage, run.downloadStage)
	}()

	updater.send(DeletingStarted{})
	run.deleteUnused(ctx, false)
	if err := <-workers; err != nil {
		return err
	}
	sources := run.deleteUnused(ctx, true)
	updater.send(DeletingFinished{})
	if err := ctx.Err(); err != nil {
		return err
	}
	if sources > 0 {
		PushLogDebug(run, fmt.Sprintf("Deleted %d unused delta sources after patching", sources))
	}

	if !p.Version.IsZero() {
		if err := WriteVersionFile(gameDir, p.Version); err != nil {
			updater.send(PatchingError{Err: newOutputFileError(filepath.Join(gameDir, VersionFileName), err)})
		}
	}

	PushLogInfo(run, fmt.Sprintf("Patch finished: %d/%d files", run.patched.Load(), run.filesTotal))
	updater.send(PatchingFinished{})
	return nil
}

// PreDownload fetches every patch chunk for version from into the cache.
func (p *SophonPatcher) PreDownload(ctx context.Context, from Version, threads int, updater DelegateUpdate) error {
	index := NewPatchIndex(p.Manifest, p.ChunksInfo, from)
	run := newPatchRun(p, index, "", updater, false)
	PushLogInfo(run, fmt.Sprintf("Pre-downloading %d patch chunks (%s)", len(index.Chunks), PrettifyBytes(index.TotalBytes())))

	if p.CheckFreeSpace {
		if err := requireSpace(p.TempFolder, run.bytesTotal, updater); err != nil {
			return err
		}
	}
	if err := p.createTempDirs(); err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}

	updater.send(DownloadingStarted{Path: p.DownloadingTemp()})
	run.seed()
	run.sendBytes()

	if err := RunWorkers(ctx, threads, run.checkStage, run.downloadStage); err != nil {
		return err
	}
	updater.send(DownloadingFinished{})
	return nil
}

// patchRun is the state of one Patch or PreDownload call.
type patchRun struct {
	*chunkPipeline[*SophonPatchChunk]

	patcher *SophonPatcher
	index   *SophonPatchIndex
	gameDir string
	runId   string

	pending        map[string]bool
	filePatchQueue Injector[*SophonPatchAsset]

	sourcesMu sync.Mutex
	// sources counts delta users per original name that have not finished.
	sources map[string]int

	filesTotal  uint64
	patched     atomic.Uint64
	unusedTotal uint64
	unusedDone  atomic.Uint64
}

func newPatchRun(patcher *SophonPatcher, index *SophonPatchIndex, gameDir string, updater DelegateUpdate, apply bool) *patchRun {
	users := make(map[string]int, len(index.Chunks))
	for name, chunk := range index.Chunks {
		users[name] = len(chunk.UsedInFiles)
	}
	pending := make(map[string]bool, len(index.Files))
	for name := range index.Files {
		pending[name] = true
	}
	sources := make(map[string]int, len(index.SourceUsers))
	for name, count := range index.SourceUsers {
		sources[name] = count
	}

	r := &patchRun{
		patcher:     patcher,
		index:       index,
		gameDir:     gameDir,
		runId:       uuid.NewString(),
		pending:     pending,
		sources:     sources,
		filesTotal:  uint64(len(index.Files)),
		unusedTotal: uint64(len(index.Unused)),
	}
	r.chunkPipeline = &chunkPipeline[*SophonPatchChunk]{
		sender:     r,
		fetcher:    patcher.Fetcher,
		dir:        patcher.ChunkTempFolder(),
		updater:    updater,
		states:     newChunkStates(users),
		required:   index.requiredChunks,
		bytesTotal: index.TotalBytes(),
	}
	if apply {
		r.ready = r.fileReady
	}
	return r
}

func (r *patchRun) LogName() string {
	return "patcher"
}

func (r *patchRun) RunId() string {
	return r.runId
}

// prescan counts targets that already match as patched and drops patch
// chunks nothing else needs from the byte total.
func (r *patchRun) prescan(ctx context.Context, threads int) error {
	var mu sync.Mutex
	var patched []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(threads, 1))
	for name, asset := range r.index.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := AssetPath(r.gameDir, name)
			if err != nil {
				return newOutputFileError(name, err)
			}
			ok, err := r.patcher.HashCache.CheckFile(path, asset.Manifest.AssetSize, asset.Manifest.AssetHashMd5)
			if err != nil {
				PushLogWarning(r, fmt.Sprintf("Failed to check existing file %s: %v", path, err))
				return nil
			}
			if ok {
				mu.Lock()
				patched = append(patched, name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, name := range patched {
		asset := r.index.Files[name]
		delete(r.pending, name)
		r.patched.Add(1)
		if r.states.release(asset.Chunk.PatchName) {
			r.skip(asset.Chunk.PatchName)
		}
		if asset.PatchMethod() == Patch {
			r.sourceDone(asset.Chunk.OriginalFileName)
		}
	}
	if len(patched) > 0 {
		PushLogInfo(r, fmt.Sprintf("%d files are already patched", len(patched)))
	}

	var total uint64
	for name, chunk := range r.index.Chunks {
		if r.states.get(name).Phase != ChunkDownloaded {
			total += chunk.Manifest.PatchSize
		}
	}
	r.bytesTotal = total
	return nil
}

func (r *patchRun) remainingUnpackedBytes() uint64 {
	var total uint64
	for name := range r.pending {
		total += r.index.Files[name].Manifest.AssetSize
	}
	return total
}

func (r *patchRun) seed() {
	for name, chunk := range r.index.Chunks {
		if r.states.get(name).Phase == ChunkDownloaded {
			continue
		}
		r.downloadQueue.Push(chunk)
	}
}

func (r *patchRun) sendPatched() {
	r.updater.send(PatchingProgress{Patched: r.patched.Load(), Total: r.filesTotal})
}

func (r *patchRun) fileReady(name string) {
	if r.pending[name] {
		r.filePatchQueue.Push(r.index.Files[name])
	}
}

func (r *patchRun) isDeltaSource(name string) bool {
	_, ok := r.index.SourceUsers[name]
	return ok
}

// sourceDone is called once per finished delta user of original. The
// original of a move is deleted after its last user unless the target
// version still ships a file under that name.
func (r *patchRun) sourceDone(original string) {
	r.sourcesMu.Lock()
	r.sources[original]--
	last := r.sources[original] == 0
	r.sourcesMu.Unlock()

	if !last {
		return
	}
	if _, kept := r.index.TargetNames[original]; kept {
		return
	}
	path, err := AssetPath(r.gameDir, original)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		PushLogWarning(r, fmt.Sprintf("Failed to remove moved file %s: %v", path, err))
		return
	}
	r.patcher.HashCache.Forget(path)
}

// deleteUnused removes the unused files of the installed version. Files that
// are delta sources are only handled when sources is set, after the workers
// have finished. It returns the number of files removed in this call.
func (r *patchRun) deleteUnused(ctx context.Context, sources bool) int {
	removed := 0
	for _, unused := range r.index.Unused {
		if ctx.Err() != nil {
			return removed
		}
		if r.isDeltaSource(unused.FileName) != sources {
			continue
		}

		if _, target := r.index.TargetNames[unused.FileName]; !target {
			path, err := AssetPath(r.gameDir, unused.FileName)
			if err == nil {
				err = os.Remove(path)
				r.patcher.HashCache.Forget(path)
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				PushLogWarning(r, fmt.Sprintf("Failed to remove unused file %s: %v", unused.FileName, err))
			}
		}

		removed++
		done := r.unusedDone.Add(1)
		r.updater.send(DeletingProgress{Deleted: done, Total: r.unusedTotal})
	}
	return removed
}

func (r *patchRun) filePatchStage(ctx context.Context) bool {
	asset, ok := r.filePatchQueue.Steal()
	if !ok {
		return false
	}

	if err := r.patchFile(ctx, asset); err != nil {
		if ctx.Err() != nil {
			return true
		}
		PushLogError(r, fmt.Sprintf("Patching %s failed: %v", asset.AssetName(), err))
		r.updater.send(PatchingError{Err: err})
		return true
	}

	r.release(r.index.Chunks[asset.Chunk.PatchName])
	if asset.PatchMethod() == Patch {
		r.sourceDone(asset.Chunk.OriginalFileName)
	}

	PushLogDebug(r, fmt.Sprintf("Patched %s (%s)", asset.AssetName(), asset.PatchMethod()))
	r.patched.Add(1)
	r.sendPatched()
	return true
}

// patchFile produces the target file in the staging area, verifies it and
// promotes it into the game directory.
func (r *patchRun) patchFile(ctx context.Context, asset *SophonPatchAsset) error {
	target, err := AssetPath(r.gameDir, asset.AssetName())
	if err != nil {
		return newOutputFileError(asset.AssetName(), err)
	}

	chunkPath := r.path(r.index.Chunks[asset.Chunk.PatchName])
	offset, length := int64(asset.Chunk.PatchOffset), int64(asset.Chunk.PatchLength)

	staging := filepath.Join(r.patcher.DownloadingTemp(), asset.StagingFilename())
	defer os.Remove(staging)

	result := staging
	switch asset.PatchMethod() {
	case CopyOver:
		if err := extractRegion(chunkPath, staging, offset, length); err != nil {
			return newTempFileError(staging, err)
		}

	case Patch:
		source, err := AssetPath(r.gameDir, asset.Chunk.OriginalFileName)
		if err != nil {
			return newOutputFileError(asset.Chunk.OriginalFileName, err)
		}
		if err := copyFile(source, staging); err != nil {
			return newTempFileError(staging, fmt.Errorf("copy %s: %w", source, err))
		}
		valid, err := CheckFile(staging, asset.Chunk.OriginalFileLength, asset.Chunk.OriginalFileMd5)
		if err != nil {
			return newTempFileError(staging, err)
		}
		if !valid {
			got, _ := FileMd5(staging)
			return newFileHashMismatchError(source, asset.Chunk.OriginalFileMd5, got)
		}

		hdiff := filepath.Join(r.patcher.PatchesTemp(), asset.HDiffFilename())
		defer os.Remove(hdiff)
		if err := extractRegion(chunkPath, hdiff, offset, length); err != nil {
			return newTempFileError(hdiff, err)
		}

		result = filepath.Join(r.patcher.DownloadingTemp(), asset.OutputFilename())
		defer os.Remove(result)
		if err := r.patcher.HDiff.Patch(ctx, staging, hdiff, result); err != nil {
			var se *SophonError
			if !errors.As(err, &se) {
				err = newPatchingError(err.Error(), err)
			}
			return err
		}
	}

	size, hash := asset.Manifest.AssetSize, asset.Manifest.AssetHashMd5
	valid, err := CheckFile(result, size, hash)
	if err != nil {
		return newTempFileError(result, err)
	}
	if !valid {
		got, _ := FileMd5(result)
		r.updater.send(FileHashCheckFailed{Path: target})
		return newFileHashMismatchError(target, hash, got)
	}

	if err := CopyFileVerified(result, target, size, hash); err != nil {
		return err
	}
	if err := r.patcher.HashCache.Store(target, hash); err != nil {
		PushLogWarning(r, fmt.Sprintf("Failed to remember hash of %s: %v", target, err))
	}
	return nil
}

// extractRegion copies length bytes at offset of src into a new file at dst.
func extractRegion(src, dst string, offset, length int64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	region, err := NewChunkStream(in, offset, offset+length)
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	buffer := make([]byte, BufferSize)
	written, err := io.CopyBuffer(out, region, buffer)
	if err != nil {
		out.Close()
		return err
	}
	if written != length {
		out.Close()
		return fmt.Errorf("extracted %d bytes, expected %d", written, length)
	}
	return out.Close()
}
