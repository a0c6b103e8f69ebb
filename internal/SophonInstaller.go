package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// SophonInstaller downloads every chunk of a download manifest and assembles
// the files it describes.
type SophonInstaller struct {
	Fetcher        *SophonChunkFetcher
	Manifest       *protos.SophonManifestProto
	ChunksInfo     *SophonChunksInfo
	TempFolder     string
	CheckFreeSpace bool
	// Version, when set, is written to the .version marker once every file is in place.
	Version Version
	// HashCache, when set, short-cuts the scan for files that are already installed.
	HashCache *SophonHashCache
}

func NewSophonInstaller(fetcher *SophonChunkFetcher, manifest *protos.SophonManifestProto, chunksInfo *SophonChunksInfo, tempFolder string) *SophonInstaller {
	return &SophonInstaller{
		Fetcher:        fetcher,
		Manifest:       manifest,
		ChunksInfo:     chunksInfo,
		TempFolder:     tempFolder,
		CheckFreeSpace: true,
	}
}

// DownloadingTemp holds per-file staging copies.
func (i *SophonInstaller) DownloadingTemp() string {
	return filepath.Join(i.TempFolder, "downloading")
}

// ChunkTempFolder is the chunk cache.
func (i *SophonInstaller) ChunkTempFolder() string {
	return filepath.Join(i.DownloadingTemp(), "chunks")
}

func (i *SophonInstaller) createTempDirs() error {
	if err := os.MkdirAll(i.DownloadingTemp(), 0755); err != nil {
		return newTempFileError(i.DownloadingTemp(), err)
	}
	if err := os.MkdirAll(i.ChunkTempFolder(), 0755); err != nil {
		return newTempFileError(i.ChunkTempFolder(), err)
	}
	return nil
}

// Install materializes the manifest under outputDir using threads workers.
// Chunk and file failures are reported through updater and do not abort the
// run; pre-flight failures and cancellation are returned.
func (i *SophonInstaller) Install(ctx context.Context, outputDir string, threads int, updater DelegateUpdate) error {
	index := NewDownloadIndex(i.Manifest, i.ChunksInfo)
	run := newInstallRun(i, index, outputDir, updater, true)
	PushLogInfo(run, fmt.Sprintf("Installing %d files (%d unique chunks, %s) into %s",
		len(index.Files), len(index.Chunks), PrettifyBytes(index.TotalBytes()), outputDir))

	if err := run.prescan(ctx, threads); err != nil {
		return err
	}

	if i.CheckFreeSpace {
		if err := CheckFreeSpace(i.TempFolder, outputDir, run.remainingDownloadBytes(), run.remainingUnpackedBytes(), updater); err != nil {
			return err
		}
	}
	if err := i.createTempDirs(); err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}
	run.createDirectories()

	updater.send(DownloadingStarted{Path: i.DownloadingTemp()})
	run.seed()
	run.sendBytes()
	run.sendFiles()

	if err := RunWorkers(ctx, threads, run.assembleStage, run.checkStage, run.downloadStage); err != nil {
		return err
	}
	for _, asset := range run.takeDeferred() {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.assembleFile(asset)
	}

	if run.filesDone.Load() == run.filesTotal && !i.Version.IsZero() {
		if err := WriteVersionFile(outputDir, i.Version); err != nil {
			updater.send(DownloadingError{Err: newOutputFileError(filepath.Join(outputDir, VersionFileName), err)})
		}
	}

	PushLogInfo(run, fmt.Sprintf("Install finished: %d/%d files", run.filesDone.Load(), run.filesTotal))
	updater.send(DownloadingFinished{})
	return nil
}

// PreDownload only fills the chunk cache. The game directory is not touched.
func (i *SophonInstaller) PreDownload(ctx context.Context, threads int, updater DelegateUpdate) error {
	index := NewDownloadIndex(i.Manifest, i.ChunksInfo)
	run := newInstallRun(i, index, "", updater, false)
	PushLogInfo(run, fmt.Sprintf("Pre-downloading %d unique chunks (%s)", len(index.Chunks), PrettifyBytes(index.TotalBytes())))

	if i.CheckFreeSpace {
		if err := requireSpace(i.TempFolder, index.TotalBytes(), updater); err != nil {
			return err
		}
	}
	if err := i.createTempDirs(); err != nil {
		updater.send(DownloadingError{Err: err})
		return err
	}

	updater.send(DownloadingStarted{Path: i.DownloadingTemp()})
	run.seed()
	run.sendBytes()

	if err := RunWorkers(ctx, threads, run.checkStage, run.downloadStage); err != nil {
		return err
	}
	updater.send(DownloadingFinished{})
	return nil
}

// installRun is the state of one Install or PreDownload call.
type installRun struct {
	*chunkPipeline[*SophonChunk]

	installer *SophonInstaller
	index     *SophonDownloadIndex
	outputDir string
	runId     string

	// pending holds the files still to be written. It is only modified
	// before the workers start.
	pending       map[string]bool
	assembleQueue Injector[*SophonAsset]

	deferredMu sync.Mutex
	deferred   []*SophonAsset

	filesTotal uint64
	filesDone  atomic.Uint64
}

func newInstallRun(installer *SophonInstaller, index *SophonDownloadIndex, outputDir string, updater DelegateUpdate, assemble bool) *installRun {
	users := make(map[string]int, len(index.Chunks))
	for name, chunk := range index.Chunks {
		users[name] = len(chunk.UsedInFiles)
	}
	pending := make(map[string]bool, len(index.Files))
	for name := range index.Files {
		pending[name] = true
	}

	r := &installRun{
		installer:  installer,
		index:      index,
		outputDir:  outputDir,
		runId:      uuid.NewString(),
		pending:    pending,
		filesTotal: uint64(len(index.Files)),
	}
	r.chunkPipeline = &chunkPipeline[*SophonChunk]{
		sender:     r,
		fetcher:    installer.Fetcher,
		dir:        installer.ChunkTempFolder(),
		updater:    updater,
		states:     newChunkStates(users),
		required:   index.requiredChunks,
		bytesTotal: index.TotalBytes(),
	}
	if assemble {
		r.ready = r.fileReady
	}
	return r
}

func (r *installRun) LogName() string {
	return "installer"
}

func (r *installRun) RunId() string {
	return r.runId
}

// prescan counts files that already match the manifest as done. Chunks only
// those files needed are credited without being downloaded.
func (r *installRun) prescan(ctx context.Context, threads int) error {
	var mu sync.Mutex
	var installed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(threads, 1))
	for name, asset := range r.index.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := AssetPath(r.outputDir, name)
			if err != nil {
				return newOutputFileError(name, err)
			}
			ok, err := r.installer.HashCache.CheckFile(path, asset.Manifest.AssetSize, asset.Manifest.AssetHashMd5)
			if err != nil {
				PushLogWarning(r, fmt.Sprintf("Failed to check existing file %s: %v", path, err))
				return nil
			}
			if ok {
				mu.Lock()
				installed = append(installed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, name := range installed {
		delete(r.pending, name)
		r.filesDone.Add(1)
		for _, chunkName := range r.index.Files[name].ChunkNames {
			if r.states.release(chunkName) {
				r.skip(chunkName)
				size, _ := r.index.Chunks[chunkName].FileInfo()
				r.bytesDone.Add(size)
			}
		}
	}
	if len(installed) > 0 {
		PushLogInfo(r, fmt.Sprintf("%d files are already up to date", len(installed)))
	}
	return nil
}

func (r *installRun) remainingDownloadBytes() uint64 {
	return r.bytesTotal - min(r.bytesDone.Load(), r.bytesTotal)
}

func (r *installRun) remainingUnpackedBytes() uint64 {
	var total uint64
	for name := range r.pending {
		total += r.index.Files[name].Manifest.AssetSize
	}
	return total
}

func (r *installRun) createDirectories() {
	for _, dir := range r.index.Directories {
		path, err := AssetPath(r.outputDir, dir)
		if err == nil {
			err = os.MkdirAll(path, 0755)
		}
		if err != nil {
			r.fileFailed(newOutputFileError(dir, err))
		}
	}
}

func (r *installRun) seed() {
	for name, chunk := range r.index.Chunks {
		if r.states.get(name).Phase == ChunkDownloaded {
			continue
		}
		r.downloadQueue.Push(chunk)
	}
	if r.ready == nil {
		return
	}
	for name := range r.pending {
		if asset := r.index.Files[name]; len(asset.ChunkNames) == 0 {
			r.assembleQueue.Push(asset)
		}
	}
}

func (r *installRun) sendFiles() {
	r.updater.send(DownloadingProgressFiles{Downloaded: r.filesDone.Load(), Total: r.filesTotal})
}

func (r *installRun) fileReady(name string) {
	if r.pending[name] {
		r.assembleQueue.Push(r.index.Files[name])
	}
}

func (r *installRun) assembleStage(ctx context.Context) bool {
	asset, ok := r.assembleQueue.Steal()
	if !ok {
		return false
	}

	if asset.IsWrittenLast() {
		r.deferredMu.Lock()
		r.deferred = append(r.deferred, asset)
		r.deferredMu.Unlock()
		return true
	}
	r.assembleFile(asset)
	return true
}

func (r *installRun) takeDeferred() []*SophonAsset {
	r.deferredMu.Lock()
	defer r.deferredMu.Unlock()
	deferred := r.deferred
	r.deferred = nil
	return deferred
}

// assembleFile writes the chunks of asset into a staging file, verifies it
// and promotes it to the output directory.
func (r *installRun) assembleFile(asset *SophonAsset) {
	size, hash := asset.Manifest.AssetSize, asset.Manifest.AssetHashMd5

	target, err := AssetPath(r.outputDir, asset.AssetName())
	if err != nil {
		r.fileFailed(newOutputFileError(asset.AssetName(), err))
		return
	}

	tmp := filepath.Join(r.installer.DownloadingTemp(), asset.StagingFilename())
	defer os.Remove(tmp)

	if err := r.writeStaging(tmp, asset); err != nil {
		r.fileFailed(err)
		return
	}

	valid, err := CheckFile(tmp, size, hash)
	if err != nil {
		r.fileFailed(newTempFileError(tmp, err))
		return
	}
	if !valid {
		got, _ := FileMd5(tmp)
		r.updater.send(FileHashCheckFailed{Path: target})
		r.fileFailed(newFileHashMismatchError(target, hash, got))
		return
	}

	if err := CopyFileVerified(tmp, target, size, hash); err != nil {
		r.fileFailed(err)
		return
	}
	if err := r.installer.HashCache.Store(target, hash); err != nil {
		PushLogWarning(r, fmt.Sprintf("Failed to remember hash of %s: %v", target, err))
	}

	for _, chunkName := range asset.ChunkNames {
		r.release(r.index.Chunks[chunkName])
	}

	PushLogDebug(r, fmt.Sprintf("Assembled %s", asset.AssetName()))
	r.filesDone.Add(1)
	r.sendFiles()
}

func (r *installRun) writeStaging(tmp string, asset *SophonAsset) error {
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return newTempFileError(tmp, err)
	}
	if err := f.Truncate(int64(asset.Manifest.AssetSize)); err != nil {
		f.Close()
		return newTempFileError(tmp, err)
	}

	buffer := make([]byte, BufferSize)
	for _, ref := range asset.Manifest.AssetChunks {
		if err := r.writeChunk(f, ref, buffer); err != nil {
			f.Close()
			return newTempFileError(tmp, fmt.Errorf("chunk %s: %w", ref.ChunkName, err))
		}
	}
	if err := f.Close(); err != nil {
		return newTempFileError(tmp, err)
	}
	return nil
}

func (r *installRun) writeChunk(f *os.File, ref *protos.SophonManifestAssetChunk, buffer []byte) error {
	src, err := r.index.Chunks[ref.ChunkName].OpenDecompressed(r.installer.ChunkTempFolder())
	if err != nil {
		return err
	}
	defer src.Close()

	offset, length := int64(ref.ChunkOnFileOffset), int64(ref.ChunkSizeDecompressed)
	dst, err := NewChunkStream(f, offset, offset+length)
	if err != nil {
		return err
	}

	written, err := io.CopyBuffer(dst, src, buffer)
	if err != nil {
		return err
	}
	if written != length {
		return fmt.Errorf("wrote %d bytes, expected %d", written, length)
	}
	return nil
}

func (r *installRun) fileFailed(err error) {
	PushLogError(r, err.Error())
	r.updater.send(DownloadingError{Err: err})
}
