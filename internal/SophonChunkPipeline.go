package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// queuedArtifact is an artifact that feeds one or more files.
type queuedArtifact interface {
	sophonArtifact
	usedInFiles() []string
}

func (c *SophonChunk) usedInFiles() []string {
	return c.UsedInFiles
}

func (c *SophonPatchChunk) usedInFiles() []string {
	return c.UsedInFiles
}

// chunkPipeline is the download and check half of a run, shared by the
// installer and the patcher.
type chunkPipeline[A queuedArtifact] struct {
	sender   interface{}
	fetcher  *SophonChunkFetcher
	dir      string
	updater  DelegateUpdate
	states   *chunkStates
	required func(file string) []string
	// ready receives every file whose artifacts are all verified. It is nil
	// when nothing is assembled.
	ready func(file string)

	downloadQueue Injector[A]
	checkQueue    Injector[A]

	bytesTotal uint64
	bytesDone  atomic.Uint64
}

func (p *chunkPipeline[A]) path(artifact A) string {
	return filepath.Join(p.dir, artifact.OnDiskFilename())
}

func (p *chunkPipeline[A]) sendBytes() {
	done := min(p.bytesDone.Load(), p.bytesTotal)
	p.updater.send(DownloadingProgressBytes{Downloaded: done, Total: p.bytesTotal})
}

// skip marks an artifact as available without fetching it.
func (p *chunkPipeline[A]) skip(name string) {
	p.states.succeed(name, nil, nil)
}

// release drops one user of the artifact and deletes it from the cache once
// nothing needs it anymore.
func (p *chunkPipeline[A]) release(artifact A) {
	if p.states.release(artifact.ArtifactName()) {
		os.Remove(p.path(artifact))
	}
}

func (p *chunkPipeline[A]) downloadStage(ctx context.Context) bool {
	artifact, ok := p.downloadQueue.Steal()
	if !ok {
		return false
	}

	_, cached, err := p.fetcher.FetchArtifact(ctx, artifact, p.dir)
	switch {
	case err != nil:
		p.failed(ctx, artifact, err)
	case cached:
		PushLogDebug(p.sender, fmt.Sprintf("%s served from cache", artifact.ArtifactName()))
		p.verified(artifact)
	default:
		p.checkQueue.Push(artifact)
	}
	return true
}

func (p *chunkPipeline[A]) checkStage(ctx context.Context) bool {
	artifact, ok := p.checkQueue.Steal()
	if !ok {
		return false
	}

	path := p.path(artifact)
	size, md5sum := artifact.FileInfo()
	valid, err := CheckFile(path, size, md5sum)
	if err == nil && !valid {
		got, _ := FileMd5(path)
		err = newChunkHashMismatchError(artifact.ArtifactName(), md5sum, got)
	}
	if err != nil {
		p.failed(ctx, artifact, err)
		return true
	}

	p.verified(artifact)
	return true
}

func (p *chunkPipeline[A]) failed(ctx context.Context, artifact A, err error) {
	os.Remove(p.path(artifact))
	if ctx.Err() != nil {
		return
	}

	name := artifact.ArtifactName()
	if p.states.fail(name) {
		PushLogWarning(p.sender, fmt.Sprintf("%s failed, requeueing: %v", name, err))
		p.downloadQueue.Push(artifact)
		return
	}

	PushLogError(p.sender, fmt.Sprintf("%s failed, out of retries: %v", name, err))
	if !IsKind(err, KindChunkDownloadFailed) {
		err = newChunkDownloadFailedError(name, err)
	}
	p.updater.send(DownloadingError{Err: err})
}

func (p *chunkPipeline[A]) verified(artifact A) {
	size, _ := artifact.FileInfo()
	p.bytesDone.Add(size)
	p.sendBytes()

	ready := p.states.succeed(artifact.ArtifactName(), artifact.usedInFiles(), p.required)
	if p.ready == nil {
		return
	}
	for _, file := range ready {
		p.ready(file)
	}
}
