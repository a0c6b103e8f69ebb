package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SophonChunkFetcher downloads chunks into the chunk cache.
type SophonChunkFetcher struct {
	Client  *http.Client
	Limiter *SophonDownloadSpeedLimiter
	// AltChunksInfo, when set, is tried after the primary remote fails.
	AltChunksInfo *SophonChunksInfo
}

func NewSophonChunkFetcher(client *http.Client) *SophonChunkFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &SophonChunkFetcher{Client: client}
}

func (f *SophonChunkFetcher) LogName() string {
	return "fetcher"
}

// GetChunkAndIfAlt issues the GET for an artifact, falling back to the
// alternative remote on transport errors and non-2xx answers.
func (f *SophonChunkFetcher) GetChunkAndIfAlt(ctx context.Context, artifact sophonArtifact) (*http.Response, error) {
	resp, err := f.get(ctx, artifact.DownloadUrl())
	if err == nil || f.AltChunksInfo == nil || ctx.Err() != nil {
		return resp, err
	}

	PushLogWarning(f, fmt.Sprintf("Chunk %s failed on the primary remote, trying alternative: %v", artifact.ArtifactName(), err))
	return f.get(ctx, f.AltChunksInfo.ChunkUrl(artifact.ArtifactName()))
}

func (f *SophonChunkFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, newHttpError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, newHttpError(fmt.Errorf("GET %s: %s", url, resp.Status))
	}
	return resp, nil
}

// FetchArtifact makes sure the artifact is present in dir and returns its
// path. A cached file that already verifies is reused and reported as cached;
// otherwise the response is written as-is and left for the check stage.
func (f *SophonChunkFetcher) FetchArtifact(ctx context.Context, artifact sophonArtifact, dir string) (string, bool, error) {
	path := filepath.Join(dir, artifact.OnDiskFilename())

	size, md5sum := artifact.FileInfo()
	if ok, _ := CheckFile(path, size, md5sum); ok {
		return path, true, nil
	}

	if err := f.downloadToFile(ctx, artifact, path); err != nil {
		os.Remove(path)
		return "", false, newChunkDownloadFailedError(artifact.ArtifactName(), err)
	}
	return path, false, nil
}

func (f *SophonChunkFetcher) downloadToFile(ctx context.Context, artifact sophonArtifact, path string) error {
	resp, err := f.GetChunkAndIfAlt(ctx, artifact)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if f.Limiter != nil {
		f.Limiter.IncrementChunkProcessedCount()
		defer f.Limiter.DecrementChunkProcessedCount()
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return newTempFileError(path, err)
	}

	buffer := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(out, f.Limiter.Reader(ctx, resp.Body), buffer); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// FetchDecompressed downloads a chunk into memory, verifies the wire bytes and
// returns them uncompressed and verified against the decompressed hash.
func (f *SophonChunkFetcher) FetchDecompressed(ctx context.Context, chunk *SophonChunk) ([]byte, error) {
	resp, err := f.GetChunkAndIfAlt(ctx, chunk)
	if err != nil {
		return nil, newChunkDownloadFailedError(chunk.ArtifactName(), err)
	}
	defer resp.Body.Close()

	if f.Limiter != nil {
		f.Limiter.IncrementChunkProcessedCount()
		defer f.Limiter.DecrementChunkProcessedCount()
	}

	raw, err := io.ReadAll(f.Limiter.Reader(ctx, resp.Body))
	if err != nil {
		return nil, newChunkDownloadFailedError(chunk.ArtifactName(), err)
	}

	size, md5sum := chunk.FileInfo()
	if err := checkBytes(chunk.ArtifactName(), raw, size, md5sum); err != nil {
		return nil, err
	}
	if !chunk.IsCompressed() {
		return raw, nil
	}

	decoder, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, newDecodeError(err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, newDecodeError(err)
	}
	if err := checkBytes(chunk.ArtifactName(), data, chunk.Manifest.ChunkSizeDecompressed, chunk.Manifest.ChunkDecompressedHashMd5); err != nil {
		return nil, err
	}
	return data, nil
}

func checkBytes(name string, data []byte, size uint64, md5sum string) error {
	got, _ := HashReaderMd5(bytes.NewReader(data))
	if uint64(len(data)) != size || !strings.EqualFold(got, md5sum) {
		return newChunkHashMismatchError(name, md5sum, got)
	}
	return nil
}
