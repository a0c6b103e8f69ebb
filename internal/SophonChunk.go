package internal

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// sophonArtifact is anything the fetcher can place in the chunk cache: asset
// chunks and patch chunks.
type sophonArtifact interface {
	ArtifactName() string
	OnDiskFilename() string
	// FileInfo is the size and MD5 of the bytes as stored on disk.
	FileInfo() (uint64, string)
	DownloadUrl() string
}

// SophonChunk is one unique chunk of a download index.
type SophonChunk struct {
	Manifest   *protos.SophonManifestAssetChunk
	ChunksInfo *SophonChunksInfo
	// UsedInFiles lists each asset name needing the chunk once.
	UsedInFiles []string
}

func (c *SophonChunk) ArtifactName() string {
	return c.Manifest.ChunkName
}

func (c *SophonChunk) IsCompressed() bool {
	return c.ChunksInfo.IsUseCompression
}

func (c *SophonChunk) FileInfo() (uint64, string) {
	if c.IsCompressed() {
		return c.Manifest.ChunkSize, c.Manifest.ChunkCompressedHashMd5
	}
	return c.Manifest.ChunkSizeDecompressed, c.Manifest.ChunkDecompressedHashMd5
}

func (c *SophonChunk) OnDiskFilename() string {
	if c.IsCompressed() {
		return c.Manifest.ChunkName + ".chunk.zstd"
	}
	return c.Manifest.ChunkName + ".chunk"
}

func (c *SophonChunk) DownloadUrl() string {
	return c.ChunksInfo.ChunkUrl(c.Manifest.ChunkName)
}

// OpenDecompressed opens the cached chunk in dir and yields its uncompressed bytes.
func (c *SophonChunk) OpenDecompressed(dir string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(dir, c.OnDiskFilename()))
	if err != nil {
		return nil, err
	}
	if !c.IsCompressed() {
		return f, nil
	}

	decoder, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &zstdFileReader{Decoder: decoder, file: f}, nil
}

type zstdFileReader struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdFileReader) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}
