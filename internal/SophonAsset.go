package internal

import (
	"strings"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// lastAssetSuffix marks the file the launcher inspects to offer a resume; it
// is materialized after every other file.
const lastAssetSuffix = "globalgamemanagers"

// SophonAsset is a file of a download index.
type SophonAsset struct {
	Manifest *protos.SophonManifestAssetProperty
	// ChunkNames holds every distinct chunk of the asset in manifest order.
	ChunkNames []string
}

func (a *SophonAsset) AssetName() string {
	return a.Manifest.AssetName
}

func (a *SophonAsset) StagingFilename() string {
	return GetStagingFilename(a.Manifest.AssetName, a.Manifest.AssetHashMd5) + ".tmp"
}

func (a *SophonAsset) IsWrittenLast() bool {
	return strings.HasSuffix(a.Manifest.AssetName, lastAssetSuffix)
}

// SophonDownloadIndex is the deduplicated view of a download manifest. It is
// built without touching the disk and is read-only afterwards.
type SophonDownloadIndex struct {
	Chunks      map[string]*SophonChunk
	Files       map[string]*SophonAsset
	Directories []string
}

func NewDownloadIndex(manifest *protos.SophonManifestProto, chunksInfo *SophonChunksInfo) *SophonDownloadIndex {
	index := &SophonDownloadIndex{
		Chunks: map[string]*SophonChunk{},
		Files:  map[string]*SophonAsset{},
	}

	for _, assetManifest := range manifest.Assets {
		if assetManifest.IsDirectory() {
			index.Directories = append(index.Directories, assetManifest.AssetName)
			continue
		}
		if _, dup := index.Files[assetManifest.AssetName]; dup {
			continue
		}

		asset := &SophonAsset{Manifest: assetManifest}
		seen := map[string]struct{}{}
		for _, chunkManifest := range assetManifest.AssetChunks {
			name := chunkManifest.ChunkName
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			asset.ChunkNames = append(asset.ChunkNames, name)

			chunk, ok := index.Chunks[name]
			if !ok {
				chunk = &SophonChunk{Manifest: chunkManifest, ChunksInfo: chunksInfo}
				index.Chunks[name] = chunk
			}
			chunk.UsedInFiles = append(chunk.UsedInFiles, assetManifest.AssetName)
		}
		index.Files[assetManifest.AssetName] = asset
	}
	return index
}

// TotalBytes is the on-disk size of every unique chunk.
func (i *SophonDownloadIndex) TotalBytes() uint64 {
	var total uint64
	for _, chunk := range i.Chunks {
		size, _ := chunk.FileInfo()
		total += size
	}
	return total
}

// UnpackedBytes is the size of every file once assembled.
func (i *SophonDownloadIndex) UnpackedBytes() uint64 {
	var total uint64
	for _, file := range i.Files {
		total += file.Manifest.AssetSize
	}
	return total
}

func (i *SophonDownloadIndex) requiredChunks(file string) []string {
	return i.Files[file].ChunkNames
}
