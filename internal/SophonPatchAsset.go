package internal

import (
	"github.com/riverfog7/SophonCore/internal/protos"
)

// SophonPatchMethod is how a target file is produced from its patch chunk.
type SophonPatchMethod int

const (
	// CopyOver extracts the literal file from the patch chunk.
	CopyOver SophonPatchMethod = iota
	// Patch applies an hdiff delta to the original file.
	Patch
)

func (m SophonPatchMethod) String() string {
	switch m {
	case CopyOver:
		return "copy"
	case Patch:
		return "patch"
	}
	return "unknown"
}

// SophonPatchChunk is one unique patch file of a patch manifest. Patch files
// are stored on disk as served.
type SophonPatchChunk struct {
	Manifest    *protos.SophonPatchAssetChunk
	ChunksInfo  *SophonChunksInfo
	UsedInFiles []string
}

func (c *SophonPatchChunk) ArtifactName() string {
	return c.Manifest.PatchName
}

func (c *SophonPatchChunk) OnDiskFilename() string {
	return c.Manifest.PatchName + ".patch"
}

func (c *SophonPatchChunk) FileInfo() (uint64, string) {
	return c.Manifest.PatchSize, c.Manifest.PatchMd5
}

func (c *SophonPatchChunk) DownloadUrl() string {
	return c.ChunksInfo.ChunkUrl(c.Manifest.PatchName)
}

// SophonPatchAsset is a target file together with the patch chunk entry for
// the installed version.
type SophonPatchAsset struct {
	Manifest *protos.SophonPatchAssetProperty
	Chunk    *protos.SophonPatchAssetChunk
}

func (a *SophonPatchAsset) AssetName() string {
	return a.Manifest.AssetName
}

func (a *SophonPatchAsset) PatchMethod() SophonPatchMethod {
	if a.Chunk.OriginalFileName == "" {
		return CopyOver
	}
	return Patch
}

// IsMove reports whether the delta source lives under another name.
func (a *SophonPatchAsset) IsMove() bool {
	return a.PatchMethod() == Patch && a.Chunk.OriginalFileName != a.Manifest.AssetName
}

func (a *SophonPatchAsset) stagingBase() string {
	return GetStagingFilename(a.Manifest.AssetName, a.Manifest.AssetHashMd5)
}

func (a *SophonPatchAsset) StagingFilename() string {
	return a.stagingBase() + ".tmp"
}

// OutputFilename receives the hpatchz output.
func (a *SophonPatchAsset) OutputFilename() string {
	return a.stagingBase() + ".out.tmp"
}

func (a *SophonPatchAsset) HDiffFilename() string {
	return a.Chunk.PatchName + "-" + a.stagingBase() + ".hdiff"
}

// SophonPatchIndex is the view of a patch manifest for one installed version.
type SophonPatchIndex struct {
	Chunks map[string]*SophonPatchChunk
	// Files only holds assets with an entry for the installed version.
	Files  map[string]*SophonPatchAsset
	Unused []*protos.SophonUnusedAssetFile
	// TargetNames holds every asset name of the target version.
	TargetNames map[string]struct{}
	// SourceUsers counts delta users per original file name.
	SourceUsers map[string]int
}

func NewPatchIndex(manifest *protos.SophonPatchProto, chunksInfo *SophonChunksInfo, from Version) *SophonPatchIndex {
	key := from.String()
	index := &SophonPatchIndex{
		Chunks:      map[string]*SophonPatchChunk{},
		Files:       map[string]*SophonPatchAsset{},
		TargetNames: map[string]struct{}{},
		SourceUsers: map[string]int{},
	}

	for _, assetManifest := range manifest.PatchAssets {
		index.TargetNames[assetManifest.AssetName] = struct{}{}

		chunkManifest, ok := assetManifest.AssetPatchChunks[key]
		if !ok || chunkManifest == nil {
			continue
		}
		if _, dup := index.Files[assetManifest.AssetName]; dup {
			continue
		}

		asset := &SophonPatchAsset{Manifest: assetManifest, Chunk: chunkManifest}
		index.Files[assetManifest.AssetName] = asset
		if asset.PatchMethod() == Patch {
			index.SourceUsers[chunkManifest.OriginalFileName]++
		}

		chunk, ok := index.Chunks[chunkManifest.PatchName]
		if !ok {
			chunk = &SophonPatchChunk{Manifest: chunkManifest, ChunksInfo: chunksInfo}
			index.Chunks[chunkManifest.PatchName] = chunk
		}
		chunk.UsedInFiles = append(chunk.UsedInFiles, assetManifest.AssetName)
	}

	if unused, ok := manifest.UnusedAssets[key]; ok && unused != nil {
		index.Unused = unused.Assets
	}
	return index
}

// TotalBytes is the size of every unique patch chunk.
func (i *SophonPatchIndex) TotalBytes() uint64 {
	var total uint64
	for _, chunk := range i.Chunks {
		total += chunk.Manifest.PatchSize
	}
	return total
}

func (i *SophonPatchIndex) requiredChunks(file string) []string {
	return []string{i.Files[file].Chunk.PatchName}
}
