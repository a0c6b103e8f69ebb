package internal

import "fmt"

// SophonChunkManifestInfoPair holds where a component's manifest lives and
// where its chunks are served from.
type SophonChunkManifestInfoPair struct {
	ChunksInfo    *SophonChunksInfo
	ManifestInfo  *SophonManifestInfo
	MatchingField string
	Tag           string
}

// InfoPair selects the download manifest of a component.
func (d *SophonManifestBuildData) InfoPair(matchingField string) (*SophonChunkManifestInfoPair, error) {
	identity, err := d.GetManifestsFor(matchingField)
	if err != nil {
		return nil, err
	}

	return &SophonChunkManifestInfoPair{
		ChunksInfo:    CreateChunksInfo(identity.ChunksUrlInfo, identity.ChunkInfo),
		ManifestInfo:  CreateManifestInfo(identity.ManifestFileInfo, identity.ManifestUrlInfo),
		MatchingField: matchingField,
		Tag:           d.TagName,
	}, nil
}

// InfoPair selects the patch manifest of a component for an update from versionFrom.
func (d *SophonManifestPatchData) InfoPair(matchingField string, versionFrom Version) (*SophonChunkManifestInfoPair, error) {
	identity, err := d.GetManifestsFor(matchingField)
	if err != nil {
		return nil, err
	}

	stats, ok := identity.DiffTaggedInfo[versionFrom.String()]
	if !ok {
		return nil, fmt.Errorf("sophon patch diff tagged info with version: %s is not found", versionFrom)
	}

	return &SophonChunkManifestInfoPair{
		ChunksInfo:    CreateChunksInfo(identity.DiffUrlInfo, stats),
		ManifestInfo:  CreateManifestInfo(identity.ManifestFileInfo, identity.ManifestUrlInfo),
		MatchingField: matchingField,
		Tag:           d.TagName,
	}, nil
}
