package internal

import "fmt"

// SophonResponse is the {retcode, message, data} envelope of every API call.
type SophonResponse[T any] struct {
	ReturnCode    int    `json:"retcode"`
	ReturnMessage string `json:"message"`
	Data          *T     `json:"data"`
}

// GameBranches is the data of getGameBranches.
type GameBranches struct {
	GameBranches []GameBranchInfo `json:"game_branches"`
}

type GameBranchInfo struct {
	Game        SophonGame   `json:"game"`
	Main        PackageInfo  `json:"main"`
	PreDownload *PackageInfo `json:"pre_download"`
}

type SophonGame struct {
	Id  string `json:"id"`
	Biz string `json:"biz"`
}

// PackageInfo authorizes the getBuild and getPatchBuild calls for one branch.
type PackageInfo struct {
	PackageId  string            `json:"package_id"`
	Branch     string            `json:"branch"`
	Password   string            `json:"password"`
	Tag        string            `json:"tag"`
	DiffTags   []string          `json:"diff_tags"`
	Categories []PackageCategory `json:"categories"`
}

type PackageCategory struct {
	CategoryId    string `json:"category_id"`
	MatchingField string `json:"matching_field"`
}

func (p *PackageInfo) Version() (Version, error) {
	return ParseVersion(p.Tag)
}

// GetGameLatestById returns the branch of game id with the highest version.
func (g *GameBranches) GetGameLatestById(id string) *GameBranchInfo {
	var latest *GameBranchInfo
	var latestVersion Version
	for i := range g.GameBranches {
		branch := &g.GameBranches[i]
		if branch.Game.Id != id {
			continue
		}
		v, err := branch.Main.Version()
		if err != nil {
			continue
		}
		if latest == nil || latestVersion.Less(v) {
			latest, latestVersion = branch, v
		}
	}
	return latest
}

// GetGameById returns the branch of game id whose main package is at version v.
func (g *GameBranches) GetGameById(id string, v Version) *GameBranchInfo {
	for i := range g.GameBranches {
		branch := &g.GameBranches[i]
		if branch.Game.Id == id && branch.Main.Tag == v.String() {
			return branch
		}
	}
	return nil
}

// SophonManifestBuildData is the data of getBuild.
type SophonManifestBuildData struct {
	BuildId              string                        `json:"build_id"`
	TagName              string                        `json:"tag"`
	ManifestIdentityList []SophonManifestBuildIdentity `json:"manifests"`
}

type SophonManifestBuildIdentity struct {
	SophonManifestIdentity
	ChunkInfo             SophonManifestChunkInfo `json:"stats"`
	ChunksUrlInfo         SophonManifestUrlInfo   `json:"chunk_download"`
	DeduplicatedChunkInfo SophonManifestChunkInfo `json:"deduplicated_stats"`
}

// GetManifestsFor finds the manifest of a component, usually "game" or a voiceover locale.
func (d *SophonManifestBuildData) GetManifestsFor(matchingField string) (*SophonManifestBuildIdentity, error) {
	for i := range d.ManifestIdentityList {
		if d.ManifestIdentityList[i].MatchingField == matchingField {
			return &d.ManifestIdentityList[i], nil
		}
	}
	return nil, fmt.Errorf("sophon manifest with matching field: %s not found", matchingField)
}

// SophonManifestPatchData is the data of getPatchBuild.
type SophonManifestPatchData struct {
	BuildId              string                        `json:"build_id"`
	PatchId              string                        `json:"patch_id"`
	TagName              string                        `json:"tag"`
	ManifestIdentityList []SophonManifestPatchIdentity `json:"manifests"`
}

type SophonManifestPatchIdentity struct {
	SophonManifestIdentity
	DiffUrlInfo SophonManifestUrlInfo `json:"diff_download"`
	// DiffTaggedInfo is keyed by the version being updated from.
	DiffTaggedInfo map[string]SophonManifestChunkInfo `json:"stats"`
}

func (d *SophonManifestPatchData) GetManifestsFor(matchingField string) (*SophonManifestPatchIdentity, error) {
	for i := range d.ManifestIdentityList {
		if d.ManifestIdentityList[i].MatchingField == matchingField {
			return &d.ManifestIdentityList[i], nil
		}
	}
	return nil, fmt.Errorf("sophon patch with matching field: %s not found", matchingField)
}

func (d *SophonManifestPatchData) Version() (Version, error) {
	return ParseVersion(d.TagName)
}

type SophonManifestIdentity struct {
	CategoryId       string                 `json:"category_id"`
	CategoryName     string                 `json:"category_name"`
	MatchingField    string                 `json:"matching_field"`
	ManifestFileInfo SophonManifestFileInfo `json:"manifest"`
	ManifestUrlInfo  SophonManifestUrlInfo  `json:"manifest_download"`
}

type SophonManifestFileInfo struct {
	FileName         string `json:"id"`
	Checksum         string `json:"checksum"`
	CompressedSize   int64  `json:"compressed_size,string"`
	UncompressedSize int64  `json:"uncompressed_size,string"`
}

type SophonManifestUrlInfo struct {
	EncryptionPassword string        `json:"password"`
	UrlPrefix          string        `json:"url_prefix"`
	UrlSuffix          string        `json:"url_suffix"`
	IsEncrypted        BoolConverter `json:"encryption"`
	IsCompressed       BoolConverter `json:"compression"`
}

type SophonManifestChunkInfo struct {
	CompressedSize   int64 `json:"compressed_size,string"`
	UncompressedSize int64 `json:"uncompressed_size,string"`
	FileCount        int   `json:"file_count,string"`
	ChunkCount       int   `json:"chunk_count,string"`
}
