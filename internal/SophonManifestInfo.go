package internal

import "strings"

// SophonManifestInfo locates a manifest file on the remote.
type SophonManifestInfo struct {
	UrlPrefix              string
	UrlSuffix              string
	ManifestId             string
	ManifestChecksumMd5    string
	IsUseCompression       bool
	ManifestSize           int64
	ManifestCompressedSize int64
}

// ManifestFileUrl returns the complete URL for the manifest file
func (s *SophonManifestInfo) ManifestFileUrl() string {
	return strings.TrimRight(s.UrlPrefix+s.UrlSuffix, "/") + "/" + s.ManifestId
}

// CreateManifestInfo builds a SophonManifestInfo from the manifest and
// manifest_download sections of a build or patch response.
func CreateManifestInfo(fileInfo SophonManifestFileInfo, urlInfo SophonManifestUrlInfo) *SophonManifestInfo {
	return &SophonManifestInfo{
		UrlPrefix:              urlInfo.UrlPrefix,
		UrlSuffix:              urlInfo.UrlSuffix,
		ManifestId:             fileInfo.FileName,
		ManifestChecksumMd5:    fileInfo.Checksum,
		IsUseCompression:       bool(urlInfo.IsCompressed),
		ManifestSize:           fileInfo.UncompressedSize,
		ManifestCompressedSize: fileInfo.CompressedSize,
	}
}
