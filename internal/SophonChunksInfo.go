package internal

import "strings"

// SophonChunksInfo is the remote chunks are fetched from, plus the stats the
// API reports for it.
type SophonChunksInfo struct {
	UrlPrefix           string
	UrlSuffix           string
	IsUseCompression    bool
	ChunksCount         int
	FilesCount          int
	TotalSize           int64
	TotalCompressedSize int64
}

// ChunkUrl returns url_prefix + url_suffix + "/" + chunkName.
func (s *SophonChunksInfo) ChunkUrl(chunkName string) string {
	return strings.TrimRight(s.UrlPrefix+s.UrlSuffix, "/") + "/" + chunkName
}

// CopyWithNewBaseUrl returns a copy of SophonChunksInfo served from another prefix.
func (s *SophonChunksInfo) CopyWithNewBaseUrl(newPrefix string) *SophonChunksInfo {
	c := *s
	c.UrlPrefix = newPrefix
	c.UrlSuffix = ""
	return &c
}

// CreateChunksInfo builds a SophonChunksInfo from the chunk_download and stats
// sections of a build or patch response.
func CreateChunksInfo(urlInfo SophonManifestUrlInfo, stats SophonManifestChunkInfo) *SophonChunksInfo {
	return &SophonChunksInfo{
		UrlPrefix:           urlInfo.UrlPrefix,
		UrlSuffix:           urlInfo.UrlSuffix,
		IsUseCompression:    bool(urlInfo.IsCompressed),
		ChunksCount:         stats.ChunkCount,
		FilesCount:          stats.FileCount,
		TotalSize:           stats.UncompressedSize,
		TotalCompressedSize: stats.CompressedSize,
	}
}
