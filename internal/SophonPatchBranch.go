package internal

import (
	"context"
	"net/http"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// GetPatchBuild fetches the patch manifests leading to the package's version.
func (c *SophonHTTPClient) GetPatchBuild(ctx context.Context, pkg *PackageInfo) (*SophonManifestPatchData, error) {
	return apiRequest[SophonManifestPatchData](ctx, c, http.MethodPost,
		c.ApiHost+"/downloader/sophon_chunk/api/getPatchBuild?"+packageQuery(pkg))
}

// GetPatchManifest downloads and decodes the patch manifest described by info.
func (c *SophonHTTPClient) GetPatchManifest(ctx context.Context, info *SophonManifestInfo) (*protos.SophonPatchProto, error) {
	data, err := c.fetchManifestBytes(ctx, info)
	if err != nil {
		return nil, err
	}
	return DecodePatchManifest(data, info.IsUseCompression)
}
