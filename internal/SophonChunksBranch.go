package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// GameEdition selects the vendor region the API calls go to.
type GameEdition int

const (
	EditionGlobal GameEdition = iota
	EditionChina
)

func ParseGameEdition(s string) (GameEdition, error) {
	switch strings.ToLower(s) {
	case "", "global":
		return EditionGlobal, nil
	case "china", "cn":
		return EditionChina, nil
	}
	return EditionGlobal, fmt.Errorf("unknown game edition %q", s)
}

func (e GameEdition) BranchesHost() string {
	if e == EditionChina {
		return "https://hyp-api.mihoyo.com"
	}
	return "https://sg-hyp-api.hoyoverse.com"
}

func (e GameEdition) ApiHost() string {
	if e == EditionChina {
		return "https://api-takumi.mihoyo.com"
	}
	return "https://sg-public-api.hoyoverse.com"
}

func (e GameEdition) LauncherId() string {
	if e == EditionChina {
		return "jGHBHlcOq1"
	}
	return "VYTpXlbWo8"
}

// SophonHTTPClient talks to the branch and build APIs. The host fields start
// from the edition defaults and may be pointed at a mirror.
type SophonHTTPClient struct {
	Client       *http.Client
	Edition      GameEdition
	BranchesHost string
	ApiHost      string
	LauncherId   string
	// RetryAttempt bounds WaitForRetry for every API call.
	RetryAttempt int
	// ManifestTimeout is the first attempt's timeout in seconds for a
	// manifest body; every retry adds it again.
	ManifestTimeout int
}

// NewSophonHTTPClient creates a new SophonHTTPClient instance
func NewSophonHTTPClient(client *http.Client, edition GameEdition) *SophonHTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SophonHTTPClient{
		Client:          client,
		Edition:         edition,
		BranchesHost:    edition.BranchesHost(),
		ApiHost:         edition.ApiHost(),
		LauncherId:      edition.LauncherId(),
		RetryAttempt:    3,
		ManifestTimeout: DefaultManifestTimeoutSec,
	}
}

func (c *SophonHTTPClient) LogName() string {
	return "api"
}

// GetGameBranches lists the branches (and their package credentials) of every game of the launcher.
func (c *SophonHTTPClient) GetGameBranches(ctx context.Context) (*GameBranches, error) {
	query := url.Values{"launcher_id": {c.LauncherId}}
	return apiRequest[GameBranches](ctx, c, http.MethodGet,
		c.BranchesHost+"/hyp/hyp-connect/api/getGameBranches?"+query.Encode())
}

// GetBuild fetches the download manifests of a package, grouped by component.
func (c *SophonHTTPClient) GetBuild(ctx context.Context, pkg *PackageInfo) (*SophonManifestBuildData, error) {
	return apiRequest[SophonManifestBuildData](ctx, c, http.MethodGet,
		c.ApiHost+"/downloader/sophon_chunk/api/getBuild?"+packageQuery(pkg))
}

// GetDownloadManifest downloads and decodes the manifest described by info.
func (c *SophonHTTPClient) GetDownloadManifest(ctx context.Context, info *SophonManifestInfo) (*protos.SophonManifestProto, error) {
	data, err := c.fetchManifestBytes(ctx, info)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data, info.IsUseCompression)
}

func (c *SophonHTTPClient) fetchManifestBytes(ctx context.Context, info *SophonManifestInfo) ([]byte, error) {
	return WaitForRetry[[]byte](ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.ManifestFileUrl(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, newHttpError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newHttpError(fmt.Errorf("manifest %s: %s", info.ManifestId, resp.Status))
		}
		return io.ReadAll(resp.Body)
	}, c.manifestTimeout(), c.manifestTimeout(), c.retryAttempt(), nil)
}

func (c *SophonHTTPClient) manifestTimeout() *int {
	if c.ManifestTimeout < 1 {
		return intPtr(DefaultManifestTimeoutSec)
	}
	return intPtr(c.ManifestTimeout)
}

func (c *SophonHTTPClient) retryAttempt() *int {
	if c.RetryAttempt < 1 {
		return intPtr(1)
	}
	return intPtr(c.RetryAttempt)
}

func packageQuery(pkg *PackageInfo) string {
	return url.Values{
		"branch":     {pkg.Branch},
		"password":   {pkg.Password},
		"package_id": {pkg.PackageId},
	}.Encode()
}

// apiRequest performs one API call with retries and unwraps the response envelope.
func apiRequest[T any](ctx context.Context, c *SophonHTTPClient, method, requestUrl string) (*T, error) {
	return WaitForRetry[*T](ctx, func(ctx context.Context) (*T, error) {
		req, err := http.NewRequestWithContext(ctx, method, requestUrl, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, newHttpError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newHttpError(fmt.Errorf("%s %s: %s", method, req.URL.Path, resp.Status))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		var envelope SophonResponse[T]
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
		}
		if envelope.ReturnCode != 0 {
			return nil, newHttpError(fmt.Errorf("api returned %d: %s", envelope.ReturnCode, envelope.ReturnMessage))
		}
		if envelope.Data == nil {
			return nil, newHttpError(fmt.Errorf("api returned no data: %s", envelope.ReturnMessage))
		}
		return envelope.Data, nil
	}, nil, nil, c.retryAttempt(), nil)
}
