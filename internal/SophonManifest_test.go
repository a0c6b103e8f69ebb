package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverfog7/SophonCore/internal/protos"
)

func TestDecodeManifest(t *testing.T) {
	manifest := &protos.SophonManifestProto{Assets: []*protos.SophonManifestAssetProperty{
		plainAsset("a.bin", testChunk{"c1", "hello"}, testChunk{"c2", "!"}),
	}}
	raw := manifest.Marshal()

	t.Run("plain", func(t *testing.T) {
		got, err := DecodeManifest(raw, false)
		require.NoError(t, err)
		assert.Equal(t, manifest, got)
	})

	t.Run("zstd", func(t *testing.T) {
		got, err := DecodeManifest(zstdBytes(t, string(raw)), true)
		require.NoError(t, err)
		assert.Equal(t, manifest, got)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeManifest([]byte("not zstd"), true)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindDecode))
	})
}

func TestValidateManifest(t *testing.T) {
	valid := plainAsset("a.bin", testChunk{"c1", "hello"}, testChunk{"c2", "!"})

	gap := plainAsset("gap.bin", testChunk{"c1", "hello"}, testChunk{"c2", "!"})
	gap.AssetChunks[1].ChunkOnFileOffset = 6

	short := plainAsset("short.bin", testChunk{"c1", "hello"})
	short.AssetSize = 10

	unnamed := plainAsset("unnamed.bin", testChunk{"c1", "hello"})
	unnamed.AssetChunks[0].ChunkName = ""

	shuffled := plainAsset("shuffled.bin", testChunk{"c1", "hello"}, testChunk{"c2", "!"})
	shuffled.AssetChunks[0], shuffled.AssetChunks[1] = shuffled.AssetChunks[1], shuffled.AssetChunks[0]

	testCases := []struct {
		name  string
		asset *protos.SophonManifestAssetProperty
		ok    bool
	}{
		{"contiguous", valid, true},
		{"out of order", shuffled, true},
		{"directory", &protos.SophonManifestAssetProperty{AssetName: "dir", AssetType: 64}, true},
		{"gap", gap, false},
		{"does not cover size", short, false},
		{"chunk without name", unnamed, false},
		{"escapes root", plainAsset("../evil.bin", testChunk{"c1", "x"}), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateManifest(&protos.SophonManifestProto{Assets: []*protos.SophonManifestAssetProperty{tc.asset}})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidatePatchManifest(t *testing.T) {
	asset := func(chunk *protos.SophonPatchAssetChunk) *protos.SophonPatchProto {
		return &protos.SophonPatchProto{PatchAssets: []*protos.SophonPatchAssetProperty{{
			AssetName:        "a.bin",
			AssetPatchChunks: map[string]*protos.SophonPatchAssetChunk{"1.0.0": chunk},
		}}}
	}

	assert.NoError(t, ValidatePatchManifest(asset(&protos.SophonPatchAssetChunk{PatchName: "p", PatchSize: 10, PatchOffset: 2, PatchLength: 8})))
	assert.Error(t, ValidatePatchManifest(asset(&protos.SophonPatchAssetChunk{PatchName: "p", PatchSize: 10, PatchOffset: 4, PatchLength: 8})))
	assert.Error(t, ValidatePatchManifest(asset(&protos.SophonPatchAssetChunk{PatchSize: 10})))
	assert.Error(t, ValidatePatchManifest(asset(&protos.SophonPatchAssetChunk{PatchName: "p", OriginalFileName: "../x"})))

	unused := &protos.SophonPatchProto{UnusedAssets: map[string]*protos.SophonUnusedAssetInfo{
		"1.0.0": {Assets: []*protos.SophonUnusedAssetFile{{FileName: "/abs"}}},
	}}
	assert.Error(t, ValidatePatchManifest(unused))
}
