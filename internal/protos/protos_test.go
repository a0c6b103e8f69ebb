package protos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleManifest() *SophonManifestProto {
	return &SophonManifestProto{Assets: []*SophonManifestAssetProperty{
		{
			AssetName:    "GenshinImpact_Data/data.unity3d",
			AssetSize:    6,
			AssetHashMd5: "e80b5017098950fc58aad83c8c14978e",
			AssetChunks: []*SophonManifestAssetChunk{
				{
					ChunkName:                "c1_abc",
					ChunkDecompressedHashMd5: "5d41402abc4b2a76b9719d911017c592",
					ChunkOnFileOffset:        0,
					ChunkSize:                3,
					ChunkSizeDecompressed:    5,
					ChunkCompressedHashXxh:   0xdeadbeef,
					ChunkCompressedHashMd5:   "0cc175b9c0f1b6a831c399e269772661",
				},
				{
					ChunkName:             "c2_def",
					ChunkOnFileOffset:     5,
					ChunkSizeDecompressed: 1,
				},
			},
		},
		{AssetName: "GenshinImpact_Data", AssetType: 64},
	}}
}

func TestManifestRoundTrip(t *testing.T) {
	want := sampleManifest()

	var got SophonManifestProto
	require.NoError(t, got.Unmarshal(want.Marshal()))
	assert.Equal(t, want, &got)

	assert.Equal(t, uint64(2), got.TotalFiles())
	assert.Equal(t, uint64(2), got.TotalChunks())
	assert.Equal(t, uint64(3), got.TotalBytesCompressed())
	assert.Equal(t, uint64(6), got.TotalBytesDecompressed())
	assert.False(t, got.Assets[0].IsDirectory())
	assert.True(t, got.Assets[1].IsDirectory())
}

func TestManifestSkipsUnknownFields(t *testing.T) {
	asset := sampleManifest().Assets[0]
	raw := asset.Marshal()
	raw = protowire.AppendTag(raw, 42, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 7)
	raw = protowire.AppendTag(raw, 43, protowire.BytesType)
	raw = protowire.AppendString(raw, "future")

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, raw)
	b = protowire.AppendTag(b, 9, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	var got SophonManifestProto
	require.NoError(t, got.Unmarshal(b))
	require.Len(t, got.Assets, 1)
	assert.Equal(t, asset, got.Assets[0])
}

func TestManifestRejectsWrongWireType(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	var got SophonManifestProto
	assert.Error(t, got.Unmarshal(b))
}

func TestManifestRejectsTruncatedInput(t *testing.T) {
	raw := sampleManifest().Marshal()

	var got SophonManifestProto
	assert.Error(t, got.Unmarshal(raw[:len(raw)-3]))
}

func TestPatchRoundTrip(t *testing.T) {
	want := &SophonPatchProto{
		PatchAssets: []*SophonPatchAssetProperty{{
			AssetName:    "moved2.bin",
			AssetSize:    4,
			AssetHashMd5: "a1b2",
			AssetPatchChunks: map[string]*SophonPatchAssetChunk{
				"1.0.0": {
					PatchName:          "p1",
					VersionTag:         "1.1.0",
					BuildId:            "b1",
					PatchSize:          20,
					PatchMd5:           "c3d4",
					PatchOffset:        4,
					PatchLength:        16,
					OriginalFileName:   "moved.bin",
					OriginalFileLength: 4,
					OriginalFileMd5:    "e5f6",
				},
				"0.9.0": {PatchName: "p0", PatchSize: 4, PatchLength: 4},
			},
		}},
		UnusedAssets: map[string]*SophonUnusedAssetInfo{
			"1.0.0": {Assets: []*SophonUnusedAssetFile{{FileName: "old.bin", FileSize: 4, FileMd5: "0a0b"}}},
		},
	}

	var got SophonPatchProto
	require.NoError(t, got.Unmarshal(want.Marshal()))
	assert.Equal(t, want, &got)
}
