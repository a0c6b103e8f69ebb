package internal

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/riverfog7/SophonCore/internal/protos"
)

// readManifestBytes drains r, zstd-decoding it first when compressed is set.
func readManifestBytes(r io.Reader, compressed bool) ([]byte, error) {
	if compressed {
		zReader, err := zstd.NewReader(r)
		if err != nil {
			return nil, newDecodeError(err)
		}
		defer zReader.Close()
		r = zReader
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newDecodeError(err)
	}
	return data, nil
}

// DecodeManifest parses and validates a download manifest.
func DecodeManifest(data []byte, compressed bool) (*protos.SophonManifestProto, error) {
	raw, err := readManifestBytes(bytes.NewReader(data), compressed)
	if err != nil {
		return nil, err
	}

	manifest := &protos.SophonManifestProto{}
	if err := manifest.Unmarshal(raw); err != nil {
		return nil, newDecodeError(err)
	}
	if err := ValidateManifest(manifest); err != nil {
		return nil, newDecodeError(err)
	}
	return manifest, nil
}

// DecodePatchManifest parses and validates a patch manifest.
func DecodePatchManifest(data []byte, compressed bool) (*protos.SophonPatchProto, error) {
	raw, err := readManifestBytes(bytes.NewReader(data), compressed)
	if err != nil {
		return nil, err
	}

	manifest := &protos.SophonPatchProto{}
	if err := manifest.Unmarshal(raw); err != nil {
		return nil, newDecodeError(err)
	}
	if err := ValidatePatchManifest(manifest); err != nil {
		return nil, newDecodeError(err)
	}
	return manifest, nil
}

// ValidateManifest checks that asset names stay inside the game directory and
// that the chunks of every file cover [0, size) without gap or overlap.
func ValidateManifest(manifest *protos.SophonManifestProto) error {
	for _, asset := range manifest.Assets {
		if _, err := AssetPath(".", asset.AssetName); err != nil {
			return err
		}
		if asset.IsDirectory() {
			continue
		}

		chunks := make([]*protos.SophonManifestAssetChunk, len(asset.AssetChunks))
		copy(chunks, asset.AssetChunks)
		sort.Slice(chunks, func(i, j int) bool {
			return chunks[i].ChunkOnFileOffset < chunks[j].ChunkOnFileOffset
		})

		var expected uint64
		for _, chunk := range chunks {
			if chunk.ChunkName == "" {
				return fmt.Errorf("asset %s: chunk without a name", asset.AssetName)
			}
			if chunk.ChunkOnFileOffset != expected {
				return fmt.Errorf("asset %s: chunk %s at offset %d, expected %d",
					asset.AssetName, chunk.ChunkName, chunk.ChunkOnFileOffset, expected)
			}
			expected += chunk.ChunkSizeDecompressed
		}
		if expected != asset.AssetSize {
			return fmt.Errorf("asset %s: chunks cover %d bytes, asset has %d", asset.AssetName, expected, asset.AssetSize)
		}
	}
	return nil
}

func ValidatePatchManifest(manifest *protos.SophonPatchProto) error {
	for _, asset := range manifest.PatchAssets {
		if _, err := AssetPath(".", asset.AssetName); err != nil {
			return err
		}
		for from, chunk := range asset.AssetPatchChunks {
			if chunk.PatchName == "" {
				return fmt.Errorf("asset %s: patch from %s without a patch name", asset.AssetName, from)
			}
			if chunk.PatchSize > 0 && chunk.PatchOffset+chunk.PatchLength > chunk.PatchSize {
				return fmt.Errorf("asset %s: patch range [%d, %d) exceeds patch %s of %d bytes",
					asset.AssetName, chunk.PatchOffset, chunk.PatchOffset+chunk.PatchLength, chunk.PatchName, chunk.PatchSize)
			}
			if chunk.OriginalFileName != "" {
				if _, err := AssetPath(".", chunk.OriginalFileName); err != nil {
					return err
				}
			}
		}
	}
	for _, unused := range manifest.UnusedAssets {
		for _, file := range unused.Assets {
			if _, err := AssetPath(".", file.FileName); err != nil {
				return err
			}
		}
	}
	return nil
}
