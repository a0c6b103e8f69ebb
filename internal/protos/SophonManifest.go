package protos

import "google.golang.org/protobuf/encoding/protowire"

// SophonManifestProto is the download manifest: every asset of one content tree.
type SophonManifestProto struct {
	Assets []*SophonManifestAssetProperty
}

// SophonManifestAssetProperty describes a single file (or directory) of the tree.
type SophonManifestAssetProperty struct {
	AssetName    string
	AssetChunks  []*SophonManifestAssetChunk
	AssetType    int32
	AssetSize    uint64
	AssetHashMd5 string
}

// SophonManifestAssetChunk places one remote chunk inside an asset.
type SophonManifestAssetChunk struct {
	ChunkName                string
	ChunkDecompressedHashMd5 string
	ChunkOnFileOffset        uint64
	ChunkSize                uint64
	ChunkSizeDecompressed    uint64
	ChunkCompressedHashXxh   uint64
	ChunkCompressedHashMd5   string
}

// IsDirectory reports whether the asset only describes a folder.
func (a *SophonManifestAssetProperty) IsDirectory() bool {
	return a.AssetType != 0 || a.AssetHashMd5 == ""
}

func (m *SophonManifestProto) TotalBytesCompressed() uint64 {
	var total uint64
	for _, asset := range m.Assets {
		for _, chunk := range asset.AssetChunks {
			total += chunk.ChunkSize
		}
	}
	return total
}

func (m *SophonManifestProto) TotalBytesDecompressed() uint64 {
	var total uint64
	for _, asset := range m.Assets {
		for _, chunk := range asset.AssetChunks {
			total += chunk.ChunkSizeDecompressed
		}
	}
	return total
}

func (m *SophonManifestProto) TotalChunks() uint64 {
	var total uint64
	for _, asset := range m.Assets {
		total += uint64(len(asset.AssetChunks))
	}
	return total
}

func (m *SophonManifestProto) TotalFiles() uint64 {
	return uint64(len(m.Assets))
}

// Unmarshal decodes the wire form into m, replacing its contents.
func (m *SophonManifestProto) Unmarshal(b []byte) error {
	*m = SophonManifestProto{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		raw, n, err := consumeMessage(typ, b)
		if err != nil {
			return 0, err
		}
		asset := &SophonManifestAssetProperty{}
		if err := asset.Unmarshal(raw); err != nil {
			return 0, err
		}
		m.Assets = append(m.Assets, asset)
		return n, nil
	})
}

func (m *SophonManifestProto) Marshal() []byte {
	var b []byte
	for _, asset := range m.Assets {
		b = appendMessage(b, 1, asset.Marshal())
	}
	return b
}

func (a *SophonManifestAssetProperty) Unmarshal(b []byte) error {
	*a = SophonManifestAssetProperty{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &a.AssetName)
		case 2:
			raw, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			chunk := &SophonManifestAssetChunk{}
			if err := chunk.Unmarshal(raw); err != nil {
				return 0, err
			}
			a.AssetChunks = append(a.AssetChunks, chunk)
			return n, nil
		case 3:
			return consumeInt32(typ, b, &a.AssetType)
		case 4:
			return consumeUint64(typ, b, &a.AssetSize)
		case 5:
			return consumeString(typ, b, &a.AssetHashMd5)
		}
		return 0, nil
	})
}

func (a *SophonManifestAssetProperty) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, a.AssetName)
	for _, chunk := range a.AssetChunks {
		b = appendMessage(b, 2, chunk.Marshal())
	}
	b = appendInt32(b, 3, a.AssetType)
	b = appendUint64(b, 4, a.AssetSize)
	b = appendString(b, 5, a.AssetHashMd5)
	return b
}

func (c *SophonManifestAssetChunk) Unmarshal(b []byte) error {
	*c = SophonManifestAssetChunk{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &c.ChunkName)
		case 2:
			return consumeString(typ, b, &c.ChunkDecompressedHashMd5)
		case 3:
			return consumeUint64(typ, b, &c.ChunkOnFileOffset)
		case 4:
			return consumeUint64(typ, b, &c.ChunkSize)
		case 5:
			return consumeUint64(typ, b, &c.ChunkSizeDecompressed)
		case 6:
			return consumeUint64(typ, b, &c.ChunkCompressedHashXxh)
		case 7:
			return consumeString(typ, b, &c.ChunkCompressedHashMd5)
		}
		return 0, nil
	})
}

func (c *SophonManifestAssetChunk) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, c.ChunkName)
	b = appendString(b, 2, c.ChunkDecompressedHashMd5)
	b = appendUint64(b, 3, c.ChunkOnFileOffset)
	b = appendUint64(b, 4, c.ChunkSize)
	b = appendUint64(b, 5, c.ChunkSizeDecompressed)
	b = appendUint64(b, 6, c.ChunkCompressedHashXxh)
	b = appendString(b, 7, c.ChunkCompressedHashMd5)
	return b
}
