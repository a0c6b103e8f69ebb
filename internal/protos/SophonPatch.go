package protos

import "google.golang.org/protobuf/encoding/protowire"

// SophonPatchProto is the patch manifest describing transitions into one target version.
type SophonPatchProto struct {
	PatchAssets []*SophonPatchAssetProperty
	// UnusedAssets is keyed by the version being updated from.
	UnusedAssets map[string]*SophonUnusedAssetInfo
}

type SophonPatchAssetProperty struct {
	AssetName    string
	AssetSize    uint64
	AssetHashMd5 string
	// AssetPatchChunks is keyed by the version being updated from.
	AssetPatchChunks map[string]*SophonPatchAssetChunk
}

// SophonPatchAssetChunk points at a byte range of a patch file. An empty
// OriginalFileName means the range is the new file itself, otherwise it is an
// hdiff applied to OriginalFileName.
type SophonPatchAssetChunk struct {
	PatchName          string
	VersionTag         string
	BuildId            string
	PatchSize          uint64
	PatchMd5           string
	PatchOffset        uint64
	PatchLength        uint64
	OriginalFileName   string
	OriginalFileLength uint64
	OriginalFileMd5    string
}

type SophonUnusedAssetInfo struct {
	Assets []*SophonUnusedAssetFile
}

type SophonUnusedAssetFile struct {
	FileName string
	FileSize uint64
	FileMd5  string
}

func (m *SophonPatchProto) Unmarshal(b []byte) error {
	*m = SophonPatchProto{UnusedAssets: map[string]*SophonUnusedAssetInfo{}}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			raw, n, err := consumeMessage(typ, b)
			if err != nil {
				return 0, err
			}
			asset := &SophonPatchAssetProperty{}
			if err := asset.Unmarshal(raw); err != nil {
				return 0, err
			}
			m.PatchAssets = append(m.PatchAssets, asset)
			return n, nil
		case 2:
			return consumeMapEntry(typ, b, func(key string, value []byte) error {
				info := &SophonUnusedAssetInfo{}
				if err := info.Unmarshal(value); err != nil {
					return err
				}
				m.UnusedAssets[key] = info
				return nil
			})
		}
		return 0, nil
	})
}

func (m *SophonPatchProto) Marshal() []byte {
	var b []byte
	for _, asset := range m.PatchAssets {
		b = appendMessage(b, 1, asset.Marshal())
	}
	for _, key := range sortedKeys(m.UnusedAssets) {
		b = appendMapEntry(b, 2, key, m.UnusedAssets[key].Marshal())
	}
	return b
}

func (a *SophonPatchAssetProperty) Unmarshal(b []byte) error {
	*a = SophonPatchAssetProperty{AssetPatchChunks: map[string]*SophonPatchAssetChunk{}}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &a.AssetName)
		case 2:
			return consumeUint64(typ, b, &a.AssetSize)
		case 3:
			return consumeString(typ, b, &a.AssetHashMd5)
		case 4:
			return consumeMapEntry(typ, b, func(key string, value []byte) error {
				chunk := &SophonPatchAssetChunk{}
				if err := chunk.Unmarshal(value); err != nil {
					return err
				}
				a.AssetPatchChunks[key] = chunk
				return nil
			})
		}
		return 0, nil
	})
}

func (a *SophonPatchAssetProperty) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, a.AssetName)
	b = appendUint64(b, 2, a.AssetSize)
	b = appendString(b, 3, a.AssetHashMd5)
	for _, key := range sortedKeys(a.AssetPatchChunks) {
		b = appendMapEntry(b, 4, key, a.AssetPatchChunks[key].Marshal())
	}
	return b
}

func (c *SophonPatchAssetChunk) Unmarshal(b []byte) error {
	*c = SophonPatchAssetChunk{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &c.PatchName)
		case 2:
			return consumeString(typ, b, &c.VersionTag)
		case 3:
			return consumeString(typ, b, &c.BuildId)
		case 4:
			return consumeUint64(typ, b, &c.PatchSize)
		case 5:
			return consumeString(typ, b, &c.PatchMd5)
		case 6:
			return consumeUint64(typ, b, &c.PatchOffset)
		case 7:
			return consumeUint64(typ, b, &c.PatchLength)
		case 8:
			return consumeString(typ, b, &c.OriginalFileName)
		case 9:
			return consumeUint64(typ, b, &c.OriginalFileLength)
		case 10:
			return consumeString(typ, b, &c.OriginalFileMd5)
		}
		return 0, nil
	})
}

func (c *SophonPatchAssetChunk) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, c.PatchName)
	b = appendString(b, 2, c.VersionTag)
	b = appendString(b, 3, c.BuildId)
	b = appendUint64(b, 4, c.PatchSize)
	b = appendString(b, 5, c.PatchMd5)
	b = appendUint64(b, 6, c.PatchOffset)
	b = appendUint64(b, 7, c.PatchLength)
	b = appendString(b, 8, c.OriginalFileName)
	b = appendUint64(b, 9, c.OriginalFileLength)
	b = appendString(b, 10, c.OriginalFileMd5)
	return b
}

func (u *SophonUnusedAssetInfo) Unmarshal(b []byte) error {
	*u = SophonUnusedAssetInfo{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		raw, n, err := consumeMessage(typ, b)
		if err != nil {
			return 0, err
		}
		file := &SophonUnusedAssetFile{}
		if err := file.Unmarshal(raw); err != nil {
			return 0, err
		}
		u.Assets = append(u.Assets, file)
		return n, nil
	})
}

func (u *SophonUnusedAssetInfo) Marshal() []byte {
	var b []byte
	for _, file := range u.Assets {
		b = appendMessage(b, 1, file.Marshal())
	}
	return b
}

func (f *SophonUnusedAssetFile) Unmarshal(b []byte) error {
	*f = SophonUnusedAssetFile{}
	return walkMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &f.FileName)
		case 2:
			return consumeUint64(typ, b, &f.FileSize)
		case 3:
			return consumeString(typ, b, &f.FileMd5)
		}
		return 0, nil
	})
}

func (f *SophonUnusedAssetFile) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, f.FileName)
	b = appendUint64(b, 2, f.FileSize)
	b = appendString(b, 3, f.FileMd5)
	return b
}
