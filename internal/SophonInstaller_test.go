package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverfog7/SophonCore/internal/protos"
)

func newTestInstaller(t *testing.T, server *chunkServer, compressed bool, assets ...*protos.SophonManifestAssetProperty) *SophonInstaller {
	t.Helper()
	manifest := &protos.SophonManifestProto{Assets: assets}
	require.NoError(t, ValidateManifest(manifest))

	installer := NewSophonInstaller(server.fetcher(), manifest, server.chunksInfo(compressed), t.TempDir())
	installer.CheckFreeSpace = false
	return installer
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInstallSingleChunkFile(t *testing.T) {
	c1 := testChunk{"c1", "abcdef"}
	server := newChunkServer(t, plainBodies(c1))
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1))
	installer.CheckFreeSpace = true

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 4, rec.updater()))

	assert.Equal(t, "abcdef", readFile(t, filepath.Join(out, "a.bin")))
	assert.Empty(t, rec.errors())
	assert.Equal(t, uint64(1), rec.maxFiles())
	done, total := rec.maxBytes()
	assert.Equal(t, uint64(6), done)
	assert.Equal(t, uint64(6), total)

	_, started := findUpdate[DownloadingStarted](rec.all())
	_, finished := findUpdate[DownloadingFinished](rec.all())
	assert.True(t, started)
	assert.True(t, finished)
}

func TestInstallSharedChunksAreFetchedOnce(t *testing.T) {
	c1, c2 := testChunk{"c1", "hello"}, testChunk{"c2", "!"}
	server := newChunkServer(t, plainBodies(c1, c2))
	installer := newTestInstaller(t, server, false,
		plainAsset("a.bin", c1, c2),
		plainAsset("sub/b.bin", c1, c2),
	)

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 8, rec.updater()))

	assert.Equal(t, "hello!", readFile(t, filepath.Join(out, "a.bin")))
	assert.Equal(t, "hello!", readFile(t, filepath.Join(out, "sub", "b.bin")))
	assert.Equal(t, 1, server.count("c1"))
	assert.Equal(t, 1, server.count("c2"))
	assert.Empty(t, rec.errors())

	done, _ := rec.maxBytes()
	assert.Equal(t, uint64(6), done)

	// Chunks are dropped from the cache once every file using them is written.
	entries, err := os.ReadDir(installer.ChunkTempFolder())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstallResumesFromChunkCache(t *testing.T) {
	c1, c2 := testChunk{"c1", "hello"}, testChunk{"c2", "!"}
	server := newChunkServer(t, plainBodies(c1, c2))
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1, c2))

	require.NoError(t, os.MkdirAll(installer.ChunkTempFolder(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(installer.ChunkTempFolder(), "c1.chunk"), []byte("hello"), 0644))

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Equal(t, "hello!", readFile(t, filepath.Join(out, "a.bin")))
	assert.Equal(t, 0, server.count("c1"))
	assert.Equal(t, 1, server.count("c2"))

	done, total := rec.maxBytes()
	assert.Equal(t, total, done)
}

func TestInstallRetriesCorruptChunk(t *testing.T) {
	c1 := testChunk{"c1", "abcdef"}
	server := newChunkServer(t, plainBodies(c1))
	server.setCorrupt("c1", 2)
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1))

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Equal(t, "abcdef", readFile(t, filepath.Join(out, "a.bin")))
	assert.Equal(t, 3, server.count("c1"))
	assert.Zero(t, rec.hashFailures())
	assert.Empty(t, rec.errors())
}

func TestInstallGivesUpAfterRetries(t *testing.T) {
	c1 := testChunk{"c1", "abcdef"}
	server := newChunkServer(t, plainBodies(c1))
	server.setCorrupt("c1", 100)
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1))
	installer.Version = NewVersion(1, 0, 0)

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Equal(t, int(DefaultChunkRetries)+1, server.count("c1"))
	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.True(t, IsKind(errs[0], KindChunkDownloadFailed))
	assert.True(t, IsKind(errs[0], KindChunkHashMismatch), "last cause is kept: %v", errs[0])

	assert.NoFileExists(t, filepath.Join(out, "a.bin"))
	assert.NoFileExists(t, filepath.Join(out, VersionFileName))
}

func TestInstallIsIdempotent(t *testing.T) {
	c1, c2, c3 := testChunk{"c1", "hello"}, testChunk{"c2", "!"}, testChunk{"c3", "world"}
	server := newChunkServer(t, plainBodies(c1, c2, c3))
	installer := newTestInstaller(t, server, false,
		plainAsset("a.bin", c1, c2),
		plainAsset("b.bin", c3),
	)
	installer.Version = NewVersion(2, 3, 0)

	out := t.TempDir()
	require.NoError(t, installer.Install(context.Background(), out, 4, nil))
	first := map[string]int{"c1": server.count("c1"), "c2": server.count("c2"), "c3": server.count("c3")}

	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 4, rec.updater()))

	assert.Equal(t, first["c1"], server.count("c1"))
	assert.Equal(t, first["c2"], server.count("c2"))
	assert.Equal(t, first["c3"], server.count("c3"))
	assert.Equal(t, "hello!", readFile(t, filepath.Join(out, "a.bin")))
	assert.Equal(t, "world", readFile(t, filepath.Join(out, "b.bin")))
	assert.Equal(t, uint64(2), rec.maxFiles())

	v, err := ReadVersionFile(out)
	require.NoError(t, err)
	assert.Equal(t, NewVersion(2, 3, 0), v)
}

func TestInstallOnlyRewritesMismatchingFiles(t *testing.T) {
	c1, c2 := testChunk{"c1", "keep"}, testChunk{"c2", "fresh"}
	server := newChunkServer(t, plainBodies(c1, c2))
	installer := newTestInstaller(t, server, false,
		plainAsset("keep.bin", c1),
		plainAsset("fresh.bin", c2),
	)

	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "keep.bin"), []byte("keep"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "fresh.bin"), []byte("stale"), 0644))

	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Equal(t, 0, server.count("c1"))
	assert.Equal(t, 1, server.count("c2"))
	assert.Equal(t, "fresh", readFile(t, filepath.Join(out, "fresh.bin")))

	// The skipped chunk is credited so progress still reaches its total.
	done, total := rec.maxBytes()
	assert.Equal(t, uint64(9), total)
	assert.Equal(t, total, done)
}

func TestInstallCompressedChunks(t *testing.T) {
	data := "compressed chunk payload, compressed chunk payload"
	packed := zstdBytes(t, data)
	server := newChunkServer(t, map[string][]byte{"z1": packed})

	asset := &protos.SophonManifestAssetProperty{
		AssetName:    "z.bin",
		AssetSize:    uint64(len(data)),
		AssetHashMd5: md5Hex(data),
		AssetChunks: []*protos.SophonManifestAssetChunk{{
			ChunkName:                "z1",
			ChunkDecompressedHashMd5: md5Hex(data),
			ChunkSize:                uint64(len(packed)),
			ChunkSizeDecompressed:    uint64(len(data)),
			ChunkCompressedHashMd5:   md5Hex(string(packed)),
		}},
	}
	installer := newTestInstaller(t, server, true, asset)

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Empty(t, rec.errors())
	assert.Equal(t, data, readFile(t, filepath.Join(out, "z.bin")))
	done, _ := rec.maxBytes()
	assert.Equal(t, uint64(len(packed)), done)
}

func TestInstallDirectoriesAndEmptyFiles(t *testing.T) {
	server := newChunkServer(t, nil)
	installer := newTestInstaller(t, server, false,
		&protos.SophonManifestAssetProperty{AssetName: "Data/StreamingAssets", AssetType: 64},
		&protos.SophonManifestAssetProperty{AssetName: "empty.txt", AssetHashMd5: md5Hex("")},
	)

	out := t.TempDir()
	var rec updateRecorder
	require.NoError(t, installer.Install(context.Background(), out, 2, rec.updater()))

	assert.Empty(t, rec.errors())
	assert.DirExists(t, filepath.Join(out, "Data", "StreamingAssets"))
	assert.Equal(t, "", readFile(t, filepath.Join(out, "empty.txt")))
	assert.Equal(t, uint64(1), rec.maxFiles())
}

func TestInstallDefersGlobalGameManagers(t *testing.T) {
	c1 := testChunk{"c1", "ggm"}
	server := newChunkServer(t, plainBodies(c1))
	installer := newTestInstaller(t, server, false, plainAsset("Game_Data/globalgamemanagers", c1))

	index := NewDownloadIndex(installer.Manifest, installer.ChunksInfo)
	run := newInstallRun(installer, index, t.TempDir(), nil, true)
	run.assembleQueue.Push(index.Files["Game_Data/globalgamemanagers"])

	assert.True(t, run.assembleStage(context.Background()))
	assert.NoFileExists(t, filepath.Join(run.outputDir, "Game_Data", "globalgamemanagers"))

	deferred := run.takeDeferred()
	require.Len(t, deferred, 1)
	assert.Equal(t, "Game_Data/globalgamemanagers", deferred[0].AssetName())
	assert.Empty(t, run.takeDeferred())
}

func TestInstallWritesGlobalGameManagers(t *testing.T) {
	c1, c2 := testChunk{"c1", "ggm"}, testChunk{"c2", "level0"}
	server := newChunkServer(t, plainBodies(c1, c2))
	installer := newTestInstaller(t, server, false,
		plainAsset("Game_Data/globalgamemanagers", c1),
		plainAsset("Game_Data/level0", c2),
	)

	out := t.TempDir()
	require.NoError(t, installer.Install(context.Background(), out, 4, nil))
	assert.Equal(t, "ggm", readFile(t, filepath.Join(out, "Game_Data", "globalgamemanagers")))
	assert.Equal(t, "level0", readFile(t, filepath.Join(out, "Game_Data", "level0")))
}

func TestPreDownloadOnlyFillsCache(t *testing.T) {
	c1, c2 := testChunk{"c1", "hello"}, testChunk{"c2", "!"}
	server := newChunkServer(t, plainBodies(c1, c2))
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1, c2))

	var rec updateRecorder
	require.NoError(t, installer.PreDownload(context.Background(), 2, rec.updater()))

	assert.FileExists(t, filepath.Join(installer.ChunkTempFolder(), "c1.chunk"))
	assert.FileExists(t, filepath.Join(installer.ChunkTempFolder(), "c2.chunk"))
	done, total := rec.maxBytes()
	assert.Equal(t, uint64(6), total)
	assert.Equal(t, total, done)

	// A later install is served entirely from the cache.
	out := t.TempDir()
	require.NoError(t, installer.Install(context.Background(), out, 2, nil))
	assert.Equal(t, "hello!", readFile(t, filepath.Join(out, "a.bin")))
	assert.Equal(t, 1, server.count("c1"))
	assert.Equal(t, 1, server.count("c2"))
}

func TestInstallStopsOnCancel(t *testing.T) {
	c1 := testChunk{"c1", "abcdef"}
	server := newChunkServer(t, plainBodies(c1))
	installer := newTestInstaller(t, server, false, plainAsset("a.bin", c1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := installer.Install(ctx, t.TempDir(), 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
