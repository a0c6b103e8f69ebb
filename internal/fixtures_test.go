package internal

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/riverfog7/SophonCore/internal/protos"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

// chunkServer serves chunk bodies by name and counts requests per name.
type chunkServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies map[string][]byte
	hits   map[string]int
	// corrupt is the number of leading requests per name answered with garbage.
	corrupt map[string]int
}

func newChunkServer(t *testing.T, bodies map[string][]byte) *chunkServer {
	t.Helper()
	s := &chunkServer{
		bodies:  bodies,
		hits:    map[string]int{},
		corrupt: map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *chunkServer) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/chunks/")

	s.mu.Lock()
	s.hits[name]++
	body, ok := s.bodies[name]
	bad := s.corrupt[name] > 0
	if bad {
		s.corrupt[name]--
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if bad {
		garbage := make([]byte, len(body))
		for i := range garbage {
			garbage[i] = 'x'
		}
		w.Write(garbage)
		return
	}
	w.Write(body)
}

func (s *chunkServer) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

func (s *chunkServer) setCorrupt(name string, n int) {
	s.mu.Lock()
	s.corrupt[name] = n
	s.mu.Unlock()
}

func (s *chunkServer) chunksInfo(compressed bool) *SophonChunksInfo {
	return &SophonChunksInfo{UrlPrefix: s.URL, UrlSuffix: "/chunks", IsUseCompression: compressed}
}

func (s *chunkServer) fetcher() *SophonChunkFetcher {
	return NewSophonChunkFetcher(s.Client())
}

type testChunk struct {
	name string
	data string
}

// plainAsset lays out uncompressed chunks back to back.
func plainAsset(name string, chunks ...testChunk) *protos.SophonManifestAssetProperty {
	asset := &protos.SophonManifestAssetProperty{AssetName: name}
	var content strings.Builder
	for _, c := range chunks {
		asset.AssetChunks = append(asset.AssetChunks, &protos.SophonManifestAssetChunk{
			ChunkName:                c.name,
			ChunkDecompressedHashMd5: md5Hex(c.data),
			ChunkOnFileOffset:        uint64(content.Len()),
			ChunkSize:                uint64(len(c.data)),
			ChunkSizeDecompressed:    uint64(len(c.data)),
			ChunkCompressedHashMd5:   md5Hex(c.data),
		})
		content.WriteString(c.data)
	}
	asset.AssetSize = uint64(content.Len())
	asset.AssetHashMd5 = md5Hex(content.String())
	return asset
}

func plainBodies(chunks ...testChunk) map[string][]byte {
	bodies := map[string][]byte{}
	for _, c := range chunks {
		bodies[c.name] = []byte(c.data)
	}
	return bodies
}

// updateRecorder collects every update of a run.
type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) updater() DelegateUpdate {
	return func(update Update) {
		r.mu.Lock()
		r.updates = append(r.updates, update)
		r.mu.Unlock()
	}
}

func (r *updateRecorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *updateRecorder) errors() []error {
	var errs []error
	for _, u := range r.all() {
		switch e := u.(type) {
		case DownloadingError:
			errs = append(errs, e.Err)
		case PatchingError:
			errs = append(errs, e.Err)
		}
	}
	return errs
}

func (r *updateRecorder) hashFailures() int {
	n := 0
	for _, u := range r.all() {
		if _, ok := u.(FileHashCheckFailed); ok {
			n++
		}
	}
	return n
}

// maxBytes returns the highest downloaded byte count reported and its total.
func (r *updateRecorder) maxBytes() (uint64, uint64) {
	var done, total uint64
	for _, u := range r.all() {
		if p, ok := u.(DownloadingProgressBytes); ok {
			done = max(done, p.Downloaded)
			total = p.Total
		}
	}
	return done, total
}

func (r *updateRecorder) maxFiles() uint64 {
	var done uint64
	for _, u := range r.all() {
		if p, ok := u.(DownloadingProgressFiles); ok {
			done = max(done, p.Downloaded)
		}
	}
	return done
}

func findUpdate[T Update](updates []Update) (T, bool) {
	for _, u := range updates {
		if v, ok := u.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
