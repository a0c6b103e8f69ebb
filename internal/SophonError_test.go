package internal

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSophonErrorMessages(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "no space",
			err:  newNoSpaceError("/games", 2048, 1024),
			want: `no free space available for specified path: "/games" (requires 2.00 KB, available 1.00 KB)`,
		},
		{
			name: "chunk mismatch",
			err:  newChunkHashMismatchError("c1", "aa", "bb"),
			want: "chunk c1 hash mismatch: expected `aa`, got `bb`",
		},
		{
			name: "out of retries",
			err:  newChunkDownloadFailedError("c1", nil),
			want: "failed to download chunk c1, out of retries",
		},
		{
			name: "patching",
			err:  newPatchingError("hpatchz failed", nil),
			want: "failed to apply hdiff patch: hpatchz failed",
		},
		{
			name: "wrapped io",
			err:  newIoError(io.ErrUnexpectedEOF),
			want: "io error: unexpected EOF",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	inner := newHttpError(io.ErrUnexpectedEOF)
	outer := newChunkDownloadFailedError("c1", inner)
	wrapped := fmt.Errorf("install: %w", outer)

	assert.True(t, IsKind(wrapped, KindChunkDownloadFailed))
	assert.True(t, IsKind(wrapped, KindHttp))
	assert.False(t, IsKind(wrapped, KindPatching))
	assert.False(t, IsKind(errors.New("plain"), KindIo))
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
}
