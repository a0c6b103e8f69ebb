package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/riverfog7/SophonCore/internal"
)

func TestFieldsOrDefault(t *testing.T) {
	assert.Equal(t, []string{"game"}, fieldsOrDefault(nil))
	assert.Equal(t, []string{"en-us", "ja-jp"}, fieldsOrDefault([]string{"en-us", "ja-jp"}))
}

func TestProgressPrinterKeepsMaxima(t *testing.T) {
	p := newProgressPrinter("Installing game")

	p.apply(internal.DownloadingStarted{})
	p.apply(internal.DownloadingProgressBytes{Downloaded: 300, Total: 1000})
	p.apply(internal.DownloadingProgressBytes{Downloaded: 200, Total: 1000})
	p.apply(internal.DownloadingProgressFiles{Downloaded: 4, Total: 10})
	p.apply(internal.DownloadingProgressFiles{Downloaded: 3, Total: 10})

	assert.Equal(t, "Downloading", p.phase)
	assert.Equal(t, uint64(300), p.bytesDone)
	assert.Equal(t, uint64(4), p.done)
	assert.Equal(t, uint64(10), p.total)

	p.apply(internal.VerifyingProgress{Checked: 1, Total: 5})
	assert.Equal(t, "Verifying", p.phase)
	assert.Equal(t, uint64(1), p.done)

	p.apply(internal.DownloadingError{Err: errors.New("boom")})
	p.apply(internal.PatchingError{Err: errors.New("boom")})
	assert.Equal(t, 2, p.errors)
}
