package internal

import (
	"errors"
	"fmt"
)

// ErrorKind tags a SophonError.
type ErrorKind int

const (
	KindPathNotMounted ErrorKind = iota
	KindNoSpaceAvailable
	KindOutputFile
	KindTempFile
	KindOutputFileMetadata
	KindHttp
	KindChunkHashMismatch
	KindFileHashMismatch
	KindIo
	KindChunkDownloadFailed
	KindPatching
	KindDecode
)

// SophonError is the single error type surfaced by the pipelines. Only the
// fields relevant to Kind are set.
type SophonError struct {
	Kind      ErrorKind
	Path      string
	ChunkName string
	Expected  string
	Got       string
	Required  uint64
	Available uint64
	Message   string
	Err       error
}

func (e *SophonError) Error() string {
	switch e.Kind {
	case KindPathNotMounted:
		return fmt.Sprintf("path is not mounted: %q", e.Path)
	case KindNoSpaceAvailable:
		return fmt.Sprintf("no free space available for specified path: %q (requires %s, available %s)",
			e.Path, PrettifyBytes(e.Required), PrettifyBytes(e.Available))
	case KindOutputFile:
		return fmt.Sprintf("failed to create output file %q: %s", e.Path, e.message())
	case KindTempFile:
		return fmt.Sprintf("failed to create temporary output file %q: %s", e.Path, e.message())
	case KindOutputFileMetadata:
		return fmt.Sprintf("failed to read metadata of the output file %q: %s", e.Path, e.message())
	case KindHttp:
		return fmt.Sprintf("http error: %s", e.message())
	case KindChunkHashMismatch:
		return fmt.Sprintf("chunk %s hash mismatch: expected `%s`, got `%s`", e.ChunkName, e.Expected, e.Got)
	case KindFileHashMismatch:
		return fmt.Sprintf("file %q hash mismatch: expected `%s`, got `%s`", e.Path, e.Expected, e.Got)
	case KindIo:
		return fmt.Sprintf("io error: %s", e.message())
	case KindChunkDownloadFailed:
		if e.Err != nil {
			return fmt.Sprintf("failed to download chunk %s: %v", e.ChunkName, e.Err)
		}
		return fmt.Sprintf("failed to download chunk %s, out of retries", e.ChunkName)
	case KindPatching:
		return fmt.Sprintf("failed to apply hdiff patch: %s", e.message())
	case KindDecode:
		return fmt.Sprintf("failed to decode manifest: %s", e.message())
	}
	return e.message()
}

func (e *SophonError) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *SophonError) Unwrap() error {
	return e.Err
}

// IsKind reports whether any error in err's chain is a SophonError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SophonError
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Err
	}
	return false
}

func newPathNotMountedError(path string) error {
	return &SophonError{Kind: KindPathNotMounted, Path: path}
}

func newNoSpaceError(path string, required, available uint64) error {
	return &SophonError{Kind: KindNoSpaceAvailable, Path: path, Required: required, Available: available}
}

func newOutputFileError(path string, err error) error {
	return &SophonError{Kind: KindOutputFile, Path: path, Err: err}
}

func newTempFileError(path string, err error) error {
	return &SophonError{Kind: KindTempFile, Path: path, Err: err}
}

func newOutputFileMetadataError(path string, err error) error {
	return &SophonError{Kind: KindOutputFileMetadata, Path: path, Err: err}
}

func newHttpError(err error) error {
	return &SophonError{Kind: KindHttp, Err: err}
}

func newChunkHashMismatchError(chunkName, expected, got string) error {
	return &SophonError{Kind: KindChunkHashMismatch, ChunkName: chunkName, Expected: expected, Got: got}
}

func newFileHashMismatchError(path, expected, got string) error {
	return &SophonError{Kind: KindFileHashMismatch, Path: path, Expected: expected, Got: got}
}

func newIoError(err error) error {
	return &SophonError{Kind: KindIo, Err: err}
}

func newChunkDownloadFailedError(chunkName string, err error) error {
	return &SophonError{Kind: KindChunkDownloadFailed, ChunkName: chunkName, Err: err}
}

func newPatchingError(message string, err error) error {
	return &SophonError{Kind: KindPatching, Message: message, Err: err}
}

func newDecodeError(err error) error {
	return &SophonError{Kind: KindDecode, Err: err}
}
