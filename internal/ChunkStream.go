package internal

import (
	"fmt"
	"io"
)

// ChunkStream is a window [start, end) over an underlying stream. Reads and
// writes never cross the window bounds.
type ChunkStream struct {
	stream io.ReadWriteSeeker
	start  int64
	end    int64
	curPos int64
}

// NewChunkStream creates a window over stream. end may not exceed the current
// stream length.
func NewChunkStream(stream io.ReadWriteSeeker, start, end int64) (*ChunkStream, error) {
	streamLen, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}

	if start < 0 || start > end || end > streamLen {
		return nil, fmt.Errorf("argument out of range: start=%d, end=%d, stream length=%d", start, end, streamLen)
	}

	if _, err := stream.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to start position: %w", err)
	}

	return &ChunkStream{stream: stream, start: start, end: end}, nil
}

func (cs *ChunkStream) Length() int64 {
	return cs.end - cs.start
}

func (cs *ChunkStream) remain() int64 {
	return cs.Length() - cs.curPos
}

func (cs *ChunkStream) Read(p []byte) (int, error) {
	if cs.remain() <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > cs.remain() {
		p = p[:cs.remain()]
	}

	if _, err := cs.stream.Seek(cs.start+cs.curPos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek: %w", err)
	}
	n, err := cs.stream.Read(p)
	cs.curPos += int64(n)
	return n, err
}

func (cs *ChunkStream) Write(p []byte) (int, error) {
	if int64(len(p)) > cs.remain() {
		return 0, io.ErrShortWrite
	}

	if _, err := cs.stream.Seek(cs.start+cs.curPos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek: %w", err)
	}
	n, err := cs.stream.Write(p)
	cs.curPos += int64(n)
	return n, err
}

// Seek moves within the window; offsets are relative to the window start.
func (cs *ChunkStream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = cs.curPos + offset
	case io.SeekEnd:
		newPos = cs.Length() + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}

	if newPos < 0 || newPos > cs.Length() {
		return 0, fmt.Errorf("seek position out of range: %d not in [0, %d]", newPos, cs.Length())
	}
	cs.curPos = newPos
	return newPos, nil
}
