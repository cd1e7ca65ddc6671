package avi

import (
	"errors"
	"io"
)

// SeekableBuffer is an in-memory descriptor implementing ReadSeeker and
// WriteSeekTruncater, useful for building or inspecting AVI data without
// touching the filesystem.
type SeekableBuffer struct {
	buf []byte
	pos int64
}

// NewSeekableBuffer creates an empty SeekableBuffer.
func NewSeekableBuffer() *SeekableBuffer {
	return &SeekableBuffer{}
}

// Write writes data at the current position, overwriting existing bytes
// and extending the buffer as needed.
func (sb *SeekableBuffer) Write(p []byte) (int, error) {
	end := sb.pos + int64(len(p))
	if end > int64(len(sb.buf)) {
		grown := make([]byte, end)
		copy(grown, sb.buf)
		sb.buf = grown
	}
	copy(sb.buf[sb.pos:], p)
	sb.pos = end
	return len(p), nil
}

// Seek sets the position for the next Read or Write. Seeking past the
// end pads the buffer with zeros.
func (sb *SeekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = sb.pos + offset
	case io.SeekEnd:
		newPos = int64(len(sb.buf)) + offset
	default:
		return 0, errors.New("invalid seek whence")
	}
	if newPos < 0 {
		return 0, errors.New("seek before start of buffer")
	}
	if newPos > int64(len(sb.buf)) {
		grown := make([]byte, newPos)
		copy(grown, sb.buf)
		sb.buf = grown
	}
	sb.pos = newPos
	return newPos, nil
}

// Read reads from the current position.
func (sb *SeekableBuffer) Read(p []byte) (int, error) {
	if sb.pos >= int64(len(sb.buf)) {
		return 0, io.EOF
	}
	n := copy(p, sb.buf[sb.pos:])
	sb.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Truncate resizes the buffer, extending with zeros when size is beyond
// the current length.
func (sb *SeekableBuffer) Truncate(size int64) error {
	if size < 0 {
		return errors.New("negative truncate size")
	}
	if size <= int64(len(sb.buf)) {
		sb.buf = sb.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, sb.buf)
	sb.buf = grown
	return nil
}

// Bytes returns the buffer contents.
func (sb *SeekableBuffer) Bytes() []byte {
	return sb.buf
}

// Len returns the buffer length.
func (sb *SeekableBuffer) Len() int {
	return len(sb.buf)
}

// Reset empties the buffer.
func (sb *SeekableBuffer) Reset() {
	sb.buf = sb.buf[:0]
	sb.pos = 0
}
