package avi

import (
	"io"
)

// Chunk I/O: 8-byte headers (FourCC + little-endian length), payloads
// padded to even length.

var padByte = [1]byte{0}

// appendChunk writes tag, length, payload and the optional pad byte at
// the current write position. On failure the write position is restored
// so the file ends at the last complete chunk.
func (f *File) appendChunk(tag []byte, data []byte) error {
	var hdr [8]byte
	copy(hdr[:4], tag)
	putU32(hdr[4:], uint32(len(data)))

	err := writeFull(f.w, hdr[:])
	if err == nil {
		err = writeFull(f.w, data)
	}
	if err == nil && len(data)&1 == 1 {
		err = writeFull(f.w, padByte[:])
	}
	if err != nil {
		f.w.Seek(f.pos, io.SeekStart)
		return &AVIError{Op: "write chunk", Err: err}
	}

	f.pos += 8 + padEven(int64(len(data)))
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	return err
}

// readChunkHeader reads an 8-byte chunk header and returns the tag and
// the even-padded payload length. Callers skip payloads with a relative
// seek.
func readChunkHeader(r io.Reader, tag []byte) (int64, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	copy(tag, hdr[:4])
	return padEven(int64(getU32(hdr[4:]))), nil
}
