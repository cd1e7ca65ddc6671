package avi

import (
	"bytes"
	"testing"
)

// withRiffThreshold lowers the rotation threshold so multi-RIFF files
// can be produced without writing gigabytes.
func withRiffThreshold(t *testing.T, thres int64) {
	t.Helper()
	old := riffThreshold
	riffThreshold = thres
	t.Cleanup(func() { riffThreshold = old })
}

// buildOpenDMLAVI writes frames of frameSize bytes plus one audio chunk
// per frame, with a threshold low enough to force rotations.
func buildOpenDMLAVI(t *testing.T, frames, frameSize, chunkSize int) []byte {
	t.Helper()
	buf := NewSeekableBuffer()
	w := NewWriter()
	if err := w.Create(buf); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.SetVideo(320, 240, 25.0, "XVID"); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}
	if err := w.AddAudioTrack(2, 44100, 16, WaveFormatPCM, 1411); err != nil {
		t.Fatalf("AddAudioTrack failed: %v", err)
	}

	frame := make([]byte, frameSize)
	chunk := make([]byte, chunkSize)
	for i := 0; i < frames; i++ {
		for j := range frame {
			frame[j] = byte(i)
		}
		if err := w.WriteFrame(frame, i%10 == 0); err != nil {
			t.Fatalf("WriteFrame %d failed: %v", i, err)
		}
		for j := range chunk {
			chunk[j] = byte(i ^ 0x5a)
		}
		if err := w.WriteAudio(chunk); err != nil {
			t.Fatalf("WriteAudio %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func TestRiffRotation(t *testing.T) {
	withRiffThreshold(t, 128*1024)

	const frames = 60
	b := buildOpenDMLAVI(t, frames, 8*1024, 512)

	if !fourCCEq(b[0:], RIFFSignature) || !fourCCEq(b[8:], AVISignature) {
		t.Fatalf("file does not start with RIFF ... AVI ")
	}

	// The top-level RIFF length is the first sub-RIFF boundary minus 8.
	riffLen := int64(getU32(b[4:]))
	boundary := riffLen + 8
	if boundary >= int64(len(b)) {
		t.Fatalf("no second sub-RIFF: boundary %d, file %d bytes", boundary, len(b))
	}
	if !fourCCEq(b[boundary:], RIFFSignature) || !fourCCEq(b[boundary+8:], AVIXSignature) {
		t.Fatalf("second sub-RIFF is not RIFF ... AVIX")
	}

	// The legacy index covers the first sub-RIFF only.
	idxAt := bytes.Index(b, []byte(IDX1Chunk))
	if idxAt < 0 || int64(idxAt) > boundary {
		t.Errorf("idx1 not found within the first sub-RIFF (at %d, boundary %d)", idxAt, boundary)
	}

	// Every frame and audio chunk is recoverable through the OpenDML
	// indices.
	f := openBytes(t, b, true)
	defer f.Close()

	if !f.isOpenDML {
		t.Error("reader did not detect an OpenDML file")
	}
	if f.Frames() != frames {
		t.Fatalf("Frames = %d, want %d", f.Frames(), frames)
	}
	if f.totalFrames != frames {
		t.Errorf("dmlh total frames = %d, want %d", f.totalFrames, frames)
	}

	out := make([]byte, 8*1024)
	for i := 0; i < frames; i++ {
		n, key, err := f.ReadFrame(out)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if n != 8*1024 || out[0] != byte(i) || out[n-1] != byte(i) {
			t.Errorf("frame %d: n=%d payload=%d", i, n, out[0])
		}
		if key != (i%10 == 0) {
			t.Errorf("frame %d: keyframe = %v, want %v", i, key, i%10 == 0)
		}
	}

	if f.AudioTracks() != 1 {
		t.Fatalf("AudioTracks = %d, want 1", f.AudioTracks())
	}
	if f.AudioBytes() != int64(frames)*512 {
		t.Errorf("AudioBytes = %d, want %d", f.AudioBytes(), frames*512)
	}
	if f.AudioChunks() != frames {
		t.Errorf("AudioChunks = %d, want %d", f.AudioChunks(), frames)
	}
	audio := make([]byte, 512)
	for i := 0; i < frames; i++ {
		n, err := f.ReadAudioChunk(audio)
		if err != nil {
			t.Fatalf("ReadAudioChunk %d failed: %v", i, err)
		}
		if n != 512 || audio[0] != byte(i^0x5a) {
			t.Errorf("audio chunk %d: n=%d payload=%d", i, n, audio[0])
		}
	}
}

func TestRiffRotationSubRiffLengths(t *testing.T) {
	withRiffThreshold(t, 64*1024)

	b := buildOpenDMLAVI(t, 40, 4*1024, 256)

	// Walk the chain of sub-RIFFs; the patched lengths must tile the
	// file exactly.
	off := int64(0)
	count := 0
	for off < int64(len(b)) {
		if !fourCCEq(b[off:], RIFFSignature) {
			t.Fatalf("sub-RIFF %d: no RIFF tag at %d", count, off)
		}
		length := int64(getU32(b[off+4:]))
		if count > 0 {
			if !fourCCEq(b[off+8:], AVIXSignature) {
				t.Errorf("sub-RIFF %d is not AVIX", count)
			}
			// inner LIST/movi length
			if !fourCCEq(b[off+12:], LISTSignature) {
				t.Errorf("sub-RIFF %d: no LIST after AVIX", count)
			}
			if inner := int64(getU32(b[off+16:])); inner != length-12 {
				t.Errorf("sub-RIFF %d: LIST length %d, want %d", count, inner, length-12)
			}
		}
		off += 8 + length
		count++
	}
	if off != int64(len(b)) {
		t.Errorf("sub-RIFF lengths tile to %d, file is %d bytes", off, len(b))
	}
	if count < 2 {
		t.Errorf("expected at least 2 sub-RIFFs, got %d", count)
	}
}

func TestOpenDMLFallbackToMoviScan(t *testing.T) {
	withRiffThreshold(t, 64*1024)

	const frames = 30
	b := buildOpenDMLAVI(t, frames, 4*1024, 256)

	// Corrupt the video super index in the header: zero its entry
	// count. The reader must fall back to scanning the movi chunks,
	// guided by the dmlh frame count.
	at := bytes.Index(b[:headerBytes], []byte(INDXChunk))
	if at < 0 {
		t.Fatalf("no indx chunk in header")
	}
	putU32(b[at+12:], 0)

	// Make the file look like the producers this path exists for,
	// which never wrote a legacy index: hide the idx1 chunk and blank
	// the chunk tags inside it so the scan cannot misread them.
	idxAt := bytes.Index(b[headerBytes:], []byte(IDX1Chunk))
	if idxAt < 0 {
		t.Fatalf("no idx1 chunk in movi area")
	}
	idxAt += headerBytes
	entries := int(getU32(b[idxAt+4:])) / 16
	copy(b[idxAt:], JUNKChunk)
	for i := 0; i < entries; i++ {
		putU32(b[idxAt+8+i*16:], 0)
	}

	f := openBytes(t, b, true)
	defer f.Close()

	if f.isOpenDML {
		t.Error("handle still marked OpenDML after fallback")
	}
	if f.Frames() != frames {
		t.Fatalf("Frames = %d, want %d", f.Frames(), frames)
	}
	out := make([]byte, 4*1024)
	for i := 0; i < frames; i++ {
		n, _, err := f.ReadFrame(out)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if n != 4*1024 || out[0] != byte(i) {
			t.Errorf("frame %d: n=%d payload=%d", i, n, out[0])
		}
	}
	// The single-track audio is also recovered by the scan, which stops
	// at the last video frame and so misses the audio chunk behind it.
	if f.AudioChunks() != frames-1 {
		t.Errorf("AudioChunks = %d, want %d", f.AudioChunks(), frames-1)
	}
}
