package avi

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSidecarIndex(t *testing.T) {
	dir := t.TempDir()
	aviPath := filepath.Join(dir, "test.avi")
	idxPath := filepath.Join(dir, "test.avi.idx")

	// Build a file with 10 frames and 20 audio chunks.
	w := NewWriter()
	if err := w.CreateFile(aviPath); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := w.SetVideo(128, 96, 12.0, "MJPG"); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}
	if err := w.AddAudioTrack(1, 8000, 8, WaveFormatPCM, 64); err != nil {
		t.Fatalf("AddAudioTrack failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		frame := make([]byte, 200)
		frame[0] = byte(i)
		if err := w.WriteFrame(frame, i == 0); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
		for j := 0; j < 2; j++ {
			chunk := make([]byte, 40)
			chunk[0] = byte(i*2 + j)
			if err := w.WriteAudio(chunk); err != nil {
				t.Fatalf("WriteAudio failed: %v", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Derive the sidecar from a normally indexed open. Sidecar offsets
	// point at the chunk header, 8 bytes before the payload.
	ref, err := OpenFile(aviPath, true)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	idx, err := os.Create(idxPath)
	if err != nil {
		t.Fatalf("Create sidecar failed: %v", err)
	}
	fmt.Fprintf(idx, "AVIIDX1\n# generated for testing\n")
	for n := int64(0); n < ref.Frames(); n++ {
		pos, _ := ref.FramePosition(n)
		size, _ := ref.FrameSize(n)
		key := 0
		if n == 0 {
			key = 1
		}
		fmt.Fprintf(idx, "00db 1 0 0 %d %d %d 0.0\n", pos-8, size, key)
	}
	for c := int64(0); c < ref.AudioChunks(); c++ {
		pos := ref.track[0].index[c].Pos
		size := ref.track[0].index[c].Len
		fmt.Fprintf(idx, "01wb 2 0 0 %d %d 1 0.0\n", pos-8, size)
	}
	idx.Close()
	ref.Close()

	f, err := OpenFileWithIndex(aviPath, idxPath)
	if err != nil {
		t.Fatalf("OpenFileWithIndex failed: %v", err)
	}
	defer f.Close()

	if f.Frames() != 10 {
		t.Errorf("Frames = %d, want 10", f.Frames())
	}
	if f.AudioChunks() != 20 {
		t.Errorf("AudioChunks = %d, want 20", f.AudioChunks())
	}
	if f.AudioBytes() != 20*40 {
		t.Errorf("AudioBytes = %d, want %d", f.AudioBytes(), 20*40)
	}

	buf := make([]byte, 200)
	for i := 0; i < 10; i++ {
		n, key, err := f.ReadFrame(buf)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if n != 200 || buf[0] != byte(i) {
			t.Errorf("frame %d: n=%d payload=%d", i, n, buf[0])
		}
		if key != (i == 0) {
			t.Errorf("frame %d: keyframe = %v", i, key)
		}
	}

	chunk := make([]byte, 40)
	for c := 0; c < 20; c++ {
		n, err := f.ReadAudioChunk(chunk)
		if err != nil {
			t.Fatalf("ReadAudioChunk %d failed: %v", c, err)
		}
		if n != 40 || chunk[0] != byte(c) {
			t.Errorf("audio chunk %d: n=%d payload=%d", c, n, chunk[0])
		}
	}
}

func TestSidecarRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	aviPath := filepath.Join(dir, "test.avi")
	idxPath := filepath.Join(dir, "bogus.idx")

	w := NewWriter()
	if err := w.CreateFile(aviPath); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := w.SetVideo(64, 64, 10.0, "MJPG"); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}
	if err := w.WriteFrame(make([]byte, 10), true); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := os.WriteFile(idxPath, []byte("NOTANIDX\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := OpenFileWithIndex(aviPath, idxPath); err == nil {
		t.Error("OpenFileWithIndex accepted a bogus sidecar")
	}
}
