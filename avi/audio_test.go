package avi

import (
	"testing"
)

// buildAudioAVI writes one keyframe plus audio chunks of varying sizes
// whose concatenated payload is the byte sequence 0,1,2,... mod 251.
func buildAudioAVI(t *testing.T, chunks int) ([]byte, int64) {
	t.Helper()
	buf := NewSeekableBuffer()
	w := NewWriter()
	if err := w.Create(buf); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.SetVideo(64, 64, 10.0, "MJPG"); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}
	if err := w.AddAudioTrack(1, 8000, 8, WaveFormatPCM, 64); err != nil {
		t.Fatalf("AddAudioTrack failed: %v", err)
	}
	if err := w.WriteFrame(make([]byte, 256), true); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	var total int64
	for c := 0; c < chunks; c++ {
		chunk := make([]byte, 100+c*13) // deliberately odd sizes too
		for i := range chunk {
			chunk[i] = byte((total + int64(i)) % 251)
		}
		if err := w.WriteAudio(chunk); err != nil {
			t.Fatalf("WriteAudio %d failed: %v", c, err)
		}
		total += int64(len(chunk))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes(), total
}

func TestAudioPositioning(t *testing.T) {
	b, total := buildAudioAVI(t, 20)
	f := openBytes(t, b, true)
	defer f.Close()

	if f.AudioBytes() != total {
		t.Fatalf("AudioBytes = %d, want %d", f.AudioBytes(), total)
	}

	one := make([]byte, 1)
	probes := []int64{0, 1, 99, 100, 101, 517, total/2 - 1, total / 2, total - 1}
	for _, p := range probes {
		if err := f.SetAudioPosition(p); err != nil {
			t.Fatalf("SetAudioPosition(%d) failed: %v", p, err)
		}
		n, err := f.ReadAudio(one)
		if err != nil {
			t.Fatalf("ReadAudio at %d failed: %v", p, err)
		}
		if n != 1 || one[0] != byte(p%251) {
			t.Errorf("byte at %d = %d (n=%d), want %d", p, one[0], n, byte(p%251))
		}
	}

	// At and past the end the read returns 0 bytes.
	for _, p := range []int64{total, total + 100} {
		if err := f.SetAudioPosition(p); err != nil {
			t.Fatalf("SetAudioPosition(%d) failed: %v", p, err)
		}
		n, err := f.ReadAudio(one)
		if err != nil {
			t.Fatalf("ReadAudio at %d failed: %v", p, err)
		}
		if n != 0 {
			t.Errorf("read at %d returned %d bytes, want 0", p, n)
		}
	}
}

func TestAudioSequentialRead(t *testing.T) {
	b, total := buildAudioAVI(t, 12)
	f := openBytes(t, b, true)
	defer f.Close()

	if err := f.SetAudioPosition(0); err != nil {
		t.Fatalf("SetAudioPosition failed: %v", err)
	}

	// Read everything with a buffer size that straddles the chunk
	// boundaries.
	out := make([]byte, 0, total)
	buf := make([]byte, 77)
	for {
		n, err := f.ReadAudio(buf)
		if err != nil {
			t.Fatalf("ReadAudio failed: %v", err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	if int64(len(out)) != total {
		t.Fatalf("read %d bytes, want %d", len(out), total)
	}
	for i, v := range out {
		if v != byte(i%251) {
			t.Fatalf("byte %d = %d, want %d", i, v, byte(i%251))
		}
	}
}

func TestAudioIndexInvariants(t *testing.T) {
	b, _ := buildAudioAVI(t, 15)
	f := openBytes(t, b, true)
	defer f.Close()

	idx := f.track[0].index
	var sum int64
	for c := range idx {
		if idx[c].Tot != sum {
			t.Errorf("chunk %d: tot = %d, want %d", c, idx[c].Tot, sum)
		}
		sum += idx[c].Len
		if c+1 < len(idx) {
			if idx[c].Pos+idx[c].Len > idx[c+1].Pos {
				t.Errorf("chunk %d overlaps its successor: pos %d len %d next %d",
					c, idx[c].Pos, idx[c].Len, idx[c+1].Pos)
			}
			// chunk header plus even padding between payloads
			gap := idx[c+1].Pos - (idx[c].Pos + idx[c].Len)
			if gap < 8 || gap > 10 {
				t.Errorf("chunk %d: gap to successor = %d", c, gap)
			}
		}
	}
}

func TestReadAudioChunk(t *testing.T) {
	b, _ := buildAudioAVI(t, 5)
	f := openBytes(t, b, true)
	defer f.Close()

	if err := f.SetAudioChunkPosition(0); err != nil {
		t.Fatalf("SetAudioChunkPosition failed: %v", err)
	}

	var off int64
	for c := 0; c < 5; c++ {
		// A nil buffer reports the size without consuming.
		size, err := f.ReadAudioChunk(nil)
		if err != nil {
			t.Fatalf("ReadAudioChunk(nil) failed: %v", err)
		}
		want := int64(100 + c*13)
		if size != want {
			t.Errorf("chunk %d size = %d, want %d", c, size, want)
		}
		if pos, _ := f.AudioChunkPosition(); pos != int64(c) {
			t.Errorf("cursor moved on nil read: %d", pos)
		}

		buf := make([]byte, size)
		n, err := f.ReadAudioChunk(buf)
		if err != nil {
			t.Fatalf("ReadAudioChunk %d failed: %v", c, err)
		}
		if n != want {
			t.Errorf("chunk %d read = %d, want %d", c, n, want)
		}
		for i := int64(0); i < n; i++ {
			if buf[i] != byte((off+i)%251) {
				t.Fatalf("chunk %d byte %d = %d, want %d", c, i, buf[i], byte((off+i)%251))
			}
		}
		off += n
	}

	// Past the last chunk.
	if n, _ := f.ReadAudioChunk(make([]byte, 16)); n != -1 {
		t.Errorf("ReadAudioChunk past end = %d, want -1", n)
	}
}

func TestCanReadAudio(t *testing.T) {
	buf := NewSeekableBuffer()
	w := NewWriter()
	if err := w.Create(buf); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.SetVideo(64, 64, 10.0, "MJPG"); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}
	if err := w.AddAudioTrack(1, 8000, 8, WaveFormatPCM, 64); err != nil {
		t.Fatalf("AddAudioTrack failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteFrame(make([]byte, 100), true); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
		if err := w.WriteAudio(make([]byte, 50)); err != nil {
			t.Fatalf("WriteAudio failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f := openBytes(t, buf.Bytes(), true)
	defer f.Close()

	// Frame 0 precedes audio chunk 0 in the file.
	if ok, err := f.CanReadAudio(); err != nil || ok {
		t.Errorf("CanReadAudio before first frame = %v, %v; want false", ok, err)
	}
	if _, _, err := f.ReadFrame(nil); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if ok, _ := f.CanReadAudio(); !ok {
		t.Error("CanReadAudio after first frame = false, want true")
	}
	if _, err := f.ReadAudioChunk(make([]byte, 50)); err != nil {
		t.Fatalf("ReadAudioChunk failed: %v", err)
	}
	if ok, _ := f.CanReadAudio(); ok {
		t.Error("CanReadAudio after draining = true, want false")
	}
}
