package avi

import (
	"io"
)

// Random access over an indexed file: frame reads by position, audio
// reads through the per-track cursor.

// Frames returns the number of indexed video frames.
func (f *File) Frames() int64 { return f.videoFrames }

// Width returns the video width in pixels.
func (f *File) Width() int { return f.width }

// Height returns the video height in pixels.
func (f *File) Height() int { return f.height }

// FrameRate returns the video frame rate.
func (f *File) FrameRate() float64 { return f.fps }

// Compressor returns the video compressor FourCC from the strf chunk.
func (f *File) Compressor() string { return f.compressor2 }

// MaxChunkSize returns the largest data chunk observed.
func (f *File) MaxChunkSize() int64 { return f.maxLen }

// AudioTracks returns the number of audio tracks.
func (f *File) AudioTracks() int { return f.anum }

// Per-track accessors, all reporting on the current audio track.

func (f *File) AudioChannels() int  { return f.track[f.aptr].chans }
func (f *File) AudioRate() int64    { return f.track[f.aptr].rate }
func (f *File) AudioBits() int      { return f.track[f.aptr].bits }
func (f *File) AudioFormat() int    { return f.track[f.aptr].fmt }
func (f *File) AudioBytes() int64   { return f.track[f.aptr].audioBytes }
func (f *File) AudioChunks() int64  { return f.track[f.aptr].audioChunks }
func (f *File) AudioMP3Rate() int64 { return f.track[f.aptr].mp3rate }
func (f *File) AudioPadRate() int64 { return f.track[f.aptr].padrate }

// Codec chunk positions within the file, for external tools that patch
// the FourCC in place.

func (f *File) VideoCodecHeaderOffset() int64 { return f.vCodecHOff }
func (f *File) VideoCodecFormatOffset() int64 { return f.vCodecFOff }
func (f *File) AudioCodecHeaderOffset() int64 { return f.track[f.aptr].codecHOff }
func (f *File) AudioCodecFormatOffset() int64 { return f.track[f.aptr].codecFOff }

// FrameSize returns the payload size of the given frame, or 0 when the
// frame number is out of range.
func (f *File) FrameSize(frame int64) (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	if f.videoIndex == nil {
		return -1, f.fail(ErrNoIndex)
	}
	if frame < 0 || frame >= f.videoFrames {
		return 0, nil
	}
	return f.videoIndex[frame].Len, nil
}

// FramePosition returns the absolute file offset of the given frame's
// payload.
func (f *File) FramePosition(frame int64) (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	if f.videoIndex == nil {
		return -1, f.fail(ErrNoIndex)
	}
	if frame < 0 || frame >= f.videoFrames {
		return 0, nil
	}
	return f.videoIndex[frame].Pos, nil
}

// AudioChunkSize returns the payload size of the given chunk of the
// current audio track.
func (f *File) AudioChunkSize(chunk int64) (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	if f.track[f.aptr].index == nil {
		return -1, f.fail(ErrNoIndex)
	}
	if chunk < 0 || chunk >= f.track[f.aptr].audioChunks {
		return -1, nil
	}
	return f.track[f.aptr].index[chunk].Len, nil
}

// SeekStart rewinds the video read position to the first frame.
func (f *File) SeekStart() error {
	if f.mode != modeRead {
		return f.fail(ErrNotPermitted)
	}
	f.r.Seek(f.moviStart, io.SeekStart)
	f.videoPos = 0
	return nil
}

// SetVideoPosition moves the video read cursor. Negative frames clamp to
// 0; positions beyond the end are kept and make the next read fail.
func (f *File) SetVideoPosition(frame int64) error {
	if f.mode != modeRead {
		return f.fail(ErrNotPermitted)
	}
	if f.videoIndex == nil {
		return f.fail(ErrNoIndex)
	}
	if frame < 0 {
		frame = 0
	}
	f.videoPos = frame
	return nil
}

// VideoPosition returns the current video read cursor.
func (f *File) VideoPosition() int64 { return f.videoPos }

// ReadFrame reads the next video frame into buf and advances the
// cursor. It returns the payload size and the keyframe flag. With a nil
// buf the cursor still advances and only the size is reported. Past the
// last frame it returns io.EOF without advancing.
func (f *File) ReadFrame(buf []byte) (int, bool, error) {
	if f.mode != modeRead {
		return -1, false, f.fail(ErrNotPermitted)
	}
	if f.videoIndex == nil {
		return -1, false, f.fail(ErrNoIndex)
	}
	if f.videoPos < 0 || f.videoPos >= f.videoFrames {
		return -1, false, io.EOF
	}

	e := f.videoIndex[f.videoPos]
	key := e.Key == AVIIF_KEYFRAME

	if buf == nil {
		f.videoPos++
		return int(e.Len), key, nil
	}
	if int64(len(buf)) < e.Len {
		return -1, key, f.fail(ErrBufferTooSmall)
	}

	if _, err := f.r.Seek(e.Pos, io.SeekStart); err != nil {
		return -1, key, f.failOp("read frame", err)
	}
	if _, err := io.ReadFull(f.r, buf[:e.Len]); err != nil {
		return -1, key, f.failOp("read frame", err)
	}

	f.videoPos++
	return int(e.Len), key, nil
}

// SetAudioPosition moves the current track's cursor to the given byte
// offset within the concatenated audio stream.
func (f *File) SetAudioPosition(byteOff int64) error {
	if f.mode != modeRead {
		return f.fail(ErrNotPermitted)
	}
	if f.track[f.aptr].index == nil {
		return f.fail(ErrNoIndex)
	}
	f.track[f.aptr].seekAudioByte(byteOff)
	return nil
}

// SetAudioChunkPosition moves the current track's cursor to the start of
// the given chunk.
func (f *File) SetAudioChunkPosition(chunk int64) error {
	if f.mode != modeRead {
		return f.fail(ErrNotPermitted)
	}
	if f.track[f.aptr].index == nil {
		return f.fail(ErrNoIndex)
	}
	if chunk > f.track[f.aptr].audioChunks {
		return f.fail(ErrNoIndex)
	}
	f.track[f.aptr].posc = chunk
	f.track[f.aptr].posb = 0
	return nil
}

// AudioChunkPosition returns the chunk index of the current track's
// cursor.
func (f *File) AudioChunkPosition() (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	if f.track[f.aptr].index == nil {
		return -1, f.fail(ErrNoIndex)
	}
	return f.track[f.aptr].posc, nil
}

// ReadAudio fills buf from the current track's cursor, crossing chunk
// boundaries as needed, and returns the number of bytes read. It stops
// short at the end of the stream.
func (f *File) ReadAudio(buf []byte) (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	t := &f.track[f.aptr]
	if t.index == nil {
		return -1, f.fail(ErrNoIndex)
	}

	bytes := int64(len(buf))
	var nr int64

	if bytes == 0 {
		// A zero-length read skips to the next chunk boundary.
		t.posc++
		t.posb = 0
	}
	for bytes > 0 {
		if t.posc >= t.audioChunks {
			return nr, nil
		}
		left := t.index[t.posc].Len - t.posb
		if left <= 0 {
			if t.posc >= t.audioChunks-1 {
				return nr, nil
			}
			t.posc++
			t.posb = 0
			continue
		}
		todo := bytes
		if todo > left {
			todo = left
		}
		pos := t.index[t.posc].Pos + t.posb
		if _, err := f.r.Seek(pos, io.SeekStart); err != nil {
			return -1, f.failOp("read audio", err)
		}
		if _, err := io.ReadFull(f.r, buf[nr:nr+todo]); err != nil {
			return -1, f.failOp("read audio", err)
		}
		bytes -= todo
		nr += todo
		t.posb += todo
	}

	return nr, nil
}

// ReadAudioChunk reads the remainder of the current chunk in one call
// and advances to the next chunk. With a nil buf it returns the byte
// count without side effects.
func (f *File) ReadAudioChunk(buf []byte) (int64, error) {
	if f.mode != modeRead {
		return -1, f.fail(ErrNotPermitted)
	}
	t := &f.track[f.aptr]
	if t.index == nil {
		return -1, f.fail(ErrNoIndex)
	}
	if t.posc+1 > t.audioChunks {
		return -1, nil
	}

	left := t.index[t.posc].Len - t.posb
	if buf == nil {
		return left, nil
	}
	if left == 0 {
		t.posc++
		t.posb = 0
		return 0, nil
	}
	if int64(len(buf)) < left {
		return -1, f.fail(ErrBufferTooSmall)
	}

	pos := t.index[t.posc].Pos + t.posb
	if _, err := f.r.Seek(pos, io.SeekStart); err != nil {
		return -1, f.failOp("read audio chunk", err)
	}
	if _, err := io.ReadFull(f.r, buf[:left]); err != nil {
		return -1, f.failOp("read audio chunk", err)
	}
	t.posc++
	t.posb = 0
	return left, nil
}

// CanReadAudio reports whether the next audio chunk of the current track
// lies before the next video frame in the file, which tells interleaving
// consumers to drain audio first. The offset comparison is only
// meaningful within a single RIFF chunk.
func (f *File) CanReadAudio() (bool, error) {
	if f.mode != modeRead {
		return false, f.fail(ErrNotPermitted)
	}
	if f.videoIndex == nil || f.track[f.aptr].index == nil {
		return false, f.fail(ErrNoIndex)
	}
	t := &f.track[f.aptr]
	if t.posc >= t.audioChunks {
		return false, nil
	}
	if f.videoPos >= f.videoFrames {
		return true, nil
	}
	return t.index[t.posc].Pos < f.videoIndex[f.videoPos].Pos, nil
}

// Close releases the handle. For a writer this runs the deferred header
// pass first.
func (f *File) Close() error {
	var err error
	if f.mode == modeWrite && f.w != nil {
		err = f.closeOutput()
	}
	if c, ok := f.comments.(io.Closer); ok {
		c.Close()
	}
	f.comments = nil
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil && cerr != nil {
			err = f.failOp("close", cerr)
		}
		f.closer = nil
	}
	return err
}
