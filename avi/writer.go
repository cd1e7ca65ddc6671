package avi

import (
	"fmt"
	"io"
	"os"
)

// NewWriter returns a File ready for Create or CreateFile.
func NewWriter() *File {
	return newFile(modeWrite)
}

// Create starts writing an AVI to ws. The first headerBytes of the
// destination are reserved with zeros; the real header is committed at
// Close.
func (f *File) Create(ws WriteSeekTruncater) error {
	if f.mode != modeWrite {
		return f.fail(ErrNotPermitted)
	}
	f.w = ws

	if err := writeFull(ws, make([]byte, headerBytes)); err != nil {
		return f.failOp("reserve header", err)
	}
	f.pos = headerBytes
	f.anum = 0
	f.aptr = 0
	return nil
}

// CreateFile creates (or truncates) the named file and starts writing.
func (f *File) CreateFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return f.failOp("create", err)
	}
	if err := f.Create(file); err != nil {
		file.Close()
		return err
	}
	f.closer = file
	return nil
}

// SetVideo declares the video stream. May be called again before the
// first write to adjust parameters. A compressor of "RGB*" means
// uncompressed frames and is stored as a zero FourCC.
func (f *File) SetVideo(width, height int, fps float64, compressor string) error {
	if f.mode != modeWrite || f.w == nil {
		return f.fail(ErrNotPermitted)
	}
	f.width = width
	f.height = height
	f.fps = fps

	f.compressor = [4]byte{}
	if len(compressor) >= 3 && compressor[:3] == "RGB" {
		// uncompressed, keep the zero FourCC
	} else {
		copy(f.compressor[:], compressor)
	}

	return f.updateHeader()
}

// SetVideoExtradata attaches codec private data appended to the video
// strf chunk (e.g. an MPEG-4 decoder config).
func (f *File) SetVideoExtradata(data []byte) error {
	if f.mode != modeWrite {
		return f.fail(ErrNotPermitted)
	}
	f.extradata = append([]byte(nil), data...)
	return nil
}

// AddAudioTrack declares one more audio track and makes it current.
// format is a WAVE format tag; mp3rate the average bitrate in kbit/s.
func (f *File) AddAudioTrack(channels int, rate int64, bits, format int, mp3rate int64) error {
	if f.mode != modeWrite || f.w == nil {
		return f.fail(ErrNotPermitted)
	}
	if f.anum+1 > MaxTracks {
		return f.fail(ErrTooManyTracks)
	}
	f.aptr = f.anum
	f.anum++

	t := &f.track[f.aptr]
	t.chans = channels
	t.rate = rate
	t.bits = bits
	t.fmt = format
	t.mp3rate = mp3rate

	return f.updateHeader()
}

// SetAudioVBR marks the current audio track as variable bitrate.
func (f *File) SetAudioVBR(vbr bool) {
	f.track[f.aptr].vbr = vbr
}

// AudioVBR reports whether the current audio track is variable bitrate.
func (f *File) AudioVBR() bool {
	return f.track[f.aptr].vbr
}

// SetAudioBitrate updates the average bitrate of the current track in
// kbit/s.
func (f *File) SetAudioBitrate(bitrate int64) error {
	if f.mode != modeWrite {
		return f.fail(ErrNotPermitted)
	}
	f.track[f.aptr].mp3rate = bitrate
	return nil
}

// SetAudioTrack selects the track targeted by WriteAudio, ReadAudio and
// the per-track accessors.
func (f *File) SetAudioTrack(track int) error {
	if track < 0 || track+1 > f.anum {
		return f.fail(ErrNoIndex)
	}
	f.aptr = track
	return nil
}

// AudioTrack returns the current audio track number.
func (f *File) AudioTrack() int {
	return f.aptr
}

// SetComments supplies the INFO list source, parsed at Close: one
// "TAG value" pair per line, with '#' comment lines and unknown tags
// ignored.
func (f *File) SetComments(r io.Reader) {
	f.comments = r
}

// SetMustUseIndex sets the AVIF_MUSTUSEINDEX header flag, telling players
// the chunk order on disk is not the presentation order.
func (f *File) SetMustUseIndex(must bool) {
	f.mustUseIndex = must
}

// WriteFrame appends one video frame.
func (f *File) WriteFrame(data []byte, keyframe bool) error {
	if f.mode != modeWrite {
		return f.fail(ErrNotPermitted)
	}
	pos := f.pos
	if err := f.writeData(data, false, keyframe); err != nil {
		return err
	}
	f.lastPos = pos
	f.lastLen = int64(len(data))
	f.videoFrames++
	return nil
}

// WriteAudio appends one chunk to the current audio track.
func (f *File) WriteAudio(data []byte) error {
	if f.mode != modeWrite {
		return f.fail(ErrNotPermitted)
	}
	if err := f.writeData(data, true, false); err != nil {
		return err
	}
	f.track[f.aptr].audioBytes += int64(len(data))
	f.track[f.aptr].audioChunks++
	return nil
}

// writeData grows the indices and emits the data chunk. The index entry
// is recorded before the payload reaches the descriptor; appendChunk
// restores the position on failure but the in-memory index keeps the
// entry, so after a failed write the index lists a chunk that is not in
// the file. Later writes are not refused and keep that stale entry.
func (f *File) writeData(data []byte, audio, keyframe bool) error {
	var tag []byte
	flags := AVIIF_KEYFRAME
	if audio {
		tag = []byte(fmt.Sprintf("0%1dwb", f.aptr+1))
	} else {
		tag = []byte("00db")
		if !keyframe {
			flags = 0
		}
	}

	if !f.isOpenDML {
		f.addIndexEntry(tag, uint32(flags), f.pos, int64(len(data)))
	}
	if err := f.addODMLIndexEntry(tag, flags, int64(len(data))); err != nil {
		return err
	}

	if err := f.appendChunk(tag, data); err != nil {
		return f.fail(err)
	}
	return nil
}

// addODMLIndexEntry appends to the extended index of the stream named by
// tag, rotating into a new sub-RIFF first when the current one would
// outgrow the threshold.
func (f *File) addODMLIndexEntry(tag []byte, flags int, length int64) error {
	audio := tag[2] == 'w'

	if !audio && f.videoSuper == nil {
		f.videoSuper = newSuperIndex("ix00", "00db")
	}
	if audio && f.track[f.aptr].super == nil {
		f.track[f.aptr].super = newSuperIndex(
			fmt.Sprintf("ix%02d", f.aptr+1), string(tag))
	}

	// Worst-case bytes needed to close the current sub-RIFF: every
	// live standard index as an ix## chunk, plus idx1 and the header
	// when still in the first sub-RIFF, plus this chunk.
	var towrite int64
	if f.videoSuper != nil {
		cur := f.videoSuper.entriesInUse - 1
		towrite += f.videoSuper.std[cur].payloadSize() + 8
		if cur == 0 {
			towrite += int64(len(f.idx))*16 + 8
			towrite += headerBytes
		}
	}
	for j := 0; j < f.anum; j++ {
		if s := f.track[j].super; s != nil {
			towrite += s.current().payloadSize() + 8
		}
	}
	towrite += length + (length & 1) + 8

	if f.videoSuper != nil &&
		f.pos+towrite > riffThreshold*int64(f.videoSuper.entriesInUse) {
		if err := f.rotateRiff(); err != nil {
			return err
		}
	}

	if audio {
		f.track[f.aptr].super.current().add(flags, f.pos, length)
	} else {
		f.videoSuper.current().add(flags, f.pos, length)
		f.totalFrames++
	}
	if length > f.maxLen {
		f.maxLen = length
	}
	return nil
}

// rotateRiff closes the current sub-RIFF: flushes the finished standard
// indices, emits idx1 on the first rotation, and opens the next RIFF/AVIX
// envelope whose lengths Close will patch.
func (f *File) rotateRiff() error {
	f.videoSuper.entriesInUse++
	cur := f.videoSuper.entriesInUse - 1

	if f.videoSuper.entriesInUse > nrIxnnChunks {
		return f.fail(ErrTooManyRiffs)
	}

	f.videoSuper.std[cur].init("ix00", "00db")
	for j := 0; j < f.anum; j++ {
		s := f.track[j].super
		if s == nil {
			continue
		}
		s.entriesInUse++
		s.std[s.entriesInUse-1].init(
			fmt.Sprintf("ix%02d", j+1), fmt.Sprintf("0%1dwb", j+1))
	}

	if cur > 0 {
		// Dump the previous, already finished indices.
		if err := f.flushStdIndex(f.videoSuper, cur-1, nil); err != nil {
			return err
		}
		for j := 0; j < f.anum; j++ {
			if f.track[j].super == nil {
				continue
			}
			if err := f.flushStdIndex(f.track[j].super, cur-1, &f.track[j]); err != nil {
				return err
			}
		}

		if cur == 1 {
			if err := f.appendChunk([]byte(IDX1Chunk), f.marshalIdx1()); err != nil {
				return f.fail(err)
			}
		}

		// Placeholder RIFF/AVIX envelope; lengths are fixed at Close.
		if err := f.appendChunk([]byte(RIFFSignature),
			[]byte("AVIXLIST\x00\x00\x00\x00movi")); err != nil {
			return f.fail(err)
		}

		base := f.pos - 16 - 8
		f.videoSuper.std[cur].base = base
		for j := 0; j < f.anum; j++ {
			if f.track[j].super != nil {
				f.track[j].super.std[cur].base = base
			}
		}

		f.isOpenDML = true
	}
	return nil
}

// flushStdIndex writes standard index k as an ix## chunk and fills in
// the matching super index entry. tr is nil for the video stream.
func (f *File) flushStdIndex(si *superIndex, k int, tr *Track) error {
	ch := si.std[k]
	en := &si.entries[k]
	en.offset = f.pos
	en.size = uint32(ch.payloadSize())
	en.duration = uint32(len(ch.entries) - 1)
	if tr != nil && tr.fmt == WaveFormatPCM {
		// Approximate PCM stream ticks; informational only.
		en.duration *= uint32(int64(tr.bits) * tr.rate * int64(tr.chans) / 800)
	}
	if err := f.appendChunk(ch.fcc[:], ch.marshal()); err != nil {
		return f.fail(err)
	}
	return nil
}

// BytesWritten returns the size the file would have if closed now.
func (f *File) BytesWritten() int64 {
	if f.mode != modeWrite {
		return 0
	}
	return f.pos + 8 + 16*int64(len(f.idx))
}

// BytesRemain returns how much payload still fits under the legacy
// single-RIFF limit.
func (f *File) BytesRemain() int64 {
	if f.mode != modeWrite {
		return 0
	}
	return maxFileLen - (f.pos + 8 + 16*int64(len(f.idx)))
}

// MaxSize returns the legacy single-RIFF file size bound.
func MaxSize() int64 {
	return maxFileLen
}
