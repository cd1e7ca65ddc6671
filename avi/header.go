package avi

import (
	"io"
)

// headerBuf builds the 2048-byte header area. Writes that would overflow
// the buffer are dropped while the length counter still advances, so the
// JUNK sizing detects an overrun instead of corrupting memory.
type headerBuf struct {
	b [headerBytes]byte
	n int
}

func (h *headerBuf) fourCC(s string) {
	if h.n <= headerBytes-4 {
		copy(h.b[h.n:], s[:4])
	}
	h.n += 4
}

func (h *headerBuf) long(v int64) {
	if h.n <= headerBytes-4 {
		putU32(h.b[h.n:], uint32(v))
	}
	h.n += 4
}

func (h *headerBuf) short(v int64) {
	if h.n <= headerBytes-2 {
		putU16(h.b[h.n:], uint16(v))
	}
	h.n += 2
}

func (h *headerBuf) char(v byte) {
	if h.n <= headerBytes-1 {
		h.b[h.n] = v
	}
	h.n++
}

func (h *headerBuf) mem(d []byte) {
	if h.n <= headerBytes-len(d) {
		copy(h.b[h.n:], d)
	}
	h.n += len(d)
}

// patch rewrites the length field preceding the position marker at.
func (h *headerBuf) patch(at int, v int64) {
	putU32(h.b[at-4:], uint32(v))
}

func (f *File) frameRate() (frate, msPerFrame int64) {
	if f.fps < 0.001 {
		return 0, 0
	}
	frate = int64(frameRateScale*f.fps + 0.5)
	msPerFrame = int64(1000000/f.fps + 0.5)
	return frate, msPerFrame
}

// updateHeader writes a provisional header: zero frame counts but a
// maximum movi length, so a partially written file stays parseable if
// the process dies mid-write.
func (f *File) updateHeader() error {
	var h headerBuf
	frate, msPerFrame := f.frameRate()

	moviLen := maxFileLen - headerBytes + 4

	h.fourCC(RIFFSignature)
	h.long(moviLen) // assume maximum size
	h.fourCC(AVISignature)

	h.fourCC(LISTSignature)
	h.long(0) // length patched below
	hdrlStart := h.n
	h.fourCC(HDRLList)

	h.fourCC(AVIHChunk)
	h.long(56)
	h.long(msPerFrame)
	h.long(0) // MaxBytesPerSec
	h.long(0) // PaddingGranularity
	flag := int64(avifIsInterleaved | avifHasIndex)
	if f.mustUseIndex {
		flag |= avifMustUseIndex
	}
	h.long(flag)
	h.long(0) // no frames yet
	h.long(0) // InitialFrames
	h.long(int64(f.anum + 1))
	h.long(0) // SuggestedBufferSize
	h.long(int64(f.width))
	h.long(int64(f.height))
	h.long(0) // reserved
	h.long(0)
	h.long(0)
	h.long(0)

	// The video stream list.
	h.fourCC(LISTSignature)
	h.long(0)
	strlStart := h.n
	h.fourCC(STRLList)

	h.fourCC(STRHChunk)
	h.long(56)
	h.fourCC(StreamTypeVideo)
	h.mem(f.compressor[:])
	h.long(0) // Flags
	h.long(0) // Priority, Language
	h.long(0) // InitialFrames
	h.long(frameRateScale)
	h.long(frate)
	h.long(0) // Start
	h.long(0) // no frames yet
	h.long(0) // SuggestedBufferSize
	h.long(-1)
	h.long(0) // SampleSize
	h.long(0) // Frame
	h.long(0)

	f.putVideoFormat(&h)

	h.patch(strlStart, int64(h.n-strlStart))

	// The audio stream lists.
	for j := 0; j < f.anum; j++ {
		sampsize := int64(f.sampSize(j))

		h.fourCC(LISTSignature)
		h.long(0)
		strlStart = h.n
		h.fourCC(STRLList)

		h.fourCC(STRHChunk)
		h.long(56)
		h.fourCC(StreamTypeAudio)
		h.long(0) // Handler
		h.long(0) // Flags
		h.long(0) // Priority, Language
		h.long(0) // InitialFrames
		h.long(sampsize / 4)
		h.long(1000 * f.track[j].mp3rate / 8)
		h.long(0) // Start
		h.long(4 * f.track[j].audioBytes / sampsize)
		h.long(0) // SuggestedBufferSize
		h.long(-1)
		h.long(sampsize / 4)
		h.long(0) // Frame
		h.long(0)

		h.fourCC(STRFChunk)
		h.long(16)
		h.short(int64(f.track[j].fmt))
		h.short(int64(f.track[j].chans))
		h.long(f.track[j].rate)
		h.long(1000 * f.track[j].mp3rate / 8)
		h.short(sampsize / 4)
		h.short(int64(f.track[j].bits))

		h.patch(strlStart, int64(h.n-strlStart))
	}

	h.patch(hdrlStart, int64(h.n-hdrlStart))

	if err := f.putJunkAndMovi(&h, moviLen); err != nil {
		return err
	}

	if _, err := f.w.Seek(0, io.SeekStart); err != nil {
		return f.failOp("update header", err)
	}
	if err := writeFull(f.w, h.b[:]); err != nil {
		return f.failOp("update header", err)
	}
	if _, err := f.w.Seek(f.pos, io.SeekStart); err != nil {
		return f.failOp("update header", err)
	}
	return nil
}

func (f *File) putVideoFormat(h *headerBuf) {
	xdSize := int64(len(f.extradata))
	xdAlign := padEven(xdSize)

	h.fourCC(STRFChunk)
	h.long(40 + xdAlign)
	h.long(40 + xdSize) // biSize
	h.long(int64(f.width))
	h.long(int64(f.height))
	h.short(1)  // Planes
	h.short(24) // BitCount
	h.mem(f.compressor[:])
	h.long(int64(f.width) * int64(f.height) * 3) // SizeImage
	h.long(0)                                    // XPelsPerMeter
	h.long(0)                                    // YPelsPerMeter
	h.long(0)                                    // ClrUsed
	h.long(0)                                    // ClrImportant

	if xdSize > 0 {
		h.mem(f.extradata)
		if xdSize != xdAlign {
			h.char(0)
		}
	}
}

func (f *File) putSuperIndex(h *headerBuf, si *superIndex) {
	n := int64(si.entriesInUse)
	h.fourCC(INDXChunk)
	h.long(2 + 1 + 1 + 4 + 4 + 3*4 + n*(8+4+4))
	h.short(int64(si.wLongsPerEntry))
	h.char(si.bIndexSubType)
	h.char(si.bIndexType)
	h.long(n)
	h.mem(si.chunkID[:])
	h.long(0)
	h.long(0)
	h.long(0)

	for k := 0; k < si.entriesInUse; k++ {
		off := uint64(si.entries[k].offset)
		h.long(int64(uint32(off)))
		h.long(int64(uint32(off >> 32)))
		h.long(int64(si.entries[k].size))
		h.long(int64(si.entries[k].duration))
	}
}

func (f *File) putJunkAndMovi(h *headerBuf, moviLen int64) error {
	njunk := headerBytes - h.n - 8 - 12
	if njunk <= 0 {
		// The header outgrew the reserved area.
		return f.failOp("close", ErrSizeLimit)
	}

	h.fourCC(JUNKChunk)
	h.long(int64(njunk))
	h.n += njunk // reserved area is already zero

	h.fourCC(LISTSignature)
	h.long(moviLen)
	h.fourCC(MOVIList)
	return nil
}

// closeOutput flushes the remaining indices, builds the final header in
// memory, commits it, and patches the sub-RIFF envelopes.
func (f *File) closeOutput() error {
	// Dump the rest of the extended index.
	if f.isOpenDML {
		cur := f.videoSuper.entriesInUse - 1
		if err := f.flushStdIndex(f.videoSuper, cur, nil); err != nil {
			return err
		}
		for j := 0; j < f.anum; j++ {
			if f.track[j].super == nil {
				continue
			}
			if err := f.flushStdIndex(f.track[j].super, cur, &f.track[j]); err != nil {
				return err
			}
		}
		// The sentinel slot records where the next sub-RIFF would
		// begin; the fixup pass below reads it as the file end.
		f.videoSuper.std[cur+1].base = f.pos
	}

	var moviLen int64
	if f.isOpenDML {
		moviLen = f.videoSuper.std[1].base - headerBytes + 4 - int64(len(f.idx))*16 - 8
	} else {
		moviLen = f.pos - headerBytes + 4
	}

	// Try to write the legacy index. If it fails (e.g. no space left on
	// device) we still rewrite the header so the file stays readable.
	var idxErr error
	hasIndex := true
	if !f.isOpenDML {
		if err := f.appendChunk([]byte(IDX1Chunk), f.marshalIdx1()); err != nil {
			hasIndex = false
			idxErr = f.fail(ErrWriteIndex)
		}
	}

	var h headerBuf
	frate, msPerFrame := f.frameRate()

	h.fourCC(RIFFSignature)
	if f.isOpenDML {
		h.long(f.videoSuper.std[1].base - 8)
	} else {
		h.long(f.pos - 8)
	}
	h.fourCC(AVISignature)

	h.fourCC(LISTSignature)
	h.long(0)
	hdrlStart := h.n
	h.fourCC(HDRLList)

	h.fourCC(AVIHChunk)
	h.long(56)
	h.long(msPerFrame)
	h.long(0) // MaxBytesPerSec
	h.long(0) // PaddingGranularity
	flag := int64(avifIsInterleaved)
	if hasIndex {
		flag |= avifHasIndex
	}
	if hasIndex && f.mustUseIndex {
		flag |= avifMustUseIndex
	}
	h.long(flag)
	h.long(f.videoFrames)
	h.long(0) // InitialFrames
	h.long(int64(f.anum + 1))
	h.long(0) // SuggestedBufferSize
	h.long(int64(f.width))
	h.long(int64(f.height))
	h.long(0) // reserved
	h.long(0)
	h.long(0)
	h.long(0)

	// The video stream list.
	h.fourCC(LISTSignature)
	h.long(0)
	strlStart := h.n
	h.fourCC(STRLList)

	h.fourCC(STRHChunk)
	h.long(56)
	h.fourCC(StreamTypeVideo)
	h.mem(f.compressor[:])
	h.long(0) // Flags
	h.long(0) // Priority, Language
	h.long(0) // InitialFrames
	h.long(frameRateScale)
	h.long(frate)
	h.long(0) // Start
	h.long(f.videoFrames)
	h.long(f.maxLen) // SuggestedBufferSize
	h.long(0)        // Quality
	h.long(0)        // SampleSize
	h.long(0)        // Frame
	h.long(0)

	f.putVideoFormat(&h)

	if f.isOpenDML {
		f.putSuperIndex(&h, f.videoSuper)
	}

	h.patch(strlStart, int64(h.n-strlStart))

	// The audio stream lists.
	for j := 0; j < f.anum; j++ {
		t := &f.track[j]
		sampsize := int64(f.sampSize(j))
		if t.fmt == WaveFormatPCM {
			sampsize *= 4
		}

		nBlockAlign := int64(1152)
		if t.rate < 32000 {
			nBlockAlign = 576
		}

		var avgbsec, scalerate int64
		if t.fmt == WaveFormatPCM {
			if t.chans < 2 {
				sampsize /= 2
			}
			avgbsec = t.rate * sampsize / 4
			scalerate = t.rate * sampsize / 4
		} else {
			avgbsec = 1000 * t.mp3rate / 8
			scalerate = 1000 * t.mp3rate / 8
		}

		h.fourCC(LISTSignature)
		h.long(0)
		strlStart = h.n
		h.fourCC(STRLList)

		h.fourCC(STRHChunk)
		h.long(56)
		h.fourCC(StreamTypeAudio)
		h.long(0) // Handler
		h.long(0) // Flags
		h.long(0) // Priority, Language
		h.long(0) // InitialFrames

		if t.fmt == WaveFormatMP3 && t.vbr {
			h.long(nBlockAlign) // Scale: one block per tick
			h.long(t.rate)
			h.long(0) // Start
			h.long(t.audioChunks)
			h.long(0) // SuggestedBufferSize
			h.long(0) // Quality
			h.long(0) // SampleSize
			h.long(0) // Frame
			h.long(0)
		} else {
			h.long(sampsize / 4)
			h.long(scalerate)
			h.long(0) // Start
			h.long(4 * t.audioBytes / sampsize)
			h.long(0) // SuggestedBufferSize
			h.long(-1)
			h.long(sampsize / 4)
			h.long(0) // Frame
			h.long(0)
		}

		h.fourCC(STRFChunk)
		switch {
		case t.fmt == WaveFormatMP3 && t.vbr:
			h.long(30)
			h.short(int64(t.fmt))
			h.short(int64(t.chans))
			h.long(t.rate)
			h.long(1000 * t.mp3rate / 8)
			h.short(nBlockAlign)
			h.short(int64(t.bits))
			// MPEGLAYER3WAVEFORMAT trailer
			h.short(12) // cbSize
			h.short(1)  // wID
			h.long(2)   // fdwFlags
			h.short(nBlockAlign)
			h.short(1) // nFramesPerBlock
			h.short(0) // nCodecDelay
		case t.fmt == WaveFormatMP3:
			h.long(30)
			h.short(int64(t.fmt))
			h.short(int64(t.chans))
			h.long(t.rate)
			h.long(1000 * t.mp3rate / 8)
			h.short(sampsize / 4)
			h.short(int64(t.bits))
			h.short(12) // cbSize
			h.short(1)  // wID
			h.long(2)   // fdwFlags
			h.short(nBlockAlign)
			h.short(1) // nFramesPerBlock
			h.short(0) // nCodecDelay
		default:
			h.long(18)
			h.short(int64(t.fmt))
			h.short(int64(t.chans))
			h.long(t.rate)
			h.long(avgbsec)
			h.short(sampsize / 4)
			h.short(int64(t.bits))
			h.short(0) // cbSize
		}

		if f.isOpenDML && t.super != nil {
			f.putSuperIndex(&h, t.super)
		}

		h.patch(strlStart, int64(h.n-strlStart))
	}

	if f.isOpenDML {
		h.fourCC(LISTSignature)
		h.long(16)
		h.fourCC(ODMLList)
		h.fourCC(DMLHChunk)
		h.long(4)
		h.long(f.totalFrames)
	}

	h.patch(hdrlStart, int64(h.n-hdrlStart))

	f.putInfoList(&h)

	if err := f.putJunkAndMovi(&h, moviLen); err != nil {
		return err
	}

	if _, err := f.w.Seek(0, io.SeekStart); err != nil {
		return f.failOp("close", err)
	}
	if err := writeFull(f.w, h.b[:]); err != nil {
		return f.failOp("close", err)
	}
	if err := f.w.Truncate(f.pos); err != nil {
		return f.failOp("close", err)
	}

	// Fix up the placeholder RIFF and LIST envelopes of the extra
	// sub-RIFFs.
	if f.isOpenDML {
		var buf [4]byte
		for k := 1; k < f.videoSuper.entriesInUse; k++ {
			base := f.videoSuper.std[k].base
			length := f.videoSuper.std[k+1].base - base - 8
			if _, err := f.w.Seek(base+4, io.SeekStart); err != nil {
				return f.failOp("close", err)
			}
			putU32(buf[:], uint32(length))
			if err := writeFull(f.w, buf[:]); err != nil {
				return f.failOp("close", err)
			}
			if _, err := f.w.Seek(8, io.SeekCurrent); err != nil {
				return f.failOp("close", err)
			}
			putU32(buf[:], uint32(length-12))
			if err := writeFull(f.w, buf[:]); err != nil {
				return f.failOp("close", err)
			}
		}
	}

	return idxErr
}

// putInfoList appends the LIST INFO block: the library version in ISFT
// plus any caller-supplied comment tags that fit.
func (f *File) putInfoList(h *headerBuf) {
	h.fourCC(LISTSignature)
	infoStart := h.n
	h.long(0) // patched below
	h.fourCC(INFOList)

	h.fourCC("ISFT")
	realIDLen := int64(len(Version) + 1)
	idLen := padEven(realIDLen)
	h.long(realIDLen)
	id := make([]byte, idLen)
	copy(id, Version)
	h.mem(id)

	var infoLen int
	space := headerBytes - h.n - 8 - 12
	if f.comments != nil && space > 0 && h.n < headerBytes {
		infoLen = parseComments(f.comments, h.b[h.n:h.n+space])
	}
	h.patch(infoStart+4, int64(infoLen)+idLen+4+4+4)
	h.n += infoLen
}
