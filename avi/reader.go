package avi

import (
	"errors"
	"io"
	"os"
)

// Open reads the structure of the AVI in rs. With buildIndex the full
// video/audio index is reconstructed (from idx1, OpenDML indices or a
// movi scan); without it only the headers are parsed.
func Open(rs io.ReadSeeker, buildIndex bool) (*File, error) {
	f := newFile(modeRead)
	f.r = rs
	if err := f.parseInput(buildIndex); err != nil {
		return nil, err
	}
	f.aptr = 0
	return f, nil
}

// OpenFile opens the named AVI file for reading.
func OpenFile(filename string, buildIndex bool) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &AVIError{Op: "open", Err: err}
	}
	f := newFile(modeRead)
	f.r = file
	f.closer = file
	if err := f.parseInput(buildIndex); err != nil {
		file.Close()
		return nil, err
	}
	f.aptr = 0
	return f, nil
}

// OpenFileWithIndex opens the named AVI file and builds its index from
// the sidecar index file instead of scanning the AVI itself.
func OpenFileWithIndex(filename, indexFile string) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &AVIError{Op: "open", Err: err}
	}
	f := newFile(modeRead)
	f.r = file
	f.closer = file
	f.indexFile = indexFile
	if err := f.parseInput(false); err != nil {
		file.Close()
		return nil, err
	}
	f.aptr = 0
	return f, nil
}

// parseInput walks the RIFF structure, interprets the header list and
// reconstructs the indices.
func (f *File) parseInput(getIndex bool) error {
	var data [256]byte

	if _, err := io.ReadFull(f.r, data[:12]); err != nil {
		return f.failOp("read header", err)
	}
	if !fourCCEqFold(data[0:4], RIFFSignature) || !fourCCEqFold(data[8:12], AVISignature) {
		return f.fail(ErrNotAVI)
	}

	// Extract the header list, the movi start position and an optional
	// idx1 chunk.
	var hdrlData []byte
	var headerOffset int64
	oldpos := int64(-1)

scan:
	for {
		n, err := readChunkHeader(f.r, data[:4])
		if err != nil {
			break // assume EOF
		}
		newpos, _ := f.r.Seek(0, io.SeekCurrent)
		if oldpos == newpos {
			// Broken stream: the position did not advance.
			return f.failOp("scan", errors.New("broken AVI stream"))
		}
		oldpos = newpos

		switch {
		case fourCCEqFold(data[:4], LISTSignature):
			if _, err := io.ReadFull(f.r, data[:4]); err != nil {
				return f.failOp("read list type", err)
			}
			n -= 4
			if n < 0 {
				break scan
			}
			switch {
			case fourCCEqFold(data[:4], HDRLList):
				hdrlData = make([]byte, n)
				headerOffset, _ = f.r.Seek(0, io.SeekCurrent)
				if _, err := io.ReadFull(f.r, hdrlData); err != nil {
					return f.failOp("read hdrl", err)
				}
			case fourCCEqFold(data[:4], MOVIList):
				f.moviStart, _ = f.r.Seek(0, io.SeekCurrent)
				if _, err := f.r.Seek(n, io.SeekCurrent); err != nil {
					break scan
				}
			default:
				if _, err := f.r.Seek(n, io.SeekCurrent); err != nil {
					break scan
				}
			}
		case fourCCEqFold(data[:4], IDX1Chunk):
			raw := make([]byte, n)
			if _, err := io.ReadFull(f.r, raw); err != nil {
				f.idx = nil
				break
			}
			count := int(n / 16)
			f.idx = make([]indexEntry, count)
			for i := 0; i < count; i++ {
				copy(f.idx[i].tag[:], raw[i*16:])
				f.idx[i].flags = getU32(raw[i*16+4:])
				f.idx[i].pos = getU32(raw[i*16+8:])
				f.idx[i].size = getU32(raw[i*16+12:])
			}
		default:
			if _, err := f.r.Seek(n, io.SeekCurrent); err != nil {
				break scan
			}
		}
	}

	if hdrlData == nil {
		return f.fail(ErrNoHeaderList)
	}
	if f.moviStart == 0 {
		return f.fail(ErrNoMoviList)
	}

	if err := f.interpretHeaderList(hdrlData, headerOffset); err != nil {
		return err
	}

	f.videoTag = MakeChunkID(f.videoStrn, "db")

	// Assign audio data tags: the stream numbers around the video one.
	for j, i := 0, 0; j < f.anum+1; j++ {
		if j == f.videoStrn {
			continue
		}
		f.track[i].tag = MakeChunkID(j, "wb")
		i++
	}

	f.r.Seek(f.moviStart, io.SeekStart)

	if f.indexFile != "" && !getIndex {
		if err := f.parseSidecarIndex(f.indexFile); err != nil {
			return err
		}
		f.r.Seek(f.moviStart, io.SeekStart)
		f.videoPos = 0
		return nil
	}
	if !getIndex {
		return nil
	}

	if err := f.buildIndex(); err != nil {
		return err
	}

	f.r.Seek(f.moviStart, io.SeekStart)
	f.videoPos = 0
	return nil
}

// interpretHeaderList walks the buffered hdrl block. lasttag tracks the
// stream type of the most recent strh so strf and indx chunks can be
// attributed.
func (f *File) interpretHeaderList(hdrl []byte, headerOffset int64) error {
	const (
		tagNone = iota
		tagVids
		tagAuds
	)
	lasttag := tagNone
	vidsStrhSeen := false
	vidsStrfSeen := false
	numStream := 0

	for i := int64(0); i+8 <= int64(len(hdrl)); {
		hd := hdrl[i:]

		// List headers are skipped; their contents are parsed inline.
		if fourCCEqFold(hd, LISTSignature) {
			i += 12
			continue
		}

		n := padEven(int64(getU32(hd[4:])))

		switch {
		case fourCCEqFold(hd, STRHChunk):
			i += 8
			if i+48 > int64(len(hdrl)) {
				return f.fail(ErrNoHeaderList)
			}
			hd = hdrl[i:]
			switch {
			case fourCCEqFold(hd, StreamTypeVideo) && !vidsStrhSeen:
				copy(f.compressor[:], hd[4:8])
				f.vCodecHOff = headerOffset + i + 4

				scale := int64(getU32(hd[20:]))
				rate := int64(getU32(hd[24:]))
				if scale != 0 {
					f.fps = float64(rate) / float64(scale)
				}
				f.videoFrames = int64(getU32(hd[32:]))
				f.videoStrn = numStream
				f.maxLen = 0
				vidsStrhSeen = true
				lasttag = tagVids
			case fourCCEqFold(hd, StreamTypeAudio):
				if f.anum+1 > MaxTracks {
					return f.fail(ErrTooManyTracks)
				}
				f.aptr = f.anum
				f.anum++

				t := &f.track[f.aptr]
				t.audioBytes = int64(getU32(hd[32:])) * int64(f.sampSize(0))
				t.strn = numStream
				// a declared sample size of zero means VBR
				t.vbr = getU32(hd[44:]) == 0
				t.padrate = int64(getU32(hd[24:]))
				t.codecHOff = headerOffset + i
				lasttag = tagAuds
			case fourCCEqFold(hd, StreamTypeIAVS):
				return f.failOp("parse header", errors.New("DV AVI type 1 not supported"))
			default:
				lasttag = tagNone
			}
			numStream++

		case fourCCEqFold(hd, DMLHChunk):
			if int64(len(hd)) >= 12 {
				f.totalFrames = int64(getU32(hd[8:]))
			}
			i += 8

		case fourCCEqFold(hd, STRFChunk):
			i += 8
			hd = hdrl[i:]
			if lasttag == tagVids {
				if int64(len(hd)) < 40 {
					return f.fail(ErrNoHeaderList)
				}
				biSize := int64(getU32(hd))
				if biSize > int64(len(hd)) {
					biSize = int64(len(hd))
				}
				f.bitmapInfo = append([]byte(nil), hd[:biSize]...)

				f.width = int(getU32(hd[4:]))
				f.height = int(int32(getU32(hd[8:])))
				if f.height < 0 {
					f.height = -f.height
				}
				f.vCodecFOff = headerOffset + i + 16
				f.compressor2 = cleanFourCC(hd[16:20])
				vidsStrfSeen = true
			} else if lasttag == tagAuds {
				f.parseAudioFormat(hd, headerOffset+i)
			}

		case fourCCEqFold(hd, INDXChunk):
			if lasttag == tagVids {
				f.videoSuper = f.parseSuperIndex(hd)
				f.isOpenDML = true
			} else if lasttag == tagAuds {
				f.track[f.aptr].super = f.parseSuperIndex(hd)
			}
			i += 8

		case fourCCEqFold(hd, JUNKChunk),
			fourCCEqFold(hd, STRNChunk),
			fourCCEqFold(hd, VPRPChunk):
			// skip, but do not reset lasttag
			i += 8

		default:
			i += 8
			lasttag = tagNone
		}

		i += n
	}

	if !vidsStrhSeen || !vidsStrfSeen {
		return f.fail(ErrNoVideo)
	}
	return nil
}

// parseAudioFormat copies the WAVEFORMATEX of the current track,
// re-reading trailing cbSize bytes from the file when present.
func (f *File) parseAudioFormat(hd []byte, fileOffset int64) {
	const wfxSize = 18

	wfes := wfxSize
	if len(hd) < wfes {
		wfes = len(hd)
	}
	wfe := make([]byte, wfxSize)
	copy(wfe, hd[:wfes])

	if cb := int(getU16(wfe[16:])); cb > 0 {
		lpos, _ := f.r.Seek(0, io.SeekCurrent)
		ext := make([]byte, cb)
		if _, err := f.r.Seek(fileOffset+wfxSize, io.SeekStart); err == nil {
			if _, err := io.ReadFull(f.r, ext); err == nil {
				wfe = append(wfe, ext...)
			}
		}
		f.r.Seek(lpos, io.SeekStart)
	}

	t := &f.track[f.aptr]
	t.waveFormat = wfe
	t.codecFOff = fileOffset
	t.fmt = int(getU16(wfe))
	t.chans = int(getU16(wfe[2:]))
	t.rate = int64(getU32(wfe[4:]))
	t.mp3rate = 8 * int64(getU32(wfe[8:])) / 1000
	t.bits = int(getU16(wfe[14:]))
}

// parseSuperIndex decodes an indx chunk starting at its FourCC.
func (f *File) parseSuperIndex(b []byte) *superIndex {
	si := &superIndex{}
	if len(b) < 32 {
		return si
	}
	copy(si.fcc[:], b[0:4])
	si.wLongsPerEntry = getU16(b[8:])
	si.bIndexSubType = b[10]
	si.bIndexType = b[11]
	n := int(getU32(b[12:]))
	copy(si.chunkID[:], b[16:20])

	if si.bIndexSubType != 0 {
		f.warn.Printf("invalid header, bIndexSubType != 0")
	}

	si.entries = make([]superEntry, 0, n)
	off := 32
	for j := 0; j < n && off+16 <= len(b); j++ {
		si.entries = append(si.entries, superEntry{
			offset:   int64(getU64(b[off:])),
			size:     getU32(b[off+8:]),
			duration: getU32(b[off+12:]),
		})
		off += 16
	}
	si.entriesInUse = len(si.entries)
	return si
}

// buildIndex reconstructs the unified index, choosing between the
// OpenDML super indices, the legacy idx1 and a raw movi scan.
func (f *File) buildIndex() error {
	var data [8]byte

	// If the file has an idx1, detect whether its offsets are relative
	// to the start of the file or to the start of the movi list, by
	// checking where the first video frame actually is.
	idxType := 0
	if f.idx != nil {
		var i int
		for i = 0; i < len(f.idx); i++ {
			if foldPrefixEq(f.idx[i].tag[:], f.videoTag[:], 3) {
				break
			}
		}
		if i >= len(f.idx) {
			return f.fail(ErrNoVideo)
		}

		pos := int64(f.idx[i].pos)
		length := int64(f.idx[i].size)

		f.r.Seek(pos, io.SeekStart)
		if _, err := io.ReadFull(f.r, data[:8]); err != nil {
			return f.failOp("probe index", err)
		}
		if fourCCEqFold(data[:4], string(f.idx[i].tag[:])) && int64(getU32(data[4:])) == length {
			idxType = 1 // index offsets from start of file
		} else {
			f.r.Seek(pos+f.moviStart-4, io.SeekStart)
			if _, err := io.ReadFull(f.r, data[:8]); err != nil {
				return f.failOp("probe index", err)
			}
			if fourCCEqFold(data[:4], string(f.idx[i].tag[:])) && int64(getU32(data[4:])) == length {
				idxType = 2 // index offsets from start of movi list
			}
		}
	}

	if idxType == 0 && !f.isOpenDML && f.totalFrames == 0 {
		// No usable index: scan the movi area for data chunks.
		f.r.Seek(f.moviStart, io.SeekStart)
		f.idx = f.idx[:0]

		for {
			if _, err := io.ReadFull(f.r, data[:8]); err != nil {
				break
			}
			n := int64(getU32(data[4:]))

			// The movi list may contain sub-lists, ignore them.
			if fourCCEqFold(data[:4], LISTSignature) {
				f.r.Seek(4, io.SeekCurrent)
				continue
			}

			if isVideoChunkTag(data[:4]) || isAudioChunkTag(data[:4]) {
				cur, _ := f.r.Seek(0, io.SeekCurrent)
				f.addIndexEntry(data[:4], 0, cur-8, n)
			}

			f.r.Seek(padEven(n), io.SeekCurrent)
		}
		idxType = 1
	}

	switch {
	case f.isOpenDML:
		f.indexFromSuperIndices()
		if f.videoFrames != 0 {
			break
		}
		// Broken OpenDML (e.g. 'rec ' lists only): fall back to a scan.
		f.isOpenDML = false
		fallthrough
	case f.totalFrames > 0 && !f.isOpenDML && idxType == 0:
		if err := f.indexFromMoviScan(); err != nil {
			return err
		}
	default:
		if err := f.indexFromLegacy(idxType); err != nil {
			return err
		}
	}

	return nil
}

func isVideoChunkTag(tag []byte) bool {
	return (tag[2] == 'd' || tag[2] == 'D') &&
		(tag[3] == 'b' || tag[3] == 'B' || tag[3] == 'c' || tag[3] == 'C')
}

func isAudioChunkTag(tag []byte) bool {
	return (tag[2] == 'w' || tag[2] == 'W') && (tag[3] == 'b' || tag[3] == 'B')
}

// indexFromSuperIndices builds the index by reading every ix## chunk the
// super indices reference. Unreadable chunks are skipped with a warning.
func (f *File) indexFromSuperIndices() {
	const bodyHeader = 4 + 4 + 2 + 1 + 1 + 4 + 4 + 8 + 4

	f.videoIndex = nil
	var hdr [bodyHeader]byte

	for j := range f.videoSuper.entries {
		en := &f.videoSuper.entries[j]
		if _, err := f.r.Seek(en.offset, io.SeekStart); err != nil {
			f.warn.Printf("cannot seek to 0x%x", en.offset)
			continue
		}
		if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
			f.warn.Printf("cannot read index at 0x%x; broken (incomplete) file?", en.offset)
			continue
		}
		nr := int(getU32(hdr[12:]))
		base := int64(getU64(hdr[20:]))

		body := make([]byte, nr*8)
		got, _ := io.ReadFull(f.r, body)
		body = body[:got-got%8]

		for k := 0; k+8 <= len(body); k += 8 {
			pos := base + int64(getU32(body[k:]))
			length := int64(chunkLen(body[k+4:]))
			if pos-base == 0 && length == 0 {
				// completely empty padding entry
				continue
			}
			f.videoIndex = append(f.videoIndex, VideoIndexEntry{
				Pos: pos,
				Len: length,
				Key: int64(keyFlag(body[k+4:])),
			})
		}
	}
	f.videoFrames = int64(len(f.videoIndex))
	if f.videoFrames == 0 {
		return
	}

	for audtr := 0; audtr < f.anum; audtr++ {
		t := &f.track[audtr]
		if t.super == nil {
			f.warn.Printf("cannot read audio index for track %d", audtr)
			continue
		}
		t.index = nil
		var tot int64
		for j := range t.super.entries {
			en := &t.super.entries[j]
			if _, err := f.r.Seek(en.offset, io.SeekStart); err != nil {
				f.warn.Printf("cannot seek to 0x%x", en.offset)
				continue
			}
			if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
				f.warn.Printf("cannot read index at 0x%x; broken (incomplete) file?", en.offset)
				continue
			}
			nr := int(getU32(hdr[12:]))
			base := int64(getU64(hdr[20:]))

			body := make([]byte, nr*8)
			got, _ := io.ReadFull(f.r, body)
			body = body[:got-got%8]

			for k := 0; k+8 <= len(body); k += 8 {
				length := int64(chunkLen(body[k+4:]))
				t.index = append(t.index, AudioIndexEntry{
					Pos: base + int64(getU32(body[k:])),
					Len: length,
					Tot: tot,
				})
				tot += length
			}
		}
		t.audioChunks = int64(len(t.index))
		t.audioBytes = tot
	}
}

// indexFromMoviScan reconstructs the index for multi-RIFF files without
// usable OpenDML indices, by walking the data chunks. Only a single
// audio track can be recovered this way.
func (f *File) indexFromMoviScan() error {
	f.r.Seek(f.moviStart, io.SeekStart)
	f.idx = f.idx[:0]

	f.warn.Printf("reconstructing index...")

	total := f.totalFrames
	f.videoIndex = make([]VideoIndexEntry, 0, total)
	f.track[0].index = make([]AudioIndexEntry, 0, total)
	for j := 1; j < f.anum; j++ {
		f.track[j].audioChunks = 0
		f.track[j].index = nil
	}

	var data [8]byte
	var nvi, nai, tot int64

	for nvi < total {
		if _, err := io.ReadFull(f.r, data[:8]); err != nil {
			break
		}
		n := int64(getU32(data[4:]))

		switch {
		case (data[0] == '0' || data[1] == '0') && isVideoChunkTag(data[:4]):
			pos, _ := f.r.Seek(0, io.SeekCurrent)
			f.videoIndex = append(f.videoIndex, VideoIndexEntry{Pos: pos, Len: n})
			nvi++
			f.r.Seek(padEven(n), io.SeekCurrent)
		case (data[0] == '0' || data[1] == '1') && isAudioChunkTag(data[:4]):
			pos, _ := f.r.Seek(0, io.SeekCurrent)
			f.track[0].index = append(f.track[0].index, AudioIndexEntry{Pos: pos, Len: n, Tot: tot})
			tot += n
			nai++
			f.r.Seek(padEven(n), io.SeekCurrent)
		case foldPrefixEq(data[:2], []byte("ix"), 2):
			// An ix## standard index: skip it whole, its body carries
			// chunk ids that would otherwise read as data chunk tags.
			f.r.Seek(padEven(n), io.SeekCurrent)
		default:
			f.r.Seek(-4, io.SeekCurrent)
		}
	}
	if nvi < total {
		f.warn.Printf("some frames seem to be missing (%d/%d)", nvi, total)
	}

	f.videoFrames = nvi
	f.track[0].audioChunks = nai
	f.track[0].audioBytes = tot
	return nil
}

// indexFromLegacy converts the idx1 entries into the video and audio
// index arrays. ioff turns the stored offsets into absolute positions.
func (f *File) indexFromLegacy(idxType int) error {
	var nvi int64
	nai := make([]int64, f.anum)

	for i := range f.idx {
		if foldPrefixEq(f.idx[i].tag[:], f.videoTag[:], 3) {
			nvi++
		}
		for j := 0; j < f.anum; j++ {
			if foldPrefixEq(f.idx[i].tag[:], f.track[j].tag[:], 4) {
				nai[j]++
			}
		}
	}

	f.videoFrames = nvi
	for j := 0; j < f.anum; j++ {
		f.track[j].audioChunks = nai[j]
	}

	if f.videoFrames == 0 {
		return f.fail(ErrNoVideo)
	}
	f.videoIndex = make([]VideoIndexEntry, 0, nvi)
	for j := 0; j < f.anum; j++ {
		if nai[j] > 0 {
			f.track[j].index = make([]AudioIndexEntry, 0, nai[j])
		}
	}

	ioff := int64(8)
	if idxType != 1 {
		ioff = f.moviStart + 4
	}

	tot := make([]int64, f.anum)
	for i := range f.idx {
		if foldPrefixEq(f.idx[i].tag[:], f.videoTag[:], 3) {
			f.videoIndex = append(f.videoIndex, VideoIndexEntry{
				Key: int64(f.idx[i].flags),
				Pos: int64(f.idx[i].pos) + ioff,
				Len: int64(f.idx[i].size),
			})
		}
		for j := 0; j < f.anum; j++ {
			if foldPrefixEq(f.idx[i].tag[:], f.track[j].tag[:], 4) {
				length := int64(f.idx[i].size)
				f.track[j].index = append(f.track[j].index, AudioIndexEntry{
					Pos: int64(f.idx[i].pos) + ioff,
					Len: length,
					Tot: tot[j],
				})
				tot[j] += length
			}
		}
	}

	for j := 0; j < f.anum; j++ {
		f.track[j].audioBytes = tot[j]
	}
	return nil
}

func cleanFourCC(b []byte) string {
	out := make([]byte, 0, 4)
	for _, c := range b[:4] {
		if c >= 32 && c <= 126 {
			out = append(out, c)
		}
	}
	return string(out)
}
