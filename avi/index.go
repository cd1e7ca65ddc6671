package avi

// Index model: the legacy idx1 array, and the OpenDML super index with its
// per-RIFF standard indices. The super index owns its standard indices
// through a slot table; standard indices never point back.

const indexGrowth = 4096 // entries per allocation step

// stdEntry is one entry of an ix## standard index.
type stdEntry struct {
	offset uint32 // chunk offset relative to base + 8
	size   uint32 // bit 31 set when the chunk is NOT a keyframe
}

// stdIndex models one ix## chunk: the chunk list of one stream within one
// sub-RIFF.
type stdIndex struct {
	fcc     [4]byte // "ix00", "ix01", ...
	chunkID [4]byte // "00db", "01wb", ...
	base    int64   // qwBaseOffset: file offset of the owning sub-RIFF
	entries []stdEntry
}

// superEntry is one entry of an indx super index, pointing at the ix##
// chunk written for one sub-RIFF.
type superEntry struct {
	offset   int64 // absolute file offset of the ix## chunk
	size     uint32
	duration uint32 // stream ticks covered; informational only
}

// superIndex models one indx chunk and, on the write side, the standard
// indices it will reference.
type superIndex struct {
	fcc           [4]byte // "indx"
	wLongsPerEntry uint16
	bIndexSubType byte
	bIndexType    byte
	entriesInUse  int
	chunkID       [4]byte

	entries []superEntry

	// Write side only: slot k holds the standard index of sub-RIFF k.
	// One extra slot records the base offset of the would-be next
	// sub-RIFF, which Close needs for the length fixups.
	std []*stdIndex
}

// newSuperIndex builds a write-side super index with its first standard
// index ready for entries.
func newSuperIndex(idxTag, strTag string) *superIndex {
	si := &superIndex{
		wLongsPerEntry: 4,
		bIndexSubType:  0,
		bIndexType:     aviIndexOfIndexes,
		entries:        make([]superEntry, nrIxnnChunks),
		std:            make([]*stdIndex, nrIxnnChunks+1),
	}
	copy(si.fcc[:], INDXChunk)
	copy(si.chunkID[:], strTag)
	for k := range si.std {
		si.std[k] = &stdIndex{base: int64(k) * riffThreshold}
	}
	si.entriesInUse = 1
	si.std[0].init(idxTag, strTag)
	return si
}

// init prepares a standard index slot for use.
func (ch *stdIndex) init(idxTag, strTag string) {
	copy(ch.fcc[:], idxTag)
	copy(ch.chunkID[:], strTag)
	ch.entries = make([]stdEntry, 0, indexGrowth)
}

// add appends a chunk to the standard index. A flags value other than
// AVIIF_KEYFRAME sets bit 31 of the stored size.
func (ch *stdIndex) add(flags int, pos int64, length int64) {
	if len(ch.entries) == cap(ch.entries) {
		grown := make([]stdEntry, len(ch.entries), cap(ch.entries)+indexGrowth)
		copy(grown, ch.entries)
		ch.entries = grown
	}
	size := uint32(length)
	if flags != AVIIF_KEYFRAME {
		size |= 0x80000000
	}
	ch.entries = append(ch.entries, stdEntry{
		offset: uint32(pos - ch.base + 8),
		size:   size,
	})
}

// current returns the standard index receiving new entries.
func (si *superIndex) current() *stdIndex {
	return si.std[si.entriesInUse-1]
}

// payloadSize is the ix## chunk payload length: the 24-byte body header
// plus 8 bytes per entry.
func (ch *stdIndex) payloadSize() int64 {
	return int64(len(ch.entries))*8 + 2 + 1 + 1 + 4 + 4 + 8 + 4
}

// marshal renders the ix## chunk payload.
func (ch *stdIndex) marshal() []byte {
	b := make([]byte, ch.payloadSize())
	putU16(b[0:], 2) // wLongsPerEntry for an index of chunks
	b[2] = 0         // bIndexSubType
	b[3] = aviIndexOfChunks
	putU32(b[4:], uint32(len(ch.entries)))
	copy(b[8:], ch.chunkID[:])
	putU64(b[12:], uint64(ch.base))
	putU32(b[20:], 0) // reserved
	n := 24
	for _, e := range ch.entries {
		putU32(b[n:], e.offset)
		putU32(b[n+4:], e.size)
		n += 8
	}
	return b
}

// addIndexEntry appends a record to the legacy idx1 index.
func (f *File) addIndexEntry(tag []byte, flags uint32, pos int64, length int64) {
	if len(f.idx) == cap(f.idx) {
		grown := make([]indexEntry, len(f.idx), cap(f.idx)+indexGrowth)
		copy(grown, f.idx)
		f.idx = grown
	}
	var e indexEntry
	copy(e.tag[:], tag)
	e.flags = flags
	e.pos = uint32(pos)
	e.size = uint32(length)
	f.idx = append(f.idx, e)

	if length > f.maxLen {
		f.maxLen = length
	}
}

// marshalIdx1 renders the legacy index as the idx1 chunk payload.
func (f *File) marshalIdx1() []byte {
	b := make([]byte, len(f.idx)*16)
	for i, e := range f.idx {
		copy(b[i*16:], e.tag[:])
		putU32(b[i*16+4:], e.flags)
		putU32(b[i*16+8:], e.pos)
		putU32(b[i*16+12:], e.size)
	}
	return b
}

// sampSize returns the audio sample group size for track j, clamped the
// way the header math expects.
func (f *File) sampSize(j int) int {
	s := ((f.track[j].bits + 7) / 8) * f.track[j].chans
	if s < 4 {
		s = 4
	}
	return s
}

// seekAudioByte positions track t's cursor at the chunk containing the
// byte-th audio byte, by binary search over the cumulative totals.
func (t *Track) seekAudioByte(byteOff int64) {
	if byteOff < 0 {
		byteOff = 0
	}
	if t.audioChunks == 0 {
		return
	}
	n0, n1 := int64(0), t.audioChunks
	for n0 < n1-1 {
		n := (n0 + n1) / 2
		if t.index[n].Tot > byteOff {
			n1 = n
		} else {
			n0 = n
		}
	}
	t.posc = n0
	t.posb = byteOff - t.index[n0].Tot
	if t.posb > t.index[n0].Len {
		// past the end of the stream: clamp to end of the last chunk
		t.posb = t.index[n0].Len
	}
}
