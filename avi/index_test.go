package avi

import (
	"testing"
)

func TestStdIndexAddAndMarshal(t *testing.T) {
	ch := &stdIndex{}
	ch.init("ix00", "00db")
	ch.base = 1 << 20

	ch.add(AVIIF_KEYFRAME, 1<<20+100, 4096)
	ch.add(0, 1<<20+5000, 1000)

	if len(ch.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(ch.entries))
	}
	if ch.entries[0].offset != 108 {
		t.Errorf("entry 0 offset = %d, want 108", ch.entries[0].offset)
	}
	if ch.entries[0].size != 4096 {
		t.Errorf("entry 0 size = %#x, want 4096", ch.entries[0].size)
	}
	if ch.entries[1].size != 1000|0x80000000 {
		t.Errorf("entry 1 size = %#x, want bit 31 set", ch.entries[1].size)
	}

	b := ch.marshal()
	if int64(len(b)) != ch.payloadSize() {
		t.Fatalf("marshal length = %d, want %d", len(b), ch.payloadSize())
	}
	if getU16(b[0:]) != 2 {
		t.Errorf("wLongsPerEntry = %d, want 2", getU16(b[0:]))
	}
	if b[3] != aviIndexOfChunks {
		t.Errorf("bIndexType = %d", b[3])
	}
	if getU32(b[4:]) != 2 {
		t.Errorf("entry count = %d, want 2", getU32(b[4:]))
	}
	if string(b[8:12]) != "00db" {
		t.Errorf("chunk id = %q", b[8:12])
	}
	if getU64(b[12:]) != 1<<20 {
		t.Errorf("base offset = %#x", getU64(b[12:]))
	}
	if getU32(b[24:]) != 108 || getU32(b[28:]) != 4096 {
		t.Errorf("first entry = %d/%d", getU32(b[24:]), getU32(b[28:]))
	}
}

func TestStdIndexGrowth(t *testing.T) {
	ch := &stdIndex{}
	ch.init("ix00", "00db")
	for i := 0; i < indexGrowth+10; i++ {
		ch.add(AVIIF_KEYFRAME, int64(i)*100, 50)
	}
	if len(ch.entries) != indexGrowth+10 {
		t.Fatalf("entries = %d, want %d", len(ch.entries), indexGrowth+10)
	}
	if ch.entries[indexGrowth].offset != uint32(indexGrowth*100+8) {
		t.Errorf("entry after growth has offset %d", ch.entries[indexGrowth].offset)
	}
}

func TestNewSuperIndexPlaceholders(t *testing.T) {
	si := newSuperIndex("ix00", "00db")
	if si.entriesInUse != 1 {
		t.Fatalf("entriesInUse = %d, want 1", si.entriesInUse)
	}
	if len(si.std) != nrIxnnChunks+1 {
		t.Fatalf("std slots = %d, want %d", len(si.std), nrIxnnChunks+1)
	}
	for k, ch := range si.std {
		if ch.base != int64(k)*riffThreshold {
			t.Errorf("slot %d base = %d, want %d", k, ch.base, int64(k)*riffThreshold)
		}
	}
	if string(si.chunkID[:]) != "00db" || string(si.fcc[:]) != INDXChunk {
		t.Errorf("tags = %q %q", si.chunkID[:], si.fcc[:])
	}
}

func TestSeekAudioByte(t *testing.T) {
	tr := &Track{}
	lens := []int64{100, 50, 200, 1}
	var tot int64
	for _, l := range lens {
		tr.index = append(tr.index, AudioIndexEntry{Pos: 1000 + tot, Len: l, Tot: tot})
		tot += l
	}
	tr.audioChunks = int64(len(lens))

	cases := []struct{ b, posc, posb int64 }{
		{-5, 0, 0},
		{0, 0, 0},
		{99, 0, 99},
		{100, 1, 0},
		{149, 1, 49},
		{150, 2, 0},
		{349, 2, 199},
		{350, 3, 0},
		{351, 3, 1}, // clamped to end
		{9999, 3, 1},
	}
	for _, c := range cases {
		tr.seekAudioByte(c.b)
		if tr.posc != c.posc || tr.posb != c.posb {
			t.Errorf("seekAudioByte(%d) = (%d,%d), want (%d,%d)",
				c.b, tr.posc, tr.posb, c.posc, c.posb)
		}
	}
}

func TestLegacyIndexGrowth(t *testing.T) {
	f := newFile(modeWrite)
	for i := 0; i < indexGrowth+5; i++ {
		f.addIndexEntry([]byte("00db"), AVIIF_KEYFRAME, int64(i)*16, 123)
	}
	if len(f.idx) != indexGrowth+5 {
		t.Fatalf("idx entries = %d", len(f.idx))
	}
	if f.maxLen != 123 {
		t.Errorf("maxLen = %d, want 123", f.maxLen)
	}

	b := f.marshalIdx1()
	if len(b) != (indexGrowth+5)*16 {
		t.Fatalf("idx1 payload = %d bytes", len(b))
	}
	if string(b[:4]) != "00db" || getU32(b[4:]) != AVIIF_KEYFRAME || getU32(b[12:]) != 123 {
		t.Errorf("first entry = % x", b[:16])
	}
}
