package avi

import (
	"encoding/binary"
)

// AVI Format Constants
const (
	// RIFF chunk identifiers
	RIFFSignature = "RIFF"
	AVISignature  = "AVI "
	AVIXSignature = "AVIX"
	LISTSignature = "LIST"

	// AVI List types
	HDRLList = "hdrl"
	STRLList = "strl"
	MOVIList = "movi"
	ODMLList = "odml"
	INFOList = "INFO"

	// Chunk types
	AVIHChunk = "avih"
	STRHChunk = "strh"
	STRFChunk = "strf"
	STRNChunk = "strn"
	INDXChunk = "indx"
	IDX1Chunk = "idx1"
	DMLHChunk = "dmlh"
	JUNKChunk = "JUNK"
	VPRPChunk = "vprp"

	// Stream types
	StreamTypeVideo = "vids"
	StreamTypeAudio = "auds"
	StreamTypeIAVS  = "iavs"
)

// Layout constants inherited from the on-disk format.
const (
	headerBytes    = 2048                // reserved header area at the start of the file
	newRiffThres   = 1900 * 1024 * 1024 // start a new RIFF chunk beyond this size
	nrIxnnChunks   = 32                  // maximum standard indices per stream
	frameRateScale = 1000000             // strh Scale for video streams

	// MaxTracks is the number of audio tracks a single file can carry.
	MaxTracks = 8
)

// maxFileLen bounds a legacy single-RIFF file; we stay well below 2 GiB.
const maxFileLen = int64(1)<<31 - int64(16)<<20 - headerBytes

// riffThreshold is newRiffThres held in a variable so tests can force a
// RIFF rotation without writing gigabytes.
var riffThreshold = int64(newRiffThres)

// AVI main header flags
const (
	avifHasIndex      = 0x00000010
	avifMustUseIndex  = 0x00000020
	avifIsInterleaved = 0x00000100
)

// AVIIF_KEYFRAME marks an independently decodable chunk in idx1 entries.
const AVIIF_KEYFRAME = 0x10

// OpenDML index types
const (
	aviIndexOfIndexes = 0x00
	aviIndexOfChunks  = 0x01
)

// WAVE format tags the writer distinguishes.
const (
	WaveFormatPCM = 0x0001
	WaveFormatMP3 = 0x0055
)

func padEven(n int64) int64 {
	return (n + 1) &^ 1
}

// Little-endian field codecs. Every multi-byte integer in a RIFF file is
// little endian regardless of host order.

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func getU16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func getU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func getU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// chunkLen masks off bit 31, which OpenDML standard indices use as the
// not-a-keyframe marker.
func chunkLen(b []byte) uint32 {
	return getU32(b) & 0x7fffffff
}

// keyFlag maps bit 31 of a standard index size field to the idx1 keyframe
// flag: a clear bit means the chunk is a keyframe.
func keyFlag(b []byte) uint32 {
	if getU32(b)&0x80000000 != 0 {
		return 0
	}
	return AVIIF_KEYFRAME
}

// fourCCEq is the strict 4-byte comparison used for stream data tags the
// writer itself produced.
func fourCCEq(a []byte, s string) bool {
	return len(a) >= 4 && string(a[:4]) == s
}

// fourCCEqFold matches container structure tags case-insensitively, to
// accept files from broken producers.
func fourCCEqFold(a []byte, s string) bool {
	if len(a) < 4 || len(s) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c, d := a[i], s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if d >= 'A' && d <= 'Z' {
			d += 'a' - 'A'
		}
		if c != d {
			return false
		}
	}
	return true
}

// foldPrefixEq compares the first n bytes of two tags case-insensitively.
func foldPrefixEq(a, b []byte, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		c, d := a[i], b[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if d >= 'A' && d <= 'Z' {
			d += 'a' - 'A'
		}
		if c != d {
			return false
		}
	}
	return true
}

// MakeChunkID builds a stream data tag like "00db" or "01wb".
func MakeChunkID(streamIndex int, twoCC string) [4]byte {
	var id [4]byte
	id[0] = byte('0' + (streamIndex/10)%10)
	id[1] = byte('0' + streamIndex%10)
	id[2] = twoCC[0]
	id[3] = twoCC[1]
	return id
}
