package avi

import (
	"io"
	"log"
)

// Version is the library identification written into the ISFT INFO tag.
const Version = "avilib-0.3.0"

// File modes
const (
	modeRead = iota
	modeWrite
)

// WriteSeekTruncater is the descriptor surface the writer needs. *os.File
// satisfies it, as does SeekableBuffer.
type WriteSeekTruncater interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// VideoIndexEntry locates one video frame in the file.
type VideoIndexEntry struct {
	Key int64 // AVIIF_KEYFRAME or 0
	Pos int64 // absolute file offset of the frame payload
	Len int64
}

// AudioIndexEntry locates one audio chunk in the file. Tot is the number
// of audio bytes in all earlier chunks of the same track.
type AudioIndexEntry struct {
	Pos int64
	Len int64
	Tot int64
}

// indexEntry is one 16-byte legacy idx1 record.
type indexEntry struct {
	tag   [4]byte
	flags uint32
	pos   uint32
	size  uint32
}

// Track holds the state of one audio track.
type Track struct {
	fmt     int
	chans   int
	rate    int64
	bits    int
	mp3rate int64 // avg bitrate in kbit/s
	vbr     bool
	padrate int64

	strn int     // stream number within the file
	tag  [4]byte // data chunk tag, e.g. "01wb"

	audioBytes  int64
	audioChunks int64

	codecHOff int64 // file offset of the strh chunk payload for this track
	codecFOff int64 // file offset of the strf chunk payload for this track

	index []AudioIndexEntry
	super *superIndex

	// Reading cursor: chunk index and byte offset within that chunk.
	posc int64
	posb int64

	waveFormat []byte // raw WAVEFORMATEX (+cbSize extension) from the file
}

// File is an open AVI file, either for reading or for writing, never
// both. A File is not safe for concurrent use.
type File struct {
	mode int

	r      io.ReadSeeker
	w      WriteSeekTruncater
	closer io.Closer // set when the descriptor was opened by us

	pos int64 // current write position

	// Legacy idx1 index, grown in 4096-entry blocks.
	idx []indexEntry

	// Video stream state.
	width      int
	height     int
	fps        float64
	compressor [4]byte // writer-side handler FourCC
	compressor2 string // reader-side FourCC from strf
	extradata  []byte

	videoFrames int64 // frames written, or indexed frames when reading
	totalFrames int64 // OpenDML dmlh frame count
	videoPos    int64 // read cursor
	videoStrn   int
	videoTag    [4]byte
	maxLen      int64 // largest chunk observed

	videoIndex []VideoIndexEntry
	videoSuper *superIndex

	vCodecHOff int64
	vCodecFOff int64

	bitmapInfo []byte // raw BITMAPINFOHEADER from the file

	moviStart    int64
	mustUseIndex bool
	isOpenDML    bool

	anum  int // number of audio tracks
	aptr  int // current audio track
	track [MaxTracks]Track

	comments  io.Reader // INFO list source, consumed at Close
	indexFile string    // sidecar index path

	lastPos int64 // position of the most recent frame chunk
	lastLen int64

	lastErr error
	warn    *log.Logger
}

// SetLogger redirects the reader's non-fatal warnings. The default
// discards them.
func (f *File) SetLogger(l *log.Logger) {
	if l != nil {
		f.warn = l
	}
}

func newFile(mode int) *File {
	return &File{
		mode: mode,
		warn: log.New(io.Discard, "avi: ", 0),
	}
}
