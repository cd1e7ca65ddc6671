package avi

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// Sidecar index files let a handle be indexed without scanning the AVI.
// The format is line based: a header line starting with AVIIDX1, one
// free-form comment line, then one line per chunk:
//
//	tag type channel chtype pos len key ms
//
// type is the 1-based stream ordinal: 1 = video, 2..9 = audio tracks.

type sidecarLine struct {
	typ int
	pos int64
	len int64
	key bool
}

// parseSidecarIndex replaces the handle's indices with the contents of
// the named sidecar file.
func (f *File) parseSidecarIndex(filename string) error {
	fd, err := os.Open(filename)
	if err != nil {
		return f.failOp("open index file", err)
	}
	defer fd.Close()

	sc := bufio.NewScanner(fd)
	if !sc.Scan() || !strings.HasPrefix(strings.ToUpper(sc.Text()), "AVIIDX1") {
		return f.failOp("parse index file", errors.New("not an AVI index file"))
	}
	sc.Scan() // comment line

	f.videoIndex = nil
	for j := 0; j < f.anum; j++ {
		f.track[j].index = nil
		f.track[j].audioChunks = 0
	}

	var lines []sidecarLine
	var vidChunks int64
	audChunks := make([]int64, MaxTracks)

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 7 {
			continue
		}
		typ, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		pos, err1 := strconv.ParseInt(fields[4], 10, 64)
		length, err2 := strconv.ParseInt(fields[5], 10, 64)
		key, err3 := strconv.Atoi(fields[6])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		switch {
		case typ == 1:
			vidChunks++
		case typ >= 2 && typ <= 9:
			audChunks[typ-2]++
		default:
			continue
		}
		lines = append(lines, sidecarLine{typ: typ, pos: pos, len: length, key: key != 0})
	}
	if err := sc.Err(); err != nil {
		return f.failOp("parse index file", err)
	}

	f.videoFrames = vidChunks
	for j := 0; j < f.anum; j++ {
		f.track[j].audioChunks = audChunks[j]
	}
	if f.videoFrames == 0 {
		return f.fail(ErrNoVideo)
	}

	f.videoIndex = make([]VideoIndexEntry, 0, vidChunks)
	for j := 0; j < f.anum; j++ {
		if audChunks[j] > 0 {
			f.track[j].index = make([]AudioIndexEntry, 0, audChunks[j])
		}
	}

	tot := make([]int64, MaxTracks)
	for _, l := range lines {
		if l.typ == 1 {
			var key int64
			if l.key {
				key = AVIIF_KEYFRAME
			}
			f.videoIndex = append(f.videoIndex, VideoIndexEntry{
				Key: key,
				Pos: l.pos + 8,
				Len: l.len,
			})
			continue
		}
		j := l.typ - 2
		if j >= f.anum {
			continue
		}
		f.track[j].index = append(f.track[j].index, AudioIndexEntry{
			Pos: l.pos + 8,
			Len: l.len,
			Tot: tot[j],
		})
		tot[j] += l.len
	}
	for j := 0; j < f.anum; j++ {
		f.track[j].audioBytes = tot[j]
	}

	return nil
}
