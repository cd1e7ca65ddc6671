package avi

import (
	"io"
	"strings"
)

// validInfoTag reports whether tag is one of the RIFF INFO tags we copy
// into the output file. ISFT is excluded: the library writes that itself.
func validInfoTag(tag string) bool {
	switch tag {
	case "IARL", "IART", "ICMS", "ICMT", "ICOP", "ICRD", "ICRP",
		"IDIM", "IDPI", "IENG", "IGNR", "IKEY", "ILGT", "IMED",
		"INAM", "IPLT", "IPRD", "ISBJ", "ISHP", "ISRC", "ISRF", "ITCH":
		return true
	}
	return false
}

// parseComments reads tag/value lines from r and renders them as INFO
// sub-chunks into buf, returning the number of bytes produced. Lines
// starting with '#' and blank lines are ignored, as are unknown tags.
// Parsing stops silently at the first entry that does not fit in buf;
// that entry and all later lines are dropped.
func parseComments(r io.Reader, buf []byte) int {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0
	}

	length := 0
	space := len(buf) - 1

	for _, line := range strings.Split(string(data), "\n") {
		if length >= space {
			break
		}
		line = strings.TrimSuffix(line, "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		if len(line) < 4 || !validInfoTag(line[:4]) {
			continue
		}
		val := strings.TrimLeft(line[4:], " \t")
		if val == "" {
			// a tag without an argument is fine but ignored
			continue
		}

		k := len(val)
		if k >= space {
			return length
		}
		stored := int(padEven(int64(k + 1))) // value, NUL, pad
		if length+8+stored > len(buf) {
			return length
		}

		copy(buf[length:], line[:4])
		putU32(buf[length+4:], uint32(k+1))
		copy(buf[length+8:], val)
		length += 8 + stored
	}
	return length
}
