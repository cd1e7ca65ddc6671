package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charlescerisier/avilib/avi"
)

// OutputFormat represents different output formats
type OutputFormat string

const (
	OutputJSON OutputFormat = "json"
	OutputText OutputFormat = "text"
)

// Config holds CLI configuration
type Config struct {
	InputFile    string
	IndexFile    string
	OutputFormat OutputFormat
	ShowFrames   bool
	Verbose      bool
}

// TrackInfo represents audio track information for JSON output
type TrackInfo struct {
	Track    int    `json:"track"`
	Format   int    `json:"format"`
	Channels int    `json:"channels"`
	Rate     int64  `json:"rate"`
	Bits     int    `json:"bits"`
	Bytes    int64  `json:"bytes"`
	Chunks   int64  `json:"chunks"`
	MP3Rate  int64  `json:"mp3_rate,omitempty"`
	Kind     string `json:"kind"`
}

// FrameInfo represents one video frame for JSON output
type FrameInfo struct {
	Frame    int64 `json:"frame"`
	Size     int64 `json:"size"`
	Position int64 `json:"position"`
	Keyframe bool  `json:"keyframe"`
}

// FileOutput represents the complete file information for JSON output
type FileOutput struct {
	File       string      `json:"file"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	FrameRate  float64     `json:"frame_rate"`
	Compressor string      `json:"compressor"`
	Frames     int64       `json:"frames"`
	MaxChunk   int64       `json:"max_chunk"`
	Tracks     []TrackInfo `json:"audio_tracks"`
	VideoData  []FrameInfo `json:"video_frames,omitempty"`
}

func main() {
	config := parseFlags()

	if config.InputFile == "" {
		fmt.Fprintf(os.Stderr, "Error: input file is required\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := analyzeFile(config); err != nil {
		log.Fatalf("Error analyzing file: %v", err)
	}
}

func parseFlags() Config {
	var config Config

	flag.StringVar(&config.InputFile, "i", "", "Input AVI file")
	flag.StringVar(&config.IndexFile, "idx", "", "Sidecar index file (skips the in-file index)")
	flag.BoolVar(&config.ShowFrames, "show-frames", false, "Show per-frame information")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose output")

	var format string
	flag.StringVar(&format, "f", "json", "Output format (json, text)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -i input.avi\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -i video.avi                 # Dump stream info as JSON\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i video.avi -f text         # Text output instead of JSON\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i video.avi -show-frames    # Include per-frame info\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i video.avi -idx video.idx  # Index from a sidecar file\n", os.Args[0])
	}

	flag.Parse()

	switch strings.ToLower(format) {
	case "json":
		config.OutputFormat = OutputJSON
	case "text":
		config.OutputFormat = OutputText
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown output format %q\n", format)
		os.Exit(1)
	}

	return config
}

func analyzeFile(config Config) error {
	var f *avi.File
	var err error
	if config.IndexFile != "" {
		f, err = avi.OpenFileWithIndex(config.InputFile, config.IndexFile)
	} else {
		f, err = avi.OpenFile(config.InputFile, true)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if config.Verbose {
		f.SetLogger(log.New(os.Stderr, "avi: ", 0))
	}

	out := FileOutput{
		File:       config.InputFile,
		Width:      f.Width(),
		Height:     f.Height(),
		FrameRate:  f.FrameRate(),
		Compressor: f.Compressor(),
		Frames:     f.Frames(),
		MaxChunk:   f.MaxChunkSize(),
	}

	for i := 0; i < f.AudioTracks(); i++ {
		if err := f.SetAudioTrack(i); err != nil {
			return err
		}
		kind := "cbr"
		if f.AudioFormat() == avi.WaveFormatMP3 {
			kind = "mp3"
		}
		out.Tracks = append(out.Tracks, TrackInfo{
			Track:    i,
			Format:   f.AudioFormat(),
			Channels: f.AudioChannels(),
			Rate:     f.AudioRate(),
			Bits:     f.AudioBits(),
			Bytes:    f.AudioBytes(),
			Chunks:   f.AudioChunks(),
			MP3Rate:  f.AudioMP3Rate(),
			Kind:     kind,
		})
	}

	if config.ShowFrames {
		for n := int64(0); n < f.Frames(); n++ {
			size, err := f.FrameSize(n)
			if err != nil {
				return err
			}
			pos, err := f.FramePosition(n)
			if err != nil {
				return err
			}
			if err := f.SetVideoPosition(n); err != nil {
				return err
			}
			_, key, err := f.ReadFrame(nil)
			if err != nil {
				return err
			}
			out.VideoData = append(out.VideoData, FrameInfo{
				Frame:    n,
				Size:     size,
				Position: pos,
				Keyframe: key,
			})
		}
	}

	switch config.OutputFormat {
	case OutputJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		printText(out)
	}
	return nil
}

func printText(out FileOutput) {
	fmt.Printf("File:       %s\n", out.File)
	fmt.Printf("Video:      %dx%d @ %.3f fps [%s]\n", out.Width, out.Height, out.FrameRate, out.Compressor)
	fmt.Printf("Frames:     %d (max chunk %d bytes)\n", out.Frames, out.MaxChunk)
	for _, t := range out.Tracks {
		fmt.Printf("Audio #%d:   %d ch, %d Hz, %d bit, format 0x%04x, %d chunks, %d bytes\n",
			t.Track, t.Channels, t.Rate, t.Bits, t.Format, t.Chunks, t.Bytes)
	}
	for _, fr := range out.VideoData {
		flag := " "
		if fr.Keyframe {
			flag = "K"
		}
		fmt.Printf("  frame %6d %s size %8d pos %10d\n", fr.Frame, flag, fr.Size, fr.Position)
	}
}
