package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/charlescerisier/avilib/avi"
)

// Config holds CLI configuration
type Config struct {
	InputFile  string
	OutputFile string
	WriteIndex bool
	AudioTrack int
	AudioOut   string
	Verbose    bool
}

// Version can be set at build time
var version = "dev"

func main() {
	config := parseFlags()

	if config.InputFile == "" {
		fmt.Fprintf(os.Stderr, "Error: input file is required\n")
		flag.Usage()
		os.Exit(1)
	}

	if _, err := os.Stat(config.InputFile); os.IsNotExist(err) {
		log.Fatalf("Error: input file '%s' does not exist", config.InputFile)
	}

	if config.OutputFile == "" {
		dir := filepath.Dir(config.InputFile)
		base := filepath.Base(config.InputFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		config.OutputFile = filepath.Join(dir, name+"_copy"+ext)
	}

	if err := dumpFile(config); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func parseFlags() Config {
	var config Config

	flag.StringVar(&config.InputFile, "i", "", "Input AVI file (required)")
	flag.StringVar(&config.OutputFile, "o", "", "Output AVI file (default: input_copy.avi)")
	flag.BoolVar(&config.WriteIndex, "idx", false, "Also write a sidecar index next to the output")
	flag.IntVar(&config.AudioTrack, "a", 0, "Audio track to copy")
	flag.StringVar(&config.AudioOut, "audio-out", "", "Extract raw audio of the selected track to this file")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose output")

	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "avidump %s - AVI copier and extractor\n", version)
		fmt.Fprintf(os.Stderr, "\nUsage: %s [options] -i input.avi\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -i video.avi                    # Copy to video_copy.avi\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i video.avi -idx               # Copy and emit video_copy.avi.idx\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -i video.avi -audio-out a.raw   # Extract raw audio\n", os.Args[0])
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("avidump %s\n", version)
		os.Exit(0)
	}

	return config
}

func dumpFile(config Config) error {
	startTime := time.Now()

	in, err := avi.OpenFile(config.InputFile, true)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	if config.Verbose {
		fmt.Printf("Input: %dx%d @ %.3f fps [%s], %d frames, %d audio tracks\n",
			in.Width(), in.Height(), in.FrameRate(), in.Compressor(),
			in.Frames(), in.AudioTracks())
	}

	if config.AudioOut != "" {
		if err := extractAudio(in, config); err != nil {
			return err
		}
	}

	out := avi.NewWriter()
	if err := out.CreateFile(config.OutputFile); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := out.SetVideo(in.Width(), in.Height(), in.FrameRate(), in.Compressor()); err != nil {
		return err
	}
	for i := 0; i < in.AudioTracks(); i++ {
		if err := in.SetAudioTrack(i); err != nil {
			return err
		}
		if err := out.AddAudioTrack(in.AudioChannels(), in.AudioRate(),
			in.AudioBits(), in.AudioFormat(), in.AudioMP3Rate()); err != nil {
			return err
		}
	}

	var idx *os.File
	if config.WriteIndex {
		idx, err = os.Create(config.OutputFile + ".idx")
		if err != nil {
			return err
		}
		defer idx.Close()
		fmt.Fprintf(idx, "AVIIDX1\n# written by avidump %s\n", version)
	}

	// Copy frames, then each audio track in one pass.
	var buf []byte
	frames := int64(0)
	for frames < in.Frames() {
		size, err := in.FrameSize(frames)
		if err != nil {
			return err
		}
		if int64(len(buf)) < size {
			buf = make([]byte, size)
		}
		n, key, err := in.ReadFrame(buf)
		if err != nil {
			break
		}
		if err := out.WriteFrame(buf[:n], key); err != nil {
			return err
		}
		if idx != nil {
			pos, _ := in.FramePosition(frames)
			k := 0
			if key {
				k = 1
			}
			fmt.Fprintf(idx, "00db 1 0 0 %d %d %d 0.0\n", pos-8, n, k)
		}
		frames++
	}

	for i := 0; i < in.AudioTracks(); i++ {
		if err := in.SetAudioTrack(i); err != nil {
			return err
		}
		if err := out.SetAudioTrack(i); err != nil {
			return err
		}
		if err := in.SetAudioChunkPosition(0); err != nil {
			// a track with no chunks is fine
			continue
		}
		for c := int64(0); c < in.AudioChunks(); c++ {
			size, err := in.AudioChunkSize(c)
			if err != nil || size < 0 {
				break
			}
			chunk := buf
			if int64(len(chunk)) < size {
				chunk = make([]byte, size)
			}
			n, err := in.ReadAudioChunk(chunk[:size])
			if err != nil {
				return err
			}
			if err := out.WriteAudio(chunk[:n]); err != nil {
				return err
			}
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize output: %w", err)
	}

	if config.Verbose {
		fmt.Printf("Copied %d frames in %v\n", frames, time.Since(startTime))
	}
	return nil
}

func extractAudio(in *avi.File, config Config) error {
	if err := in.SetAudioTrack(config.AudioTrack); err != nil {
		return fmt.Errorf("no such audio track: %d", config.AudioTrack)
	}
	out, err := os.Create(config.AudioOut)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := in.SetAudioPosition(0); err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := in.ReadAudio(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
		total += n
	}
	if config.Verbose {
		fmt.Printf("Extracted %d audio bytes to %s\n", total, config.AudioOut)
	}
	return nil
}
