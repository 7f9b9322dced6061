// Command segments merges watched segments offline, from a JSON file or a
// watchtrail server, and prints the result as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/sendrec/watchtrail/internal/history"
	"github.com/sendrec/watchtrail/internal/segment"
)

type options struct {
	mode     string
	file     string
	url      string
	video    string
	token    string
	width    float64
	duration float64
}

type input struct {
	DurationSeconds float64          `json:"durationSeconds"`
	Segments        []segment.Record `json:"segments"`
}

type mergedOutput struct {
	Mode     string           `json:"mode"`
	Segments []segment.Record `json:"segments"`
}

type visibleSegment struct {
	segment.Record
	segment.Position
}

type visibleOutput struct {
	Mode            string           `json:"mode"`
	DurationSeconds float64          `json:"durationSeconds"`
	WatchedSeconds  float64          `json:"watchedSeconds"`
	Completed       bool             `json:"completed"`
	Segments        []visibleSegment `json:"segments"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("segments", flag.ContinueOnError)
	fs.StringVar(&opts.mode, "mode", "counted", "merge mode: counted, adjoining or visible")
	fs.StringVar(&opts.file, "file", "", "read segments from a JSON file (- for stdin)")
	fs.StringVar(&opts.url, "url", "", "watchtrail server base URL")
	fs.StringVar(&opts.video, "video", "", "video ID to fetch from the server")
	fs.StringVar(&opts.token, "token", os.Getenv("WATCHTRAIL_TOKEN"), "access token for the server")
	fs.Float64Var(&opts.width, "width", 1000, "progress bar width in pixels for visible mode")
	fs.Float64Var(&opts.duration, "duration", 0, "video duration in seconds, overrides the source")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch opts.mode {
	case "counted", "adjoining", "visible":
	default:
		return opts, fmt.Errorf("unknown mode %q", opts.mode)
	}
	if (opts.file == "") == (opts.url == "") {
		return opts, errors.New("exactly one of -file or -url is required")
	}
	if opts.url != "" && opts.video == "" {
		return opts, errors.New("-video is required with -url")
	}
	if !(opts.width >= 1 && opts.width <= segment.MaxDisplayWidth) {
		return opts, fmt.Errorf("-width must be between 1 and %d", segment.MaxDisplayWidth)
	}
	if math.IsNaN(opts.duration) || math.IsInf(opts.duration, 0) || opts.duration < 0 {
		return opts, errors.New("-duration must be a finite, non-negative number")
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	segments, duration, err := load(opts)
	if err != nil {
		return err
	}
	if opts.duration > 0 {
		duration = opts.duration
	}

	var out any
	switch opts.mode {
	case "counted":
		out = mergedOutput{Mode: opts.mode, Segments: segment.ToRecords(segment.MergeCounted(segments))}
	case "adjoining":
		out = mergedOutput{Mode: opts.mode, Segments: segment.ToRecords(segment.MergeAdjoining(segments))}
	case "visible":
		if duration <= 0 {
			return errors.New("visible mode needs a duration; pass -duration")
		}
		out = visible(segments, duration, opts.width)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func load(opts options) ([]segment.Segment, float64, error) {
	if opts.url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h, err := history.New(history.Config{BaseURL: opts.url, Token: opts.token}).Fetch(ctx, opts.video)
		if err != nil {
			return nil, 0, err
		}
		return h.Segments, h.DurationSeconds, nil
	}

	var data []byte
	var err error
	if opts.file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(opts.file)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read segments: %w", err)
	}
	return decode(data)
}

// decode accepts either a bare array of records or an object with a
// segments field.
func decode(data []byte) ([]segment.Segment, float64, error) {
	var in input
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &in.Segments); err != nil {
			return nil, 0, fmt.Errorf("decode segments: %w", err)
		}
	} else if err := json.Unmarshal(data, &in); err != nil {
		return nil, 0, fmt.Errorf("decode segments: %w", err)
	}

	segments := segment.FromRecords(in.Segments)
	if err := segment.Validate(segments, true); err != nil {
		return nil, 0, err
	}
	return segments, in.DurationSeconds, nil
}

func visible(segments []segment.Segment, duration, width float64) visibleOutput {
	merged := segment.MergeAdjoining(segments)
	out := visibleOutput{
		Mode:            "visible",
		DurationSeconds: duration,
		WatchedSeconds:  segment.WatchedSeconds(merged),
		Completed:       segment.Completed(segment.BuildIndex(merged), duration),
		Segments:        []visibleSegment{},
	}
	for _, s := range segment.VisibleSegments(merged, duration, width) {
		out.Segments = append(out.Segments, visibleSegment{
			Record:   segment.Record{VideoStartTime: s.Start, VideoEndTime: s.End},
			Position: segment.Place(s, duration),
		})
	}
	return out
}
