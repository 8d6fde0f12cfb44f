// Package chunker groups ordered transcript segments into chunks for embedding.
package chunker

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/meeting-rag/internal/model"
)

const (
	DefaultMaxChunkSize     = 1000
	DefaultTimeGapThreshold = 60.0
	DefaultFallbackOverlap  = 200

	// A time gap alone only closes a chunk longer than this.
	minGapSplitSize = 200
	// A speaker change alone only closes a chunk longer than this.
	minSpeakerSplitSize = 500
)

// Options configures chunking behavior. Sizes are counted in characters.
type Options struct {
	MaxChunkSize     int
	TimeGapThreshold float64 // seconds
	FallbackOverlap  int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:     DefaultMaxChunkSize,
		TimeGapThreshold: DefaultTimeGapThreshold,
		FallbackOverlap:  DefaultFallbackOverlap,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = d.MaxChunkSize
	}
	if o.TimeGapThreshold <= 0 {
		o.TimeGapThreshold = d.TimeGapThreshold
	}
	if o.FallbackOverlap <= 0 {
		o.FallbackOverlap = d.FallbackOverlap
	}
	return o
}

// FallbackReason says why smart chunking was replaced by fixed-size splitting.
type FallbackReason string

const (
	FallbackNone           FallbackReason = ""
	FallbackInvalidSegment FallbackReason = "invalid_segment"
	FallbackUnordered      FallbackReason = "unordered_segments"
)

// Result is the outcome of chunking. Fallback is FallbackNone when the smart
// chunker produced the chunks; otherwise Err describes the trigger.
type Result struct {
	Chunks   []model.Chunk
	Fallback FallbackReason
	Err      error
}

// Fell reports whether the fallback splitter produced the chunks.
func (r Result) Fell() bool { return r.Fallback != FallbackNone }

// Chunk groups segments into chunks bounded by size, time gap and speaker change.
// Segments that cannot be chunked by time fall back to recursive character
// splitting of the formatted transcript.
func Chunk(segments []model.Segment, opts Options) Result {
	opts = opts.withDefaults()
	if len(segments) == 0 {
		return Result{}
	}

	if reason, err := validate(segments); err != nil {
		return Result{
			Chunks:   fallbackChunks(segments, opts),
			Fallback: reason,
			Err:      err,
		}
	}

	return Result{Chunks: smartChunks(segments, opts)}
}

func validate(segments []model.Segment) (FallbackReason, error) {
	prev := 0.0
	for i, seg := range segments {
		t := seg.StartTime
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return FallbackInvalidSegment, fmt.Errorf("segment %d: invalid start time %v", i, t)
		}
		if math.IsNaN(seg.Confidence) || seg.Confidence < 0 || seg.Confidence > 1 {
			return FallbackInvalidSegment, fmt.Errorf("segment %d: confidence %v outside [0,1]", i, seg.Confidence)
		}
		if i > 0 && t < prev {
			return FallbackUnordered, fmt.Errorf("segment %d: start time %v before previous %v", i, t, prev)
		}
		prev = t
	}
	return FallbackNone, nil
}

// smartChunks decides boundaries before appending each segment. The gap is
// measured between segment start times; the first gap is measured from zero.
func smartChunks(segments []model.Segment, opts Options) []model.Chunk {
	var chunks []model.Chunk

	var text strings.Builder
	size := 0
	var first, last float64
	speakers := map[string]bool{}
	prevSpeaker := ""
	lastTime := 0.0

	flush := func() {
		cleaned := CleanText(text.String())
		if cleaned != "" {
			start, end, count := first, last, len(speakers)
			chunks = append(chunks, model.Chunk{
				Text:         cleaned,
				StartTime:    &start,
				EndTime:      &end,
				SpeakerCount: &count,
			})
		}
		text.Reset()
		size = 0
		speakers = map[string]bool{}
	}

	for i, seg := range segments {
		formatted := FormatSegment(seg)
		n := utf8.RuneCountInString(formatted)
		gap := seg.StartTime - lastTime

		split := false
		switch {
		case size+n > opts.MaxChunkSize:
			split = true
		case gap > opts.TimeGapThreshold && size > minGapSplitSize:
			split = true
		case i > 0 && seg.SpeakerLabel != prevSpeaker && size > minSpeakerSplitSize:
			split = true
		}
		if split && size > 0 {
			flush()
		}

		if size == 0 {
			first = seg.StartTime
		}
		text.WriteString(formatted)
		text.WriteByte('\n')
		size += n + 1
		last = seg.StartTime
		speakers[seg.SpeakerLabel] = true
		prevSpeaker = seg.SpeakerLabel
		lastTime = seg.StartTime
	}
	if size > 0 {
		flush()
	}

	return chunks
}

// fallbackChunks splits the formatted transcript at speaker markers, then
// paragraphs, then whitespace. Fallback chunks carry no timing metadata.
func fallbackChunks(segments []model.Segment, opts Options) []model.Chunk {
	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = FormatSegment(seg)
	}

	splitter := NewRecursiveSplitter(opts.MaxChunkSize, opts.FallbackOverlap)
	var chunks []model.Chunk
	for _, piece := range splitter.Split(strings.Join(lines, "\n")) {
		if cleaned := CleanText(piece); cleaned != "" {
			chunks = append(chunks, model.Chunk{Text: cleaned})
		}
	}
	return chunks
}
