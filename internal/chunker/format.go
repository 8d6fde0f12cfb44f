package chunker

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

// FormatSegment renders a segment as "[Speaker {label}, mm:ss] {text}".
func FormatSegment(seg model.Segment) string {
	t := seg.StartTime
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		t = 0
	}
	minutes := int(t / 60)
	seconds := int(math.Mod(t, 60))
	return fmt.Sprintf("[Speaker %s, %02d:%02d] %s", seg.SpeakerLabel, minutes, seconds, seg.Text)
}

// Minutes past 99 render with three digits, so the minute field is open-ended.
var markerRegex = regexp.MustCompile(`\[Speaker [^,]+, \d{2,}:\d{2}\]\s*`)

// CleanText strips speaker/time markers and blank lines. Clean text is returned unchanged.
func CleanText(text string) string {
	text = markerRegex.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
