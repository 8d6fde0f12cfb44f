package chat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

// NoContentMessage is the context used when nothing was retrieved.
const NoContentMessage = "No meeting notes were found."

var leadingHeading = regexp.MustCompile(`^###\s+.+?\n`)

// FormatContext renders the dialogue excerpts and topic summaries of a search
// result as the context block given to the answer generator.
func FormatContext(r *SearchResult) string {
	var parts []string

	if len(r.Chunks) > 0 {
		parts = append(parts, "=== Dialogue excerpts ===")
		for i, d := range r.Chunks {
			start, _ := d.Metadata.Float(model.FieldStartTime)
			end, _ := d.Metadata.Float(model.FieldEndTime)
			parts = append(parts, fmt.Sprintf(
				"\n[Document %d]\nMeeting: %s\nDate: %s\nTime: %.0fs - %.0fs\nContent:\n%s\n",
				i+1,
				orNA(d.Metadata.String(model.FieldTitle)),
				orNA(d.Metadata.String(model.FieldMeetingDate)),
				start, end,
				d.Content,
			))
		}
	}

	if len(r.Subtopics) > 0 {
		parts = append(parts, "\n=== Topic summaries ===")
		for i, d := range r.Subtopics {
			// Stored content may still carry an outdated title line.
			content := leadingHeading.ReplaceAllString(d.Content, "")
			parts = append(parts, fmt.Sprintf(
				"\n[Summary %d]\nMeeting: %s\nDate: %s\nTopic: %s\nContent:\n%s\n",
				i+1,
				orNA(d.Metadata.String(model.FieldMeetingTitle)),
				orNA(d.Metadata.String(model.FieldMeetingDate)),
				orNA(d.Metadata.String(model.FieldMainTopic)),
				content,
			))
		}
	}

	if len(parts) == 0 {
		return NoContentMessage
	}
	return strings.Join(parts, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Source identifies a document an answer was drawn from.
type Source struct {
	Type        string   `json:"type"`
	MeetingID   string   `json:"meeting_id"`
	Title       string   `json:"title"`
	MeetingDate string   `json:"meeting_date"`
	StartTime   *float64 `json:"start_time,omitempty"`
	EndTime     *float64 `json:"end_time,omitempty"`
	MainTopic   string   `json:"main_topic,omitempty"`
}

const (
	SourceChunk    = "chunk"
	SourceSubtopic = "subtopic"
)

// Sources lists chunk sources first, then subtopic sources.
func Sources(r *SearchResult) []Source {
	out := make([]Source, 0, r.Total())
	for _, d := range r.Chunks {
		md := model.ChunkMetadataFrom(d.Metadata)
		out = append(out, Source{
			Type:        SourceChunk,
			MeetingID:   md.MeetingID,
			Title:       md.Title,
			MeetingDate: md.MeetingDate,
			StartTime:   md.StartTime,
			EndTime:     md.EndTime,
		})
	}
	for _, d := range r.Subtopics {
		md := model.SubtopicMetadataFrom(d.Metadata)
		out = append(out, Source{
			Type:        SourceSubtopic,
			MeetingID:   md.MeetingID,
			Title:       md.MeetingTitle,
			MeetingDate: md.MeetingDate,
			MainTopic:   md.MainTopic,
		})
	}
	return out
}
