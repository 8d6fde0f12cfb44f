package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collection names.
const (
	CollectionChunks   = "chunks"
	CollectionSubtopic = "subtopic"
)

// Collections lists every vector collection in a stable order.
var Collections = []string{CollectionChunks, CollectionSubtopic}

// ValidCollection reports whether name is a known collection.
func ValidCollection(name string) bool {
	return name == CollectionChunks || name == CollectionSubtopic
}

// Metadata keys shared by the vector collections.
const (
	FieldMeetingID    = "meeting_id"
	FieldDialogueID   = "dialogue_id"
	FieldChunkIndex   = "chunk_index"
	FieldTitle        = "title"
	FieldMeetingTitle = "meeting_title"
	FieldMeetingDate  = "meeting_date"
	FieldAudioFile    = "audio_file"
	FieldStartTime    = "start_time"
	FieldEndTime      = "end_time"
	FieldSpeakerCount = "speaker_count"
	FieldMainTopic    = "main_topic"
	FieldSummaryIndex = "summary_index"
)

// TitleField returns the metadata key holding the meeting title in a collection.
// The chunks collection uses "title", the subtopic collection "meeting_title".
func TitleField(collection string) string {
	if collection == CollectionSubtopic {
		return FieldMeetingTitle
	}
	return FieldTitle
}

// IndexField returns the metadata key holding the ordering index in a collection.
func IndexField(collection string) string {
	if collection == CollectionSubtopic {
		return FieldSummaryIndex
	}
	return FieldChunkIndex
}

// DateLayout is the string form meeting dates are stored in.
const DateLayout = "2006-01-02 15:04:05"

// FormatDate renders t the way meeting_date is stored.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ChunkID returns the document id of chunk i of a meeting.
func ChunkID(meetingID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", meetingID, i)
}

// SummaryID returns the document id of subtopic i of a meeting.
func SummaryID(meetingID string, i int) string {
	return fmt.Sprintf("%s_summary_%d", meetingID, i)
}

// Metadata is the scalar key/value map stored next to each vector document.
type Metadata map[string]any

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value at key as a string, or "" when absent.
func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the value at key as a float64.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int returns the value at key as an int.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// Document is the unit stored in a vector collection.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// ChunkMetadata is the typed metadata of a document in the chunks collection.
type ChunkMetadata struct {
	MeetingID    string
	DialogueID   string
	ChunkIndex   int
	Title        string
	MeetingDate  string
	AudioFile    string
	StartTime    *float64
	EndTime      *float64
	SpeakerCount *int
}

// Map converts to the generic form. Timing keys are omitted when unset.
func (c ChunkMetadata) Map() Metadata {
	m := Metadata{
		FieldMeetingID:   c.MeetingID,
		FieldDialogueID:  c.DialogueID,
		FieldChunkIndex:  c.ChunkIndex,
		FieldTitle:       c.Title,
		FieldMeetingDate: c.MeetingDate,
		FieldAudioFile:   c.AudioFile,
	}
	if c.StartTime != nil {
		m[FieldStartTime] = *c.StartTime
	}
	if c.EndTime != nil {
		m[FieldEndTime] = *c.EndTime
	}
	if c.SpeakerCount != nil {
		m[FieldSpeakerCount] = *c.SpeakerCount
	}
	return m
}

// ChunkMetadataFrom reads typed chunk metadata out of a generic map.
func ChunkMetadataFrom(m Metadata) ChunkMetadata {
	c := ChunkMetadata{
		MeetingID:   m.String(FieldMeetingID),
		DialogueID:  m.String(FieldDialogueID),
		Title:       m.String(FieldTitle),
		MeetingDate: m.String(FieldMeetingDate),
		AudioFile:   m.String(FieldAudioFile),
	}
	c.ChunkIndex, _ = m.Int(FieldChunkIndex)
	if v, ok := m.Float(FieldStartTime); ok {
		c.StartTime = &v
	}
	if v, ok := m.Float(FieldEndTime); ok {
		c.EndTime = &v
	}
	if v, ok := m.Int(FieldSpeakerCount); ok {
		c.SpeakerCount = &v
	}
	return c
}

// SubtopicMetadata is the typed metadata of a document in the subtopic collection.
type SubtopicMetadata struct {
	MeetingID    string
	MeetingTitle string
	MeetingDate  string
	AudioFile    string
	MainTopic    string
	SummaryIndex int
}

// Map converts to the generic form.
func (s SubtopicMetadata) Map() Metadata {
	return Metadata{
		FieldMeetingID:    s.MeetingID,
		FieldMeetingTitle: s.MeetingTitle,
		FieldMeetingDate:  s.MeetingDate,
		FieldAudioFile:    s.AudioFile,
		FieldMainTopic:    s.MainTopic,
		FieldSummaryIndex: s.SummaryIndex,
	}
}

// SubtopicMetadataFrom reads typed subtopic metadata out of a generic map.
func SubtopicMetadataFrom(m Metadata) SubtopicMetadata {
	s := SubtopicMetadata{
		MeetingID:    m.String(FieldMeetingID),
		MeetingTitle: m.String(FieldMeetingTitle),
		MeetingDate:  m.String(FieldMeetingDate),
		AudioFile:    m.String(FieldAudioFile),
		MainTopic:    m.String(FieldMainTopic),
	}
	s.SummaryIndex, _ = m.Int(FieldSummaryIndex)
	return s
}
