// Package model defines the core meeting, transcript and document data types.
package model

// Segment is one speaker utterance produced by the transcription service.
type Segment struct {
	Index        int     `json:"index"`
	SpeakerLabel string  `json:"speaker_label"`
	StartTime    float64 `json:"start_time"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
}

// Chunk is a run of consecutive segments grouped for embedding.
// Timing fields are nil for chunks produced by the fallback splitter.
type Chunk struct {
	Text         string   `json:"text"`
	StartTime    *float64 `json:"start_time,omitempty"`
	EndTime      *float64 `json:"end_time,omitempty"`
	SpeakerCount *int     `json:"speaker_count,omitempty"`
}

// SubtopicRecord is one "### " block of a topic summary.
type SubtopicRecord struct {
	MainTopic    string `json:"main_topic"`
	FullText     string `json:"full_text"`
	SummaryIndex int    `json:"summary_index"`
}
