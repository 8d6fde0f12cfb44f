// Package meeting ingests meetings into the relational and vector stores and
// keeps their metadata consistent across both.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rcliao/meeting-rag/internal/chunker"
	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/subtopic"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// Service coordinates the relational store, the vector store and the media
// upload directory for one meeting at a time.
type Service struct {
	store     store.Store
	vectors   vectorstore.Store
	chunking  chunker.Options
	uploadDir string
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(st store.Store, vs vectorstore.Store, opts chunker.Options, uploadDir string, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     st,
		vectors:   vs,
		chunking:  opts,
		uploadDir: uploadDir,
		log:       log.With().Str("component", "meeting").Logger(),
		metrics:   m,
	}
}

// IngestParams describes a transcribed meeting.
type IngestParams struct {
	MeetingID   string          `json:"meeting_id,omitempty"`
	Title       string          `json:"title"`
	MeetingDate string          `json:"meeting_date,omitempty"`
	AudioFile   string          `json:"audio_file,omitempty"`
	OwnerID     *int64          `json:"owner_id,omitempty"`
	Segments    []model.Segment `json:"segments"`
}

// IngestResult reports what IngestTranscript stored.
type IngestResult struct {
	Success       bool                   `json:"success"`
	MeetingID     string                 `json:"meeting_id,omitempty"`
	Segments      int                    `json:"segments"`
	Chunks        int                    `json:"chunks"`
	Fallback      chunker.FallbackReason `json:"fallback,omitempty"`
	FallbackError string                 `json:"fallback_error,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// IngestTranscript saves the segments and indexes their chunks.
func (s *Service) IngestTranscript(ctx context.Context, p IngestParams) (res IngestResult) {
	defer s.recoverInto("ingest", p.MeetingID, &res.Success, &res.Error)

	if len(p.Segments) == 0 {
		res.Error = "transcript has no segments"
		return res
	}

	m, err := s.store.SaveTranscript(ctx, store.SaveTranscriptParams{
		MeetingID:   p.MeetingID,
		Title:       p.Title,
		MeetingDate: p.MeetingDate,
		AudioFile:   p.AudioFile,
		OwnerID:     p.OwnerID,
		Segments:    p.Segments,
	})
	if err != nil {
		res.Error = fmt.Sprintf("save transcript: %v", err)
		return res
	}
	res.MeetingID = m.ID
	res.Segments = m.SegmentCount
	log := s.log.With().Str("meeting_id", m.ID).Logger()

	n, err := s.indexChunks(ctx, m, p.Segments, &res)
	if err != nil {
		res.Error = fmt.Sprintf("index chunks: %v", err)
		log.Error().Err(err).Msg("transcript saved but chunks not indexed")
		return res
	}
	res.Chunks = n
	res.Success = true
	log.Info().Int("segments", res.Segments).Int("chunks", res.Chunks).Msg("transcript ingested")
	return res
}

// indexChunks chunks the segments of m and upserts them into the chunks
// collection, recording any chunker fallback on res.
func (s *Service) indexChunks(ctx context.Context, m *model.Meeting, segs []model.Segment, res *IngestResult) (int, error) {
	cr := chunker.Chunk(segs, s.chunking)
	if cr.Fell() {
		res.Fallback = cr.Fallback
		res.FallbackError = cr.Err.Error()
		s.metrics.ChunkerFallback(string(cr.Fallback))
		s.log.Warn().Err(cr.Err).Str("meeting_id", m.ID).Str("reason", string(cr.Fallback)).
			Msg("chunker fell back to fixed-size splitting")
	}

	docs := make([]model.Document, len(cr.Chunks))
	for i, c := range cr.Chunks {
		id := model.ChunkID(m.ID, i)
		docs[i] = model.Document{
			ID:      id,
			Content: c.Text,
			Metadata: model.ChunkMetadata{
				MeetingID:    m.ID,
				DialogueID:   id,
				ChunkIndex:   i,
				Title:        m.Title,
				MeetingDate:  m.MeetingDate,
				AudioFile:    m.AudioFile,
				StartTime:    c.StartTime,
				EndTime:      c.EndTime,
				SpeakerCount: c.SpeakerCount,
			}.Map(),
		}
	}
	if len(docs) > 0 {
		if err := s.vectors.Upsert(ctx, model.CollectionChunks, docs); err != nil {
			return 0, err
		}
	}
	s.metrics.Ingested(model.CollectionChunks, len(docs))
	return len(docs), nil
}

// Import stores an exported meeting bundle and rebuilds its vector documents
// from the transcript and, when present, the minutes.
func (s *Service) Import(ctx context.Context, b *store.Bundle) (res IngestResult) {
	if b != nil {
		res.MeetingID = b.Meeting.ID
	}
	defer s.recoverInto("import", res.MeetingID, &res.Success, &res.Error)

	if err := s.store.ImportMeeting(ctx, b); err != nil {
		res.Error = err.Error()
		return res
	}
	m, err := s.store.Meeting(ctx, b.Meeting.ID)
	if err != nil {
		res.Error = fmt.Sprintf("load imported meeting: %v", err)
		return res
	}
	res.Segments = m.SegmentCount

	if res.Chunks, err = s.indexChunks(ctx, m, b.Segments, &res); err != nil {
		res.Error = fmt.Sprintf("index chunks: %v", err)
		return res
	}
	if b.Minutes != nil {
		if sum := s.IngestSummary(ctx, m.ID, b.Minutes.Content); !sum.Success {
			res.Error = sum.Error
			return res
		}
	}
	res.Success = true
	s.log.Info().Str("meeting_id", m.ID).Int("chunks", res.Chunks).Msg("meeting imported")
	return res
}

// SummaryResult reports what IngestSummary stored.
type SummaryResult struct {
	Success   bool   `json:"success"`
	MeetingID string `json:"meeting_id"`
	Subtopics int    `json:"subtopics"`
	Error     string `json:"error,omitempty"`
}

// IngestSummary splits a topic summary into subtopics, indexes them and
// stores the summary as the meeting's minutes. Subtopics from an earlier
// summary of the same meeting are replaced.
func (s *Service) IngestSummary(ctx context.Context, meetingID, summary string) (res SummaryResult) {
	res.MeetingID = meetingID
	defer s.recoverInto("summary", meetingID, &res.Success, &res.Error)

	m, err := s.store.Meeting(ctx, meetingID)
	if err != nil {
		res.Error = fmt.Sprintf("load meeting: %v", err)
		return res
	}
	log := s.log.With().Str("meeting_id", meetingID).Logger()

	records := subtopic.Split(summary)
	docs := make([]model.Document, len(records))
	for i, r := range records {
		docs[i] = model.Document{
			ID:      model.SummaryID(meetingID, r.SummaryIndex),
			Content: r.FullText,
			Metadata: model.SubtopicMetadata{
				MeetingID:    meetingID,
				MeetingTitle: m.Title,
				MeetingDate:  m.MeetingDate,
				AudioFile:    m.AudioFile,
				MainTopic:    r.MainTopic,
				SummaryIndex: r.SummaryIndex,
			}.Map(),
		}
	}

	if _, err := s.vectors.DeleteMatching(ctx, model.CollectionSubtopic, byMeeting(meetingID)); err != nil {
		res.Error = fmt.Sprintf("clear previous subtopics: %v", err)
		return res
	}
	if len(docs) > 0 {
		if err := s.vectors.Upsert(ctx, model.CollectionSubtopic, docs); err != nil {
			res.Error = fmt.Sprintf("index subtopics: %v", err)
			return res
		}
	} else {
		log.Info().Msg("summary has no topic blocks")
	}
	s.metrics.Ingested(model.CollectionSubtopic, len(docs))

	if err := s.store.SaveMinutes(ctx, model.Minutes{
		MeetingID:   meetingID,
		Title:       m.Title,
		MeetingDate: m.MeetingDate,
		Content:     summary,
		OwnerID:     m.OwnerID,
	}); err != nil {
		res.Error = fmt.Sprintf("save minutes: %v", err)
		return res
	}

	res.Subtopics = len(docs)
	res.Success = true
	log.Info().Int("subtopics", res.Subtopics).Msg("summary ingested")
	return res
}

// SaveMindmap stores the mindmap markup of an existing meeting.
func (s *Service) SaveMindmap(ctx context.Context, meetingID, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("mindmap is empty")
	}
	if _, err := s.store.Meeting(ctx, meetingID); err != nil {
		return err
	}
	return s.store.SaveMindmap(ctx, model.Mindmap{MeetingID: meetingID, Content: content})
}

// Transcript reassembles the indexed transcript of a meeting in chunk order.
func (s *Service) Transcript(ctx context.Context, meetingID string) (string, error) {
	return s.reassemble(ctx, model.CollectionChunks, meetingID)
}

// Summary reassembles the indexed topic summary of a meeting in topic order.
func (s *Service) Summary(ctx context.Context, meetingID string) (string, error) {
	return s.reassemble(ctx, model.CollectionSubtopic, meetingID)
}

// reassemble joins a meeting's documents sorted by the collection's index
// field. The store returns them unordered.
func (s *Service) reassemble(ctx context.Context, collection, meetingID string) (string, error) {
	docs, err := s.vectors.Get(ctx, collection, byMeeting(meetingID))
	if err != nil {
		return "", fmt.Errorf("get %s: %w", collection, err)
	}
	field := model.IndexField(collection)
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := docs[i].Metadata.Int(field)
		b, _ := docs[j].Metadata.Int(field)
		return a < b
	})
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

func byMeeting(meetingID string) vectorstore.Filter {
	return vectorstore.Eq(model.FieldMeetingID, meetingID)
}

// recoverInto turns a panic in a public operation into a failed result.
func (s *Service) recoverInto(op, meetingID string, success *bool, errMsg *string) {
	if r := recover(); r != nil {
		s.log.Error().Str("op", op).Str("meeting_id", meetingID).Interface("panic", r).Msg("operation panicked")
		s.metrics.ConsistencyError(op)
		*success = false
		*errMsg = fmt.Sprintf("%s: internal error: %v", op, r)
	}
}
