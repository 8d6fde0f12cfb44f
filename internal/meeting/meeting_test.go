package meeting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meeting-rag/internal/chunker"
	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

type fixture struct {
	svc       *Service
	rel       *store.SQLStore
	vectors   *vectorstore.SQLiteStore
	uploadDir string
}

// Each formatted segment is longer than the chunk size, so every segment
// becomes its own chunk.
var oneChunkPerSegment = chunker.Options{MaxChunkSize: 50}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	rel, err := store.NewSQLiteStore(filepath.Join(dir, "meetings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rel.Close() })

	vs, err := vectorstore.NewSQLiteStore(filepath.Join(dir, "vectors.db"), embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	f := &fixture{rel: rel, vectors: vs, uploadDir: filepath.Join(dir, "uploads")}
	require.NoError(t, os.MkdirAll(f.uploadDir, 0o755))
	f.svc = NewService(rel, vs, oneChunkPerSegment, f.uploadDir, zerolog.Nop(), metrics.New())
	return f
}

func fiveSegments() []model.Segment {
	segs := make([]model.Segment, 5)
	for i := range segs {
		segs[i] = model.Segment{
			Index:        i,
			SpeakerLabel: []string{"A", "B"}[i%2],
			StartTime:    float64(i * 5),
			Text:         fmt.Sprintf("segment %d about the quarterly budget plan", i),
			Confidence:   0.9,
		}
	}
	return segs
}

const twoTopicSummary = "### Budget\nThe budget was approved.\n\n### Hiring\nTwo roles are open."

// ingest stores a meeting with 5 chunks and 2 subtopics.
func (f *fixture) ingest(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	res := f.svc.IngestTranscript(ctx, IngestParams{
		MeetingID:   id,
		Title:       "Planning",
		MeetingDate: "2024-05-01 10:00:00",
		AudioFile:   id + ".wav",
		Segments:    fiveSegments(),
	})
	require.True(t, res.Success, res.Error)
	require.Equal(t, 5, res.Chunks)

	sum := f.svc.IngestSummary(ctx, id, twoTopicSummary)
	require.True(t, sum.Success, sum.Error)
	require.Equal(t, 2, sum.Subtopics)
}

func TestIngestTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.svc.IngestTranscript(ctx, IngestParams{Title: "Planning", AudioFile: "a.wav", Segments: fiveSegments()})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.MeetingID, 36)
	assert.Equal(t, 5, res.Segments)
	assert.Equal(t, 5, res.Chunks)
	assert.Empty(t, res.Fallback)

	docs, err := f.vectors.Get(ctx, model.CollectionChunks, byMeeting(res.MeetingID))
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for _, d := range docs {
		md := model.ChunkMetadataFrom(d.Metadata)
		assert.Equal(t, model.ChunkID(res.MeetingID, md.ChunkIndex), d.ID)
		assert.Equal(t, d.ID, md.DialogueID)
		assert.Equal(t, "Planning", md.Title)
		assert.Equal(t, "a.wav", md.AudioFile)
		require.NotNil(t, md.SpeakerCount)
		assert.Equal(t, 1, *md.SpeakerCount)
		assert.NotContains(t, d.Content, "[Speaker")
	}

	m, err := f.rel.Meeting(ctx, res.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, 5, m.SegmentCount)
}

func TestIngestTranscript_Fallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	svc := NewService(f.rel, f.vectors, chunker.Options{}, f.uploadDir, zerolog.Nop(), nil)
	segs := fiveSegments()
	segs[3].StartTime = 1 // out of order

	res := svc.IngestTranscript(ctx, IngestParams{MeetingID: "m1", Title: "T", Segments: segs})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, chunker.FallbackUnordered, res.Fallback)
	assert.NotEmpty(t, res.FallbackError)
	require.Positive(t, res.Chunks)

	docs, err := f.vectors.Get(ctx, model.CollectionChunks, byMeeting("m1"))
	require.NoError(t, err)
	for _, d := range docs {
		assert.NotContains(t, d.Metadata, model.FieldStartTime)
		assert.NotContains(t, d.Metadata, model.FieldSpeakerCount)
	}
}

func TestIngestTranscript_ExistingID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "m1")

	res := f.svc.IngestTranscript(ctx, IngestParams{
		MeetingID: "m1",
		Title:     "Other",
		Segments:  fiveSegments()[:1],
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "already exists")

	docs, err := f.vectors.Get(ctx, model.CollectionChunks, byMeeting("m1"))
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for _, d := range docs {
		assert.Equal(t, "Planning", model.ChunkMetadataFrom(d.Metadata).Title)
	}
}

func TestIngestTranscript_NoSegments(t *testing.T) {
	f := newFixture(t)
	res := f.svc.IngestTranscript(context.Background(), IngestParams{Title: "T"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no segments")
}

func TestIngestSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "m1")

	docs, err := f.vectors.Get(ctx, model.CollectionSubtopic, byMeeting("m1"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	topics := map[string]string{}
	for _, d := range docs {
		md := model.SubtopicMetadataFrom(d.Metadata)
		assert.Equal(t, "Planning", md.MeetingTitle)
		assert.Equal(t, "m1.wav", md.AudioFile)
		topics[md.MainTopic] = d.ID
	}
	assert.Equal(t, map[string]string{"Budget": "m1_summary_0", "Hiring": "m1_summary_1"}, topics)

	mins, err := f.rel.Minutes(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, twoTopicSummary, mins.Content)

	// A shorter summary replaces the previous subtopics.
	res := f.svc.IngestSummary(ctx, "m1", "### Only\nOne topic now.")
	require.True(t, res.Success, res.Error)
	n, err := f.vectors.Count(ctx, model.CollectionSubtopic, byMeeting("m1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestSummary_UnknownMeeting(t *testing.T) {
	f := newFixture(t)
	res := f.svc.IngestSummary(context.Background(), "missing", twoTopicSummary)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestTranscriptAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "m1")

	text, err := f.svc.Transcript(ctx, "m1")
	require.NoError(t, err)
	parts := strings.Split(text, "\n\n")
	require.Len(t, parts, 5)
	for i, p := range parts {
		assert.Equal(t, fmt.Sprintf("segment %d about the quarterly budget plan", i), p)
	}

	sum, err := f.svc.Summary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "### Budget\nThe budget was approved.\n\n### Hiring\nTwo roles are open.", sum)

	empty, err := f.svc.Transcript(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// scrambledVectors returns Get results in reverse store order.
type scrambledVectors struct {
	vectorstore.Store
}

func (s scrambledVectors) Get(ctx context.Context, coll string, f vectorstore.Filter) ([]model.Document, error) {
	docs, err := s.Store.Get(ctx, coll, f)
	if err != nil || len(docs) < 2 {
		return docs, err
	}
	out := make([]model.Document, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d
	}
	return out, nil
}

func TestTranscriptAndSummary_StoreOrderIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "m1")

	svc := NewService(f.rel, scrambledVectors{f.vectors}, oneChunkPerSegment, f.uploadDir, zerolog.Nop(), nil)

	docs, err := svc.vectors.Get(ctx, model.CollectionChunks, byMeeting("m1"))
	require.NoError(t, err)
	first, _ := docs[0].Metadata.Int(model.FieldChunkIndex)
	require.Equal(t, 4, first)
	subs, err := svc.vectors.Get(ctx, model.CollectionSubtopic, byMeeting("m1"))
	require.NoError(t, err)
	firstSub, _ := subs[0].Metadata.Int(model.FieldSummaryIndex)
	require.Equal(t, 1, firstSub)

	text, err := svc.Transcript(ctx, "m1")
	require.NoError(t, err)
	want := make([]string, 5)
	for i := range want {
		want[i] = fmt.Sprintf("segment %d about the quarterly budget plan", i)
	}
	assert.Equal(t, strings.Join(want, "\n\n"), text)

	sum, err := svc.Summary(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "### Budget\nThe budget was approved.\n\n### Hiring\nTwo roles are open.", sum)
}

func TestSaveMindmap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "m1")

	require.NoError(t, f.svc.SaveMindmap(ctx, "m1", "# Planning\n## Budget"))
	mm, err := f.rel.Mindmap(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "# Planning\n## Budget", mm.Content)

	assert.Error(t, f.svc.SaveMindmap(ctx, "m1", "  "))
	assert.ErrorIs(t, f.svc.SaveMindmap(ctx, "missing", "# x"), store.ErrNotFound)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	src.ingest(t, "m1")
	b, err := src.rel.ExportMeeting(ctx, "m1")
	require.NoError(t, err)

	dst := newFixture(t)
	res := dst.svc.Import(ctx, b)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "m1", res.MeetingID)
	assert.Equal(t, 5, res.Segments)
	assert.Equal(t, 5, res.Chunks)

	n, err := dst.vectors.Count(ctx, model.CollectionChunks, byMeeting("m1"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = dst.vectors.Count(ctx, model.CollectionSubtopic, byMeeting("m1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again := dst.svc.Import(ctx, b)
	assert.False(t, again.Success)
	assert.NotEmpty(t, again.Error)
}
