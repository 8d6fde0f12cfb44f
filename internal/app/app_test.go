package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meeting-rag/internal/chat"
	"github.com/rcliao/meeting-rag/internal/config"
	"github.com/rcliao/meeting-rag/internal/meeting"
	"github.com/rcliao/meeting-rag/internal/model"
)

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "general:\n  data_dir: " + dir + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNew_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, "")

	a, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.LLM)
	assert.DirExists(t, cfg.General.UploadDir)
	assert.FileExists(t, cfg.Database.Path)
	assert.FileExists(t, cfg.Vector.Path)

	res := a.Meetings.IngestTranscript(ctx, meeting.IngestParams{
		MeetingID: "m1",
		Title:     "Budget review",
		Segments: []model.Segment{
			{SpeakerLabel: "A", StartTime: 0, Text: "the budget is approved", Confidence: 1},
			{SpeakerLabel: "B", StartTime: 4, Text: "hiring starts next month", Confidence: 1},
		},
	})
	require.True(t, res.Success, res.Error)

	sr, err := a.Chat.Search(ctx, chat.Query{Text: "budget"})
	require.NoError(t, err)
	require.NotEmpty(t, sr.Chunks)
	assert.Equal(t, "m1", sr.Chunks[0].Metadata.String(model.FieldMeetingID))

	// Without an LLM the answer step reports failure instead of erroring.
	resp := a.Chat.Ask(ctx, chat.Query{Text: "budget"})
	assert.False(t, resp.Success)
	assert.Equal(t, chat.AnswerFailedReply, resp.Answer)
}

func TestNew_WithCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, "embedding:\n  cache:\n    enabled: true\n    addr: "+mr.Addr()+"\n")

	a, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	res := a.Meetings.IngestTranscript(ctx, meeting.IngestParams{
		Title:    "Cached",
		Segments: []model.Segment{{SpeakerLabel: "A", Text: "cache me", Confidence: 1}},
	})
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, mr.Keys())
}

func TestNew_UnreachableCacheIsSkipped(t *testing.T) {
	cfg := loadConfig(t, "embedding:\n  cache:\n    enabled: true\n    addr: 127.0.0.1:1\n")

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestNew_WithLLMKey(t *testing.T) {
	cfg := loadConfig(t, "chat:\n  llm:\n    api_key: sk-test\n    base_url: http://127.0.0.1:1/v1\n")

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.LLM)
}
