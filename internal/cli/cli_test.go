package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/store"
)

func captureOutput(t *testing.T, format string, v any) string {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldFormat := stdout, formatFlag
	stdout, formatFlag = &buf, format
	t.Cleanup(func() { stdout, formatFlag = oldOut, oldFormat })

	require.NoError(t, output(v))
	return buf.String()
}

func TestOutputJSON(t *testing.T) {
	got := captureOutput(t, "json", map[string]any{"ok": true})
	assert.Equal(t, "{\n  \"ok\": true\n}\n", got)
}

func TestOutputYAML_UsesJSONFieldNames(t *testing.T) {
	m := model.Meeting{ID: "m1", Title: "Planning", MeetingDate: "2024-05-01 10:00:00", SegmentCount: 3}
	got := captureOutput(t, "yaml", m)

	assert.Contains(t, got, "meeting_id: m1\n")
	assert.Contains(t, got, "title: Planning\n")
	assert.Contains(t, got, "meeting_date:")
	assert.Contains(t, got, "2024-05-01 10:00:00")
	assert.NotContains(t, got, "{")
}

func TestOutputUnknownFormat(t *testing.T) {
	oldFormat := formatFlag
	formatFlag = "xml"
	t.Cleanup(func() { formatFlag = oldFormat })
	assert.Error(t, output(1))
}

func TestParseIngest(t *testing.T) {
	p, err := parseIngest([]byte(`{"title":"Weekly","audio_file":"w.wav","segments":[
		{"speaker_label":"A","start_time":0,"text":"hello"},
		{"speaker_label":"B","start_time":4.5,"text":"hi"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Weekly", p.Title)
	assert.Equal(t, "w.wav", p.AudioFile)
	require.Len(t, p.Segments, 2)
	assert.Equal(t, 4.5, p.Segments[1].StartTime)

	p, err = parseIngest([]byte(` [{"speaker_label":"A","start_time":1,"text":"only"}] `))
	require.NoError(t, err)
	assert.Empty(t, p.Title)
	require.Len(t, p.Segments, 1)
	assert.Equal(t, "only", p.Segments[0].Text)

	for _, in := range []string{"", "  ", "[]", `{"title":"x"}`, "{nope"} {
		_, err := parseIngest([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestDecodeBundles(t *testing.T) {
	bundle := store.Bundle{
		Meeting:  model.Meeting{ID: "m1", Title: "Planning", MeetingDate: "2024-05-01 10:00:00"},
		Segments: []model.Segment{{SpeakerLabel: "A", StartTime: 1, Text: "hello"}},
		Minutes:  &model.Minutes{MeetingID: "m1", Content: "### Budget\nApproved."},
	}

	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			encoded := captureOutput(t, format, []store.Bundle{bundle})
			got, err := decodeBundles([]byte(encoded))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "m1", got[0].Meeting.ID)
			assert.Equal(t, "2024-05-01 10:00:00", got[0].Meeting.MeetingDate)
			require.Len(t, got[0].Segments, 1)
			assert.Equal(t, "hello", got[0].Segments[0].Text)
			require.NotNil(t, got[0].Minutes)
			assert.Equal(t, "### Budget\nApproved.", got[0].Minutes.Content)
		})
	}

	single, err := decodeBundles([]byte(`{"meeting":{"meeting_id":"m2"},"segments":[]}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "m2", single[0].Meeting.ID)

	_, err = decodeBundles(nil)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range RootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{
		"serve", "ingest", "summarize", "mindmap", "transcript", "list", "search", "chat",
		"rename", "reschedule", "rm", "collections", "share", "user", "export", "import",
		"stats", "recover",
	} {
		assert.Contains(t, names, want)
	}
	assert.True(t, strings.HasPrefix(RootCmd.Use, "meeting-rag"))
}
