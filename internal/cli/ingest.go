package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/meeting"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Store a transcript and index its chunks",
		Long: "Store a transcript and index its chunks. Input is a JSON file (or stdin) holding\n" +
			"either an object with title, meeting_date, audio_file and segments, or a bare\n" +
			"array of segments. Flags override the values in the file.",
		Args: cobra.MaximumNArgs(1),
		Run:  runIngest,
	}

	cmd.Flags().String("id", "", "Meeting id (default: a new UUID)")
	cmd.Flags().StringP("title", "t", "", "Meeting title")
	cmd.Flags().String("date", "", "Meeting date, YYYY-MM-DD HH:MM:SS (default: now)")
	cmd.Flags().String("audio", "", "Audio file name in the upload directory")
	cmd.Flags().Int64("owner", 0, "Owner user id")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	data, err := readInput(args)
	if err != nil {
		exitErr("read input", err)
	}
	p, err := parseIngest(data)
	if err != nil {
		exitErr("parse transcript", err)
	}

	if v, _ := cmd.Flags().GetString("id"); v != "" {
		p.MeetingID = v
	}
	if v, _ := cmd.Flags().GetString("title"); v != "" {
		p.Title = v
	}
	if v, _ := cmd.Flags().GetString("date"); v != "" {
		p.MeetingDate = v
	}
	if v, _ := cmd.Flags().GetString("audio"); v != "" {
		p.AudioFile = v
	}
	if v, _ := cmd.Flags().GetInt64("owner"); v != 0 {
		p.OwnerID = &v
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.IngestTranscript(cmd.Context(), p)
	printResult(res, res.Success)
}

// parseIngest accepts an ingest object or a bare segment array.
func parseIngest(data []byte) (meeting.IngestParams, error) {
	var p meeting.IngestParams
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return p, fmt.Errorf("input is empty")
	}

	if data[0] == '[' {
		if err := json.Unmarshal(data, &p.Segments); err != nil {
			return p, err
		}
	} else if err := json.Unmarshal(data, &p); err != nil {
		return p, err
	}
	if len(p.Segments) == 0 {
		return p, fmt.Errorf("no segments")
	}

	return p, nil
}
