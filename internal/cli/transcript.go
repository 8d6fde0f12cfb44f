package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print a meeting transcript reassembled from the vector store",
		Run:   runTranscript,
	}

	cmd.Flags().String("id", "", "Meeting id (required)")
	cmd.Flags().Bool("summary", false, "Print the summary rebuilt from subtopics instead")
	cmd.MarkFlagRequired("id")

	RootCmd.AddCommand(cmd)
}

func runTranscript(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	summary, _ := cmd.Flags().GetBool("summary")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	get := a.Meetings.Transcript
	if summary {
		get = a.Meetings.Summary
	}
	text, err := get(cmd.Context(), id)
	if err != nil {
		exitErr("transcript", err)
	}
	if text == "" {
		exitErr("transcript", fmt.Errorf("no documents for meeting %s", id))
	}
	fmt.Fprintln(stdout, text)
}
