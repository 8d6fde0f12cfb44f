package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	sumCmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Store meeting minutes and index their subtopics",
		Long:  "Store markdown minutes for a meeting (from a file or stdin) and index each ### section as a subtopic.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSummarize,
	}
	sumCmd.Flags().String("id", "", "Meeting id (required)")
	sumCmd.MarkFlagRequired("id")

	mmCmd := &cobra.Command{
		Use:   "mindmap [file]",
		Short: "Store a meeting mindmap",
		Args:  cobra.MaximumNArgs(1),
		Run:   runMindmap,
	}
	mmCmd.Flags().String("id", "", "Meeting id (required)")
	mmCmd.MarkFlagRequired("id")

	RootCmd.AddCommand(sumCmd, mmCmd)
}

func runSummarize(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	data, err := readInput(args)
	if err != nil {
		exitErr("read input", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.IngestSummary(cmd.Context(), id, string(data))
	printResult(res, res.Success)
}

func runMindmap(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	data, err := readInput(args)
	if err != nil {
		exitErr("read input", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.Meetings.SaveMindmap(cmd.Context(), id, string(data)); err != nil {
		exitErr("mindmap", err)
	}
	mustOutput(map[string]any{"ok": true, "meeting_id": id})
}
