package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export meetings as bundles",
		Long:  "Export the transcript, minutes and mindmap of meetings as a JSON (or YAML) list of bundles. Without --id every meeting is exported.",
		Run:   runExport,
	}

	cmd.Flags().StringSlice("id", nil, "Meeting ids (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	ids, _ := cmd.Flags().GetStringSlice("id")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if len(ids) == 0 {
		meetings, err := a.Store.ListMeetings(cmd.Context(), store.ListParams{})
		if err != nil {
			exitErr("export", err)
		}
		for _, m := range meetings {
			ids = append(ids, m.ID)
		}
	}

	bundles := make([]*store.Bundle, 0, len(ids))
	for _, id := range ids {
		b, err := a.Store.ExportMeeting(cmd.Context(), id)
		if err != nil {
			exitErr("export "+id, err)
		}
		bundles = append(bundles, b)
	}
	mustOutput(bundles)
}
