package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a meeting everywhere",
		Long:  "Delete a meeting from the relational store, both vector collections and the upload directory.",
		Run:   runRm,
	}

	cmd.Flags().String("id", "", "Meeting id (required)")
	cmd.MarkFlagRequired("id")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.Delete(cmd.Context(), id)
	printResult(res, res.Success)
}
