package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	renameCmd := &cobra.Command{
		Use:   "rename",
		Short: "Change a meeting title in both stores",
		Run:   runRename,
	}
	renameCmd.Flags().String("id", "", "Meeting id (required)")
	renameCmd.Flags().StringP("title", "t", "", "New title (required)")
	renameCmd.MarkFlagRequired("id")
	renameCmd.MarkFlagRequired("title")

	rescheduleCmd := &cobra.Command{
		Use:   "reschedule",
		Short: "Change a meeting date in both stores",
		Run:   runReschedule,
	}
	rescheduleCmd.Flags().String("id", "", "Meeting id (required)")
	rescheduleCmd.Flags().String("date", "", "New date, YYYY-MM-DD HH:MM:SS (required)")
	rescheduleCmd.MarkFlagRequired("id")
	rescheduleCmd.MarkFlagRequired("date")

	RootCmd.AddCommand(renameCmd, rescheduleCmd)
}

func runRename(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	title, _ := cmd.Flags().GetString("title")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.Rename(cmd.Context(), id, title)
	printResult(res, res.Success)
}

func runReschedule(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	date, _ := cmd.Flags().GetString("date")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.Reschedule(cmd.Context(), id, date)
	printResult(res, res.Success)
}
