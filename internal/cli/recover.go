package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Re-run metadata updates and deletes left pending by an interrupted process",
		Run:   runRecover,
	}

	RootCmd.AddCommand(cmd)
}

func runRecover(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res := a.Meetings.Recover(cmd.Context())
	printResult(res, res.Error == "" && res.Failed == 0)
}
