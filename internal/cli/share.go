package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/model"
)

func init() {
	shareCmd := &cobra.Command{
		Use:   "share",
		Short: "Grant, revoke and list meeting access",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Share a meeting with a user by email",
		Run:   runShareAdd,
	}
	addCmd.Flags().String("id", "", "Meeting id (required)")
	addCmd.Flags().Int64("owner", 0, "Owner user id (required)")
	addCmd.Flags().String("email", "", "Email of the user to share with (required)")
	addCmd.MarkFlagRequired("id")
	addCmd.MarkFlagRequired("owner")
	addCmd.MarkFlagRequired("email")

	rmCmd := &cobra.Command{
		Use:   "rm",
		Short: "Revoke a share",
		Run:   runShareRm,
	}
	rmCmd.Flags().String("id", "", "Meeting id (required)")
	rmCmd.Flags().Int64("owner", 0, "Owner user id (required)")
	rmCmd.Flags().Int64("user", 0, "User id to revoke (required)")
	rmCmd.MarkFlagRequired("id")
	rmCmd.MarkFlagRequired("owner")
	rmCmd.MarkFlagRequired("user")

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List the shares of a meeting",
		Run:   runShareLs,
	}
	lsCmd.Flags().String("id", "", "Meeting id (required)")
	lsCmd.MarkFlagRequired("id")

	shareCmd.AddCommand(addCmd, rmCmd, lsCmd)
	RootCmd.AddCommand(shareCmd)
}

func runShareAdd(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	owner, _ := cmd.Flags().GetInt64("owner")
	email, _ := cmd.Flags().GetString("email")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	sh, err := a.Store.Share(cmd.Context(), id, owner, email)
	if err != nil {
		exitErr("share", err)
	}
	mustOutput(sh)
}

func runShareRm(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	owner, _ := cmd.Flags().GetInt64("owner")
	user, _ := cmd.Flags().GetInt64("user")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.Store.Unshare(cmd.Context(), id, owner, user); err != nil {
		exitErr("unshare", err)
	}
	mustOutput(map[string]any{"ok": true, "meeting_id": id, "user_id": user})
}

func runShareLs(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	shares, err := a.Store.SharesOf(cmd.Context(), id)
	if err != nil {
		exitErr("list shares", err)
	}
	if shares == nil {
		shares = []model.Share{}
	}
	mustOutput(shares)
}
