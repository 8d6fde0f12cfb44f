package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/model"
)

func init() {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Run:   runUserAdd,
	}
	addCmd.Flags().String("email", "", "Email (required)")
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("role", model.RoleUser, "Role: user or admin")
	addCmd.MarkFlagRequired("email")

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List users",
		Run:   runUserLs,
	}

	roleCmd := &cobra.Command{
		Use:   "role [user-id] [role]",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		Run:   runUserRole,
	}

	userCmd.AddCommand(addCmd, lsCmd, roleCmd)
	RootCmd.AddCommand(userCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	u, err := a.Store.CreateUser(cmd.Context(), model.User{Email: email, Name: name, Role: role})
	if err != nil {
		exitErr("create user", err)
	}
	mustOutput(u)
}

func runUserLs(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	users, err := a.Store.ListUsers(cmd.Context())
	if err != nil {
		exitErr("list users", err)
	}
	if users == nil {
		users = []model.User{}
	}
	mustOutput(users)
}

func runUserRole(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitErr("parse user id", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.Store.SetRole(cmd.Context(), id, args[1]); err != nil {
		exitErr("set role", err)
	}
	u, err := a.Store.User(cmd.Context(), id)
	if err != nil {
		exitErr("get user", err)
	}
	mustOutput(u)
}
