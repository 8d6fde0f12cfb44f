package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/app"
	"github.com/rcliao/meeting-rag/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		Run:   runList,
	}

	cmd.Flags().StringP("query", "q", "", "Filter by title substring")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Int64P("user", "u", 0, "Only meetings this user id can see")
	cmd.Flags().Bool("ids-only", false, "Only output meeting ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	query, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")
	userID, _ := cmd.Flags().GetInt64("user")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	ids, err := accessibleIDs(cmd.Context(), a, userID)
	if err != nil {
		exitErr("list", err)
	}
	meetings, err := a.Store.ListMeetings(cmd.Context(), store.ListParams{Query: query, IDs: ids, Limit: limit})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range meetings {
			fmt.Fprintln(stdout, m.ID)
		}
		return
	}
	mustOutput(meetings)
}

// accessibleIDs returns the meetings userID may see, or nil (no restriction)
// when userID is zero.
func accessibleIDs(ctx context.Context, a *app.App, userID int64) ([]string, error) {
	if userID == 0 {
		return nil, nil
	}
	if _, err := a.Store.User(ctx, userID); err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return a.Store.AccessibleMeetingIDs(ctx, userID)
}
