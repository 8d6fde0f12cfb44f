package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

func init() {
	colCmd := &cobra.Command{
		Use:   "collections",
		Short: "Vector collection management",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count the documents of each collection",
		Run:   runCollectionStats,
	}

	clearCmd := &cobra.Command{
		Use:   "clear [collection]",
		Short: "Remove every document of a collection",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionClear,
	}
	clearCmd.Flags().Bool("yes", false, "Confirm the irreversible clear")

	colCmd.AddCommand(statsCmd, clearCmd)
	RootCmd.AddCommand(colCmd)
}

func runCollectionStats(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	stats, err := vectorstore.Stats(cmd.Context(), a.Vectors)
	if err != nil {
		exitErr("collection stats", err)
	}
	mustOutput(stats)
}

func runCollectionClear(cmd *cobra.Command, args []string) {
	name := args[0]
	yes, _ := cmd.Flags().GetBool("yes")
	if !model.ValidCollection(name) {
		exitErr("clear", fmt.Errorf("unknown collection %q", name))
	}
	if !yes {
		exitErr("clear", fmt.Errorf("refusing to clear %s without --yes", name))
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.Vectors.ClearCollection(cmd.Context(), name); err != nil {
		exitErr("clear", err)
	}
	mustOutput(map[string]any{"ok": true, "collection": name})
}
