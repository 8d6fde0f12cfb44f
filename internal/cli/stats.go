package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database and collection statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	Database    *store.Stats                  `json:"database"`
	VectorStore string                        `json:"vector_store"`
	Collections []vectorstore.CollectionStats `json:"collections"`
}

func runStats(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	db, err := a.Store.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	cols, err := vectorstore.Stats(cmd.Context(), a.Vectors)
	if err != nil {
		exitErr("collection stats", err)
	}
	mustOutput(statsOutput{Database: db, VectorStore: a.Config.Vector.Backend, Collections: cols})
}
