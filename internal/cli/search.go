package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/retrieval"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve documents from one collection",
		Long:  "Retrieve documents from the chunks or subtopic collection with one of the retrieval strategies.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("collection", model.CollectionChunks, "Collection: chunks or subtopic")
	cmd.Flags().IntP("k", "k", retrieval.DefaultK, "Number of results")
	cmd.Flags().StringP("strategy", "s", "", "similarity, similarity_score_threshold, mmr or self_query")
	cmd.Flags().Float64("threshold", 0, "Minimum relevance score (selects similarity_score_threshold)")
	cmd.Flags().StringP("meeting", "m", "", "Restrict to one meeting id")
	cmd.Flags().Int64P("user", "u", 0, "Restrict to meetings this user id can see")
	cmd.Flags().Int("fetch-k", retrieval.DefaultFetchK, "mmr candidate pool size")
	cmd.Flags().Float64("lambda", retrieval.DefaultLambda, "mmr relevance/diversity balance")

	RootCmd.AddCommand(cmd)
}

type searchOutput struct {
	Strategy retrieval.Strategy       `json:"strategy"`
	Upgraded bool                     `json:"upgraded,omitempty"`
	Fallback retrieval.FallbackReason `json:"fallback,omitempty"`
	Matches  []vectorstore.Match      `json:"matches"`
}

func runSearch(cmd *cobra.Command, args []string) {
	collection, _ := cmd.Flags().GetString("collection")
	k, _ := cmd.Flags().GetInt("k")
	strategy, _ := cmd.Flags().GetString("strategy")
	meetingID, _ := cmd.Flags().GetString("meeting")
	userID, _ := cmd.Flags().GetInt64("user")
	fetchK, _ := cmd.Flags().GetInt("fetch-k")
	lambda, _ := cmd.Flags().GetFloat64("lambda")

	req := retrieval.Request{
		Collection: collection,
		Query:      strings.Join(args, " "),
		K:          k,
		Strategy:   retrieval.Strategy(strategy),
		FetchK:     fetchK,
		Lambda:     &lambda,
	}
	if cmd.Flags().Changed("threshold") {
		th, _ := cmd.Flags().GetFloat64("threshold")
		req.ScoreThreshold = &th
	}
	if meetingID != "" {
		req.Filter = req.Filter.And(vectorstore.Eq(model.FieldMeetingID, meetingID))
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	ids, err := accessibleIDs(cmd.Context(), a, userID)
	if err != nil {
		exitErr("search", err)
	}
	if ids != nil {
		if len(ids) == 0 {
			mustOutput(searchOutput{Strategy: req.Strategy, Matches: []vectorstore.Match{}})
			return
		}
		req.Filter = req.Filter.And(vectorstore.In(model.FieldMeetingID, ids))
	}

	res, err := a.Engine.Retrieve(cmd.Context(), req)
	if err != nil {
		exitErr("search", err)
	}
	out := searchOutput{Strategy: res.Strategy, Upgraded: res.Upgraded, Fallback: res.Fallback, Matches: res.Matches}
	if out.Matches == nil {
		out.Matches = []vectorstore.Match{}
	}
	mustOutput(out)
}
