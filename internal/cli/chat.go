package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/meeting-rag/internal/chat"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Answer a question from transcripts and summaries",
		Long: "Search the chunks and subtopic collections together and answer the question with\n" +
			"the configured LLM. With --sources-only no answer is generated.",
		Args: cobra.MinimumNArgs(1),
		Run:  runChat,
	}

	cmd.Flags().StringP("meeting", "m", "", "Restrict to one meeting id")
	cmd.Flags().Int64P("user", "u", 0, "Restrict to meetings this user id can see")
	cmd.Flags().Bool("sources-only", false, "Print the retrieved documents without generating an answer")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	meetingID, _ := cmd.Flags().GetString("meeting")
	userID, _ := cmd.Flags().GetInt64("user")
	sourcesOnly, _ := cmd.Flags().GetBool("sources-only")

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	ids, err := accessibleIDs(cmd.Context(), a, userID)
	if err != nil {
		exitErr("chat", err)
	}
	q := chat.Query{Text: strings.Join(args, " "), MeetingID: meetingID, AccessibleIDs: ids}

	if sourcesOnly {
		res, err := a.Chat.Search(cmd.Context(), q)
		if err != nil {
			exitErr("chat", err)
		}
		mustOutput(res)
		return
	}
	resp := a.Chat.Ask(cmd.Context(), q)
	printResult(resp, resp.Success)
}
