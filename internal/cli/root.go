// Package cli implements the meeting-rag CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/meeting-rag/internal/app"
	"github.com/rcliao/meeting-rag/internal/config"
	"github.com/rcliao/meeting-rag/internal/logging"
)

var (
	configPath string
	formatFlag string

	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "meeting-rag",
	Short: "Search and chat over meeting transcripts",
	Long: "Ingest meeting transcripts and summaries, index them into a chunks and a subtopic\n" +
		"collection, and answer questions with retrieval over both.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./config.yaml or ~/.meeting-rag/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or yaml")
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:   cfg.General.LogLevel,
		JSON:    cfg.General.LogJSON,
		Service: "meeting-rag",
	})
	return app.New(cmd.Context(), cfg, log)
}

// output writes v to stdout in the selected format.
func output(v any) error {
	switch strings.ToLower(formatFlag) {
	case "", "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(b))
		return err
	case "yaml", "yml":
		return writeYAML(stdout, v)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", formatFlag)
	}
}

// writeYAML renders v through its JSON form so field names and omitempty
// follow the json tags.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return err
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles the JSON input carried.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// printResult writes a result object and exits non-zero when it reports failure.
func printResult(v any, ok bool) {
	if err := output(v); err != nil {
		exitErr("output", err)
	}
	if !ok {
		os.Exit(1)
	}
}

func mustOutput(v any) {
	if err := output(v); err != nil {
		exitErr("output", err)
	}
}

// readInput reads the file named by the first argument, or stdin when no
// argument is given or the argument is "-".
func readInput(args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(stdin)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
