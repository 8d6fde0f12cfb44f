package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/meeting-rag/internal/meeting"
	"github.com/rcliao/meeting-rag/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import meeting bundles",
		Long: "Import bundles produced by export (JSON or YAML, from a file or stdin). Each meeting is\n" +
			"stored and re-indexed into the vector collections. Existing meeting ids are rejected.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := readInput(args)
	if err != nil {
		exitErr("read input", err)
	}
	bundles, err := decodeBundles(data)
	if err != nil {
		exitErr("parse bundles", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	results := make([]meeting.IngestResult, 0, len(bundles))
	ok := true
	for _, b := range bundles {
		res := a.Meetings.Import(cmd.Context(), b)
		ok = ok && res.Success
		results = append(results, res)
	}
	printResult(results, ok)
}

// decodeBundles reads a list of bundles, or a single bundle, from JSON or
// YAML. YAML goes through its JSON form so the json field names apply.
func decodeBundles(data []byte) ([]*store.Bundle, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("input is empty")
	}
	if data[0] != '[' && data[0] != '{' {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}

	if data[0] == '{' {
		var b store.Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return []*store.Bundle{&b}, nil
	}
	var bundles []*store.Bundle
	if err := json.Unmarshal(data, &bundles); err != nil {
		return nil, err
	}
	return bundles, nil
}
