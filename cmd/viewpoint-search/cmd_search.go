package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/app"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/search"
)

var (
	searchIntentFile string
	searchTopK       int

	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Run one search for the intent in a JSON file",
		Example: `  viewpoint-search search --intent intent.json
  viewpoint-search search --intent - --top-k 5 --mode fallback_only < intent.json`,
		RunE: runSearch,
	}
)

func init() {
	searchCmd.Flags().StringVar(&searchIntentFile, "intent", "", "intent JSON file, or - for stdin")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of results (default: configured top-k)")
	_ = searchCmd.MarkFlagRequired("intent")
}

func readIntent(path string, stdin io.Reader) (intent.RawIntent, error) {
	var raw intent.RawIntent

	var f io.Reader = stdin
	if path != "-" {
		opened, err := os.Open(path)
		if err != nil {
			return raw, fmt.Errorf("failed to open intent file: %w", err)
		}
		defer opened.Close()
		f = opened
	}

	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return raw, fmt.Errorf("failed to parse intent: %w", err)
	}
	return raw, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := readIntent(searchIntentFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if searchTopK < 0 {
		return fmt.Errorf("--top-k must not be negative")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := app.Build(ctx, cfg, cliLogger(cmd), app.Options{DisableCache: true})
	if err != nil {
		return err
	}
	defer a.Close()

	response, err := a.Service.SearchWithRetry(ctx, search.Request{Intent: raw, TopK: searchTopK})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), response)
}
