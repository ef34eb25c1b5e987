package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

var (
	vocabFile   string
	vocabIntent string

	vocabCmd = &cobra.Command{
		Use:   "vocab",
		Short: "Check a vocabulary file and show how it normalizes an intent",
		Long: `vocab loads a vocabulary file with the same rules the server uses on
reload and prints its contents. With --intent it also prints the normalized
intent, which shows which tags survive and which categories they imply.`,
		Example: `  viewpoint-search vocab --file vocabulary.yaml
  viewpoint-search vocab --file vocabulary.yaml --intent intent.json`,
		RunE: runVocab,
	}
)

func init() {
	vocabCmd.Flags().StringVar(&vocabFile, "file", "", "vocabulary YAML file (default: embedded)")
	vocabCmd.Flags().StringVar(&vocabIntent, "intent", "", "intent JSON file to normalize, or - for stdin")
}

type vocabOutput struct {
	Version    string              `json:"version"`
	Source     string              `json:"source"`
	Categories []string            `json:"categories"`
	Tags       []string            `json:"tags"`
	Implies    map[string]string   `json:"implies,omitempty"`
	Normalized *intent.QueryIntent `json:"normalized,omitempty"`
}

func runVocab(cmd *cobra.Command, args []string) error {
	snap, source := vocabulary.Default(), "embedded"
	if vocabFile != "" {
		loaded, err := vocabulary.LoadFile(vocabFile)
		if err != nil {
			return fmt.Errorf("invalid vocabulary: %w", err)
		}
		snap, source = loaded, vocabFile
	}

	out := vocabOutput{
		Version:    snap.Version(),
		Source:     source,
		Categories: snap.Categories(),
		Tags:       snap.Tags(),
		Implies:    snap.Document().Implies,
	}

	if vocabIntent != "" {
		raw, err := readIntent(vocabIntent, cmd.InOrStdin())
		if err != nil {
			return err
		}
		normalized := intent.NewNormalizer().Normalize(raw, snap)
		out.Normalized = &normalized
	}

	return writeJSON(cmd.OutOrStdout(), out)
}
