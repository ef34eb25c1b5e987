package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/config"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
)

// --- Global flags ---
var (
	modeOverride       string
	vocabularyOverride string
	schemaOverride     string
	logLevel           string

	rootCmd = &cobra.Command{
		Use:   "viewpoint-search",
		Short: "Search scenic viewpoints from a structured intent",
		Long: `viewpoint-search runs the search pipeline from the command line.
It reads the same configuration as the server; flags override it.`,
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&modeOverride, "mode", "", "synthesis mode: synthesize or fallback_only")
	flags.StringVar(&vocabularyOverride, "vocabulary", "", "vocabulary YAML file (default: embedded)")
	flags.StringVar(&schemaOverride, "schema", "", "schema descriptor YAML file (default: embedded)")
	flags.StringVar(&logLevel, "log-level", "warn", "log level for pipeline diagnostics")

	rootCmd.AddCommand(searchCmd, validateCmd, vocabCmd, keysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration with command line overrides in front
// of the usual provider chain.
func loadConfig(ctx context.Context) (*config.Config, error) {
	overrides := config.MapProvider{}
	if modeOverride != "" {
		overrides["SEARCH_MODE"] = modeOverride
	}
	if vocabularyOverride != "" {
		overrides["VOCABULARY_PATH"] = vocabularyOverride
	}
	if schemaOverride != "" {
		overrides["SCHEMA_PATH"] = schemaOverride
	}
	return config.NewLoader(config.DefaultChain(overrides)).Load(ctx)
}

// cliLogger writes diagnostics to stderr so stdout stays machine readable.
func cliLogger(cmd *cobra.Command) *observability.Logger {
	return observability.NewLogger("cli").
		WithOutput(cmd.ErrOrStderr()).
		WithLevel(observability.ParseLevel(logLevel))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
