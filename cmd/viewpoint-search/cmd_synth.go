package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/app"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/llm"
	"github.com/seanankenbruck/viewpoint-search/internal/synth"
)

var (
	synthIntentFile string

	synthCmd = &cobra.Command{
		Use:   "synth",
		Short: "Show the statement the generative service writes for an intent",
		Long: `synth normalizes an intent, asks the configured generative service for a
retrieval statement and runs it through the gate. Nothing is executed and
the datastore is not contacted.`,
		Example: `  LLM_API_KEY=... viewpoint-search synth --intent intent.json`,
		RunE:    runSynth,
	}
)

func init() {
	synthCmd.Flags().StringVar(&synthIntentFile, "intent", "", "intent JSON file, or - for stdin")
	_ = synthCmd.MarkFlagRequired("intent")
	rootCmd.AddCommand(synthCmd)
}

type synthOutput struct {
	Intent   intent.QueryIntent `json:"intent"`
	SQL      string             `json:"sql"`
	Params   []interface{}      `json:"params"`
	Accepted bool               `json:"accepted"`
	Reason   string             `json:"reason,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

func runSynth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := readIntent(synthIntentFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required for synth")
	}

	registry, desc, gate, err := app.Offline(cfg)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(llm.Config{
		Provider:  cfg.LLM.Provider,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		Timeout:   cfg.LLM.RequestTimeout,
		MaxTokens: cfg.LLM.MaxTokens,
		Retry:     llm.DefaultRetryConfig,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	normalized := intent.NewNormalizer().Normalize(raw, registry.Current())
	synthesizer := synth.New(client, nil, synth.Config{
		Timeout:   cfg.Search.SynthesisTimeout,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	candidate, err := synthesizer.Synthesize(ctx, normalized, desc, cfg.Search.MaxRows)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	result := gate.Check(candidate)
	return writeJSON(cmd.OutOrStdout(), synthOutput{
		Intent:   normalized,
		SQL:      candidate.Text(),
		Params:   candidate.Params(),
		Accepted: result.Accepted,
		Reason:   string(result.Reason),
		Detail:   result.Detail,
	})
}
