package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/app"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/synth"
)

var (
	validateSQL    string
	validateParams []string

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check a statement against the safety gate without running it",
		Long: `validate runs a SQL statement and its parameters through the same gate
the server applies to synthesized queries. Nothing is executed.

Each --param is read as JSON when it parses (10, 0.5, true, "text") and
as a plain string otherwise.`,
		Example: `  viewpoint-search validate --sql 'SELECT name_primary FROM viewpoint_entity WHERE country = $1' --param Japan`,
		RunE:    runValidate,
	}
)

func init() {
	validateCmd.Flags().StringVar(&validateSQL, "sql", "", "statement to check")
	validateCmd.Flags().StringArrayVar(&validateParams, "param", nil, "positional parameter, repeatable")
	_ = validateCmd.MarkFlagRequired("sql")
}

// validateOutput is printed for every decision.
type validateOutput struct {
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
	Detail        string `json:"detail,omitempty"`
	SchemaVersion string `json:"schema_version"`
}

// parseParam decodes a flag value, keeping numbers exact.
func parseParam(s string) interface{} {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	_, desc, gate, err := app.Offline(cfg)
	if err != nil {
		return err
	}

	raw := make([]interface{}, 0, len(validateParams))
	for _, p := range validateParams {
		raw = append(raw, parseParam(p))
	}
	params, err := synth.ConvertParams(raw)
	if err != nil {
		return fmt.Errorf("invalid parameter: %w", err)
	}

	result := gate.Check(query.NewCandidate(validateSQL, params...))
	out := validateOutput{
		Accepted:      result.Accepted,
		Reason:        string(result.Reason),
		Detail:        result.Detail,
		SchemaVersion: desc.Version(),
	}
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("statement rejected: %s", result.Reason)
	}
	return nil
}
