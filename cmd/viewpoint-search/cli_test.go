package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/schema"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// runCLI executes the root command with fresh flag values.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	modeOverride, vocabularyOverride, schemaOverride, logLevel = "", "", "", "warn"
	searchIntentFile, searchTopK, synthIntentFile = "", 0, ""
	validateSQL, validateParams = "", nil
	vocabFile, vocabIntent = "", ""
	keyName, keyPlain = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    bool
		wantReason query.RejectReason
	}{
		{
			name: "accepted",
			args: []string{"validate",
				"--sql", "SELECT viewpoint_id, name_primary FROM viewpoint_entity WHERE country = $1 AND popularity > $2",
				"--param", "Japan", "--param", "0.5"},
		},
		{
			name:       "write statement",
			args:       []string{"validate", "--sql", "DELETE FROM viewpoint_entity"},
			wantErr:    true,
			wantReason: query.ReasonForbiddenKeyword,
		},
		{
			name:       "parameter count mismatch",
			args:       []string{"validate", "--sql", "SELECT name_primary FROM viewpoint_entity WHERE country = $1"},
			wantErr:    true,
			wantReason: query.ReasonParamMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, "", tt.args...)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			var got validateOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got), out)
			assert.Equal(t, !tt.wantErr, got.Accepted)
			assert.Equal(t, string(tt.wantReason), got.Reason)
			assert.Equal(t, schema.Default().Version(), got.SchemaVersion)
		})
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"Japan", "Japan"},
		{`"10"`, "10"},
		{"10", json.Number("10")},
		{"0.5", json.Number("0.5")},
		{"true", true},
		{"1 2", "1 2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseParam(tt.in), tt.in)
	}
}

func TestVocabCommand(t *testing.T) {
	out, err := runCLI(t, `{"query_tags":["lake","not_a_tag"],"season_hint":"Autumn"}`,
		"vocab", "--intent", "-")
	require.NoError(t, err)

	var got vocabOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, vocabulary.Default().Version(), got.Version)
	assert.Equal(t, "embedded", got.Source)
	assert.Contains(t, got.Categories, "mountain")

	require.NotNil(t, got.Normalized)
	assert.Contains(t, got.Normalized.QueryTags, "lake")
	assert.NotContains(t, got.Normalized.QueryTags, "not_a_tag")
	assert.Equal(t, vocabulary.SeasonAutumn, got.Normalized.SeasonHint)

	t.Run("missing file", func(t *testing.T) {
		_, err := runCLI(t, "", "vocab", "--file", t.TempDir()+"/absent.yaml")
		assert.Error(t, err)
	})
}

func TestKeysCommands(t *testing.T) {
	out, err := runCLI(t, "", "keys", "generate", "--name", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "API key (shown once): vps_")
	assert.Contains(t, out, "API_KEYS entry:       ops:$2a$")

	out, err = runCLI(t, "", "keys", "hash", "--name", "ci", "--key", "vps_ci_key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ci:$2a$"), out)

	_, err = runCLI(t, "", "keys", "generate", "--name", "bad:name")
	assert.Error(t, err)
}
