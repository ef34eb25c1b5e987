// Package synth asks a generative text service for a candidate query.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/llm"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/schema"
)

const maxExamples = 3

// Example is a previously accepted query for a similar intent.
type Example struct {
	Intent string        `json:"intent"`
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

// ExampleSource supplies few-shot examples. Implementations may be slow or
// unavailable; errors only cost the prompt its examples.
type ExampleSource interface {
	Similar(ctx context.Context, in intent.QueryIntent, limit int) ([]Example, error)
}

// Config controls one synthesis call.
type Config struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Synthesizer turns a normalized intent into a CandidateQuery. Its only
// error is SynthesisUnavailable; it never retries.
type Synthesizer struct {
	client   llm.Client
	examples ExampleSource
	config   Config
}

func New(client llm.Client, examples ExampleSource, config Config) *Synthesizer {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 512
	}
	return &Synthesizer{client: client, examples: examples, config: config}
}

// Synthesize produces one candidate query returning at most maxRows rows.
func (s *Synthesizer) Synthesize(ctx context.Context, in intent.QueryIntent, desc *schema.Descriptor, maxRows int) (query.CandidateQuery, error) {
	if s.client == nil {
		return query.CandidateQuery{}, apperrors.NewSynthesisUnavailableError(nil, "no generative client configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var examples []Example
	if s.examples != nil {
		// Example lookup shares the synthesis deadline.
		if found, err := s.examples.Similar(callCtx, in, maxExamples); err == nil {
			examples = found
		}
	}

	prompt, err := BuildPrompt(in, desc, maxRows, examples)
	if err != nil {
		return query.CandidateQuery{}, apperrors.NewSynthesisUnavailableError(err, "could not build prompt")
	}

	completion, err := s.client.Complete(callCtx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return query.CandidateQuery{}, ctx.Err()
		}
		return query.CandidateQuery{}, apperrors.NewSynthesisUnavailableError(err, "generative service call failed")
	}

	candidate, err := ParseResponse(completion.Text)
	if err != nil {
		return query.CandidateQuery{}, apperrors.NewSynthesisUnavailableError(err, "no parseable candidate in response")
	}
	return candidate, nil
}

const systemPrompt = "You write PostgreSQL SELECT statements for a read-only viewpoint catalogue. " +
	"You answer with a single JSON object and nothing else."

// BuildPrompt renders the schema, intent, output contract and examples.
func BuildPrompt(in intent.QueryIntent, desc *schema.Descriptor, maxRows int, examples []Example) (string, error) {
	var b strings.Builder

	b.WriteString("Write one read-only SQL query that finds viewpoints matching the search intent.\n\n")

	b.WriteString(fmt.Sprintf("Schema (version %s):\n", desc.Version()))
	for _, name := range desc.TableNames() {
		table, _ := desc.Table(name)
		b.WriteString(fmt.Sprintf("- %s(%s)", name, strings.Join(table.Columns, ", ")))
		if table.Description != "" {
			b.WriteString(" -- " + table.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Allowed functions: %s\n", strings.Join(desc.Functions(), ", ")))
	b.WriteString(fmt.Sprintf("Allowed operators: %s\n", strings.Join(desc.Operators(), " ")))
	b.WriteString(fmt.Sprintf("Allowed cast types: %s\n\n", strings.Join(desc.Types(), ", ")))

	intentJSON, err := json.MarshalIndent(promptIntent(in), "", "  ")
	if err != nil {
		return "", err
	}
	b.WriteString("Search intent:\n")
	b.Write(intentJSON)
	b.WriteString("\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Exactly one SELECT statement. No semicolons, comments or data modification.\n")
	b.WriteString("- Use positional placeholders $1, $2, ... for every value taken from the intent; never inline them.\n")
	b.WriteString("- Every placeholder number from 1 to the number of params must appear.\n")
	b.WriteString("- Select e.viewpoint_id, e.name_primary, e.name_variants, e.category_norm, e.country, e.region, e.popularity from viewpoint_entity AS e.\n")
	b.WriteString(fmt.Sprintf("- Return at most %d rows.\n\n", maxRows))

	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	if len(examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range examples {
			params, err := json.Marshal(ex.Params)
			if err != nil {
				continue
			}
			b.WriteString(fmt.Sprintf("Intent: %s\nAnswer: {\"sql\": %q, \"params\": %s}\n\n", ex.Intent, ex.SQL, params))
		}
	}

	b.WriteString(`Answer with {"sql": "<query>", "params": [<values in placeholder order>]}`)
	return b.String(), nil
}

type intentView struct {
	NameCandidates []string `json:"name_candidates,omitempty"`
	QueryTags      []string `json:"query_tags,omitempty"`
	SeasonHint     string   `json:"season_hint"`
	SceneHints     []string `json:"scene_hints,omitempty"`
	PlaceName      string   `json:"place_name,omitempty"`
	Country        string   `json:"country,omitempty"`
}

func promptIntent(in intent.QueryIntent) intentView {
	v := intentView{
		NameCandidates: in.NameCandidates,
		QueryTags:      in.QueryTags,
		SeasonHint:     string(in.SeasonHint),
		SceneHints:     in.SceneHints,
	}
	if in.GeoHints.PlaceName != nil {
		v.PlaceName = *in.GeoHints.PlaceName
	}
	if in.GeoHints.Country != nil {
		v.Country = *in.GeoHints.Country
	}
	return v
}

type response struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

// ParseResponse extracts a CandidateQuery from model output. Surrounding
// prose and code fences are ignored; one trailing semicolon is dropped.
func ParseResponse(text string) (query.CandidateQuery, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return query.CandidateQuery{}, fmt.Errorf("no JSON object in response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[start : end+1])))
	dec.UseNumber()
	var resp response
	if err := dec.Decode(&resp); err != nil {
		return query.CandidateQuery{}, fmt.Errorf("failed to decode response: %w", err)
	}

	sql := strings.TrimSpace(resp.SQL)
	sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	if sql == "" {
		return query.CandidateQuery{}, fmt.Errorf("response has an empty sql field")
	}

	params, err := ConvertParams(resp.Params)
	if err != nil {
		return query.CandidateQuery{}, err
	}

	return query.NewCandidate(sql, params...), nil
}

// ConvertParams maps JSON-decoded parameters, decoded with UseNumber, onto
// the types the gate and executor bind: string, bool, int64, float64 and
// []string.
func ConvertParams(raw []interface{}) ([]interface{}, error) {
	params := make([]interface{}, 0, len(raw))
	for i, r := range raw {
		p, err := convertParam(r)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		params = append(params, p)
	}
	return params, nil
}

func convertParam(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string, bool:
		return v, nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("array params must contain only strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported param type %T", raw)
	}
}
