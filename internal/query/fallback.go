package query

import (
	"fmt"
	"strings"

	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// Template identifies which fallback query shape was used.
type Template string

const (
	TemplateName      Template = "name"
	TemplateCategory  Template = "category"
	TemplateGeography Template = "geography"
	TemplateTags      Template = "tags"
	TemplateDefault   Template = "default"
)

const (
	candidateSelect = "SELECT e.viewpoint_id, e.name_primary, e.name_variants, e.category_norm, e.country, e.region, e.popularity FROM viewpoint_entity AS e"
	candidateOrder  = " ORDER BY e.popularity DESC NULLS LAST, e.viewpoint_id"
)

// FallbackBuilder produces deterministic queries from an intent. Templates
// are chosen by a fixed precedence: name, category (narrowed by geography),
// geography, tags and season, then a default that lists viewpoints by
// popularity.
type FallbackBuilder struct {
	gate *Gate
}

// NewFallbackBuilder creates a builder and verifies every template against
// gate so that a schema descriptor which would reject the fallback path is
// caught at startup.
func NewFallbackBuilder(gate *Gate) (*FallbackBuilder, error) {
	b := &FallbackBuilder{gate: gate}

	place, country := "Shizuoka", "Japan"
	probes := []intent.QueryIntent{
		{NameCandidates: []string{"probe"}},
		{QueryTags: []string{"probe"}, GeoHints: intent.GeoHints{PlaceName: &place, Country: &country}},
		{GeoHints: intent.GeoHints{PlaceName: &place, Country: &country}},
		{QueryTags: []string{"probe"}, SeasonHint: vocabulary.SeasonWinter},
		{QueryTags: []string{"probe"}},
		{SeasonHint: vocabulary.SeasonWinter},
		{},
	}
	categories := [][]string{nil, {"probe"}, nil, nil, nil, nil, nil}

	for i, probe := range probes {
		tmpl, candidate := b.compose(probe, categories[i])
		if res := gate.Check(candidate); !res.Accepted {
			return nil, fmt.Errorf("fallback template %q rejected by safety gate: %s: %s", tmpl, res.Reason, res.Detail)
		}
	}
	return b, nil
}

// Build returns the validated fallback query for in. Tags are interpreted as
// categories through vocab.
func (b *FallbackBuilder) Build(in intent.QueryIntent, vocab *vocabulary.Snapshot) (*ValidatedQuery, Template, error) {
	tmpl, candidate := b.compose(in, categoriesOf(in.QueryTags, vocab))

	validated, res := b.gate.Validate(candidate)
	if !res.Accepted {
		return nil, tmpl, apperrors.NewFallbackExhaustedError(
			fmt.Errorf("template %s rejected: %s: %s", tmpl, res.Reason, res.Detail))
	}
	return validated, tmpl, nil
}

func (b *FallbackBuilder) compose(in intent.QueryIntent, categories []string) (Template, CandidateQuery) {
	w := &whereBuilder{}

	switch {
	case in.HasNames():
		patterns := make([]string, 0, len(in.NameCandidates))
		for _, name := range in.NameCandidates {
			patterns = append(patterns, "%"+escapeLike(name)+"%")
		}
		p := w.bind(patterns)
		w.add(fmt.Sprintf("(e.name_primary ILIKE ANY(%s) OR array_to_string(e.name_variants, ' ') ILIKE ANY(%s))", p, p))
		return TemplateName, w.candidate()

	case len(categories) > 0:
		w.add(fmt.Sprintf("e.category_norm = ANY(%s)", w.bind(categories)))
		w.addGeo(in.GeoHints)
		return TemplateCategory, w.candidate()

	case in.HasGeo():
		w.addGeo(in.GeoHints)
		return TemplateGeography, w.candidate()

	case len(in.QueryTags) > 0 || in.SeasonHint.Known():
		var conds []string
		if len(in.QueryTags) > 0 {
			conds = append(conds, fmt.Sprintf("t.tags && %s", w.bind(append([]string(nil), in.QueryTags...))))
			if in.SeasonHint.Known() {
				conds = append(conds, fmt.Sprintf("t.season IN (%s, 'unknown')", w.bind(string(in.SeasonHint))))
			}
		} else {
			conds = append(conds, fmt.Sprintf("t.season = %s", w.bind(string(in.SeasonHint))))
		}
		w.add("EXISTS (SELECT 1 FROM viewpoint_visual_tags AS t WHERE t.viewpoint_id = e.viewpoint_id AND " +
			strings.Join(conds, " AND ") + ")")
		return TemplateTags, w.candidate()
	}

	return TemplateDefault, w.candidate()
}

type whereBuilder struct {
	conds  []string
	params []interface{}
}

func (w *whereBuilder) bind(v interface{}) string {
	w.params = append(w.params, v)
	return fmt.Sprintf("$%d", len(w.params))
}

func (w *whereBuilder) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) addGeo(geo intent.GeoHints) {
	if geo.Country != nil {
		w.add(fmt.Sprintf("e.country ILIKE %s", w.bind(escapeLike(*geo.Country))))
	}
	if geo.PlaceName != nil {
		p := w.bind("%" + escapeLike(*geo.PlaceName) + "%")
		w.add(fmt.Sprintf("(e.region ILIKE %s OR e.name_primary ILIKE %s)", p, p))
	}
}

func (w *whereBuilder) candidate() CandidateQuery {
	text := candidateSelect
	if len(w.conds) > 0 {
		text += " WHERE " + strings.Join(w.conds, " AND ")
	}
	return NewCandidate(text+candidateOrder, w.params...)
}

func categoriesOf(tags []string, vocab *vocabulary.Snapshot) []string {
	if vocab == nil {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range tags {
		category, ok := vocab.CategoryFor(tag)
		if !ok {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
