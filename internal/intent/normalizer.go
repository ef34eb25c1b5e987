package intent

import (
	"fmt"
	"strings"

	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

const (
	DefaultMaxNames      = 10
	DefaultMaxTags       = 20
	DefaultMaxSceneHints = 10
)

// Normalizer turns a RawIntent into a QueryIntent. It never fails: anything
// it cannot use is dropped and explained in ConfidenceNotes.
type Normalizer struct {
	MaxNames      int
	MaxTags       int
	MaxSceneHints int
}

// NewNormalizer returns a Normalizer with the default list caps.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		MaxNames:      DefaultMaxNames,
		MaxTags:       DefaultMaxTags,
		MaxSceneHints: DefaultMaxSceneHints,
	}
}

// Normalize sanitises raw against the vocabulary snapshot vocab.
func (n *Normalizer) Normalize(raw RawIntent, vocab *vocabulary.Snapshot) QueryIntent {
	out := QueryIntent{
		ConfidenceNotes:   append([]string(nil), raw.ConfidenceNotes...),
		VocabularyVersion: vocab.Version(),
	}
	note := func(format string, args ...interface{}) {
		out.ConfidenceNotes = append(out.ConfidenceNotes, fmt.Sprintf(format, args...))
	}

	out.NameCandidates = uniqueText(raw.NameCandidates)
	if n.MaxNames > 0 && len(out.NameCandidates) > n.MaxNames {
		note("kept first %d of %d name candidates", n.MaxNames, len(out.NameCandidates))
		out.NameCandidates = out.NameCandidates[:n.MaxNames]
	}

	seen := make(map[string]struct{}, len(raw.QueryTags))
	out.QueryTags = []string{}
	for _, tag := range raw.QueryTags {
		key := vocabulary.Key(tag)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if !vocab.Contains(key) {
			note("dropped tag %q: not in vocabulary %s", tag, vocab.Version())
			continue
		}
		out.QueryTags = append(out.QueryTags, key)
	}
	if n.MaxTags > 0 && len(out.QueryTags) > n.MaxTags {
		note("kept first %d of %d query tags", n.MaxTags, len(out.QueryTags))
		out.QueryTags = out.QueryTags[:n.MaxTags]
	}

	season, ok := vocabulary.ParseSeason(raw.SeasonHint)
	if !ok && strings.TrimSpace(raw.SeasonHint) != "" {
		note("season hint %q not recognised; using unknown", raw.SeasonHint)
	}
	out.SeasonHint = season

	out.SceneHints = uniqueText(raw.SceneHints)
	if n.MaxSceneHints > 0 && len(out.SceneHints) > n.MaxSceneHints {
		note("kept first %d of %d scene hints", n.MaxSceneHints, len(out.SceneHints))
		out.SceneHints = out.SceneHints[:n.MaxSceneHints]
	}

	if raw.GeoHints != nil {
		out.GeoHints.PlaceName = cleanOptional(raw.GeoHints.PlaceName)
		out.GeoHints.Country = cleanOptional(raw.GeoHints.Country)
	}

	return out
}


func uniqueText(values []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		clean := vocabulary.Text(v)
		if clean == "" {
			continue
		}
		k := vocabulary.Key(clean)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	clean := vocabulary.Text(*s)
	if clean == "" {
		return nil
	}
	return &clean
}
