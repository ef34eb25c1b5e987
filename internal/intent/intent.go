// Package intent sanitises the structured search intent produced upstream.
package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// RawIntent is the untrusted intent as received from the caller.
type RawIntent struct {
	NameCandidates  []string     `json:"name_candidates"`
	QueryTags       []string     `json:"query_tags"`
	SeasonHint      string       `json:"season_hint"`
	SceneHints      []string     `json:"scene_hints"`
	GeoHints        *RawGeoHints `json:"geo_hints,omitempty"`
	ConfidenceNotes []string     `json:"confidence_notes"`
}

// RawGeoHints carries optional geography from the caller.
type RawGeoHints struct {
	PlaceName *string `json:"place_name"`
	Country   *string `json:"country"`
}

// GeoHints is the sanitised geography. A nil field means no hint.
type GeoHints struct {
	PlaceName *string `json:"place_name,omitempty"`
	Country   *string `json:"country,omitempty"`
}

// QueryIntent is the normalized intent. It is created once per request and
// read-only thereafter.
type QueryIntent struct {
	NameCandidates    []string          `json:"name_candidates"`
	QueryTags         []string          `json:"query_tags"`
	SeasonHint        vocabulary.Season `json:"season_hint"`
	SceneHints        []string          `json:"scene_hints"`
	GeoHints          GeoHints          `json:"geo_hints"`
	ConfidenceNotes   []string          `json:"confidence_notes"`
	VocabularyVersion string            `json:"vocabulary_version"`
}

// HasNames reports whether any name candidate survived normalization.
func (q QueryIntent) HasNames() bool {
	return len(q.NameCandidates) > 0
}

// HasGeo reports whether any geography hint is present.
func (q QueryIntent) HasGeo() bool {
	return q.GeoHints.PlaceName != nil || q.GeoHints.Country != nil
}

// Fingerprint is a stable hash of the fields that influence search results.
// Confidence notes are diagnostics and do not contribute.
func (q QueryIntent) Fingerprint() string {
	material := struct {
		Names   []string          `json:"n"`
		Tags    []string          `json:"t"`
		Season  vocabulary.Season `json:"s"`
		Scenes  []string          `json:"sc"`
		Geo     GeoHints          `json:"g"`
		Version string            `json:"v"`
	}{q.NameCandidates, q.QueryTags, q.SeasonHint, q.SceneHints, q.GeoHints, q.VocabularyVersion}

	data, _ := json.Marshal(material)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
