package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	vocab := vocabulary.Default()
	n := NewNormalizer()

	tests := []struct {
		name      string
		raw       RawIntent
		wantTags  []string
		wantNames []string
		season    vocabulary.Season
		notes     []string
	}{
		{
			name:      "drops tags outside vocabulary with a note each",
			raw:       RawIntent{QueryTags: []string{"snow_peak", "laser_show", "lake", "ufo"}},
			wantTags:  []string{"snow_peak", "lake"},
			wantNames: []string{},
			season:    vocabulary.SeasonUnknown,
			notes:     []string{`dropped tag "laser_show"`, `dropped tag "ufo"`},
		},
		{
			name:      "tags are case folded and deduplicated",
			raw:       RawIntent{QueryTags: []string{"Snow_Peak", "snow_peak", " LAKE "}},
			wantTags:  []string{"snow_peak", "lake"},
			wantNames: []string{},
			season:    vocabulary.SeasonUnknown,
		},
		{
			name:      "missing season defaults to unknown without a note",
			raw:       RawIntent{},
			wantTags:  []string{},
			wantNames: []string{},
			season:    vocabulary.SeasonUnknown,
		},
		{
			name:      "invalid season defaults to unknown with a note",
			raw:       RawIntent{SeasonHint: "monsoon"},
			wantTags:  []string{},
			wantNames: []string{},
			season:    vocabulary.SeasonUnknown,
			notes:     []string{`season hint "monsoon"`},
		},
		{
			name:      "valid season is kept",
			raw:       RawIntent{SeasonHint: "Winter"},
			wantTags:  []string{},
			wantNames: []string{},
			season:    vocabulary.SeasonWinter,
		},
		{
			name:      "names are NFKC normalized and deduplicated",
			raw:       RawIntent{NameCandidates: []string{"  Mount   Fuji ", "ＭＯＵＮＴ ＦＵＪＩ", "", "富士山"}},
			wantTags:  []string{},
			wantNames: []string{"Mount Fuji", "富士山"},
			season:    vocabulary.SeasonUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw, vocab)

			assert.Equal(t, tt.wantTags, got.QueryTags)
			assert.Equal(t, tt.wantNames, got.NameCandidates)
			assert.Equal(t, tt.season, got.SeasonHint)
			assert.Equal(t, vocab.Version(), got.VocabularyVersion)
			require.Len(t, got.ConfidenceNotes, len(tt.notes))
			for i, want := range tt.notes {
				assert.Contains(t, got.ConfidenceNotes[i], want)
			}
		})
	}
}

func TestNormalizeQueryTagsSubsetOfVocabulary(t *testing.T) {
	vocab := vocabulary.Default()
	raw := RawIntent{QueryTags: []string{"a", "snow_peak", "SUNRISE", "temple", "sunrise ", "💥", "cherry blossom"}}

	got := NewNormalizer().Normalize(raw, vocab)

	for _, tag := range got.QueryTags {
		assert.True(t, vocab.Contains(tag), "tag %q escaped the vocabulary", tag)
	}
	assert.Equal(t, []string{"snow_peak", "sunrise", "temple"}, got.QueryTags)
}

func TestNormalizeGeoHints(t *testing.T) {
	vocab := vocabulary.Default()

	tests := []struct {
		name    string
		geo     *RawGeoHints
		place   *string
		country *string
	}{
		{"absent", nil, nil, nil},
		{"blank strings become nil", &RawGeoHints{PlaceName: strPtr("   "), Country: strPtr("")}, nil, nil},
		{"values are trimmed", &RawGeoHints{PlaceName: strPtr(" Shizuoka "), Country: strPtr("Japan\n")}, strPtr("Shizuoka"), strPtr("Japan")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewNormalizer().Normalize(RawIntent{GeoHints: tt.geo}, vocab)
			assert.Equal(t, tt.place, got.GeoHints.PlaceName)
			assert.Equal(t, tt.country, got.GeoHints.Country)
			assert.Equal(t, tt.place != nil || tt.country != nil, got.HasGeo())
		})
	}
}

func TestNormalizeCapsLists(t *testing.T) {
	n := &Normalizer{MaxNames: 2, MaxTags: 1, MaxSceneHints: 1}
	raw := RawIntent{
		NameCandidates: []string{"a", "b", "c"},
		QueryTags:      []string{"lake", "temple"},
		SceneHints:     []string{"x", "y"},
	}

	got := n.Normalize(raw, vocabulary.Default())

	assert.Equal(t, []string{"a", "b"}, got.NameCandidates)
	assert.Equal(t, []string{"lake"}, got.QueryTags)
	assert.Equal(t, []string{"x"}, got.SceneHints)
	assert.Len(t, got.ConfidenceNotes, 3)
}

func TestNormalizePreservesIncomingNotes(t *testing.T) {
	raw := RawIntent{ConfidenceNotes: []string{"upstream: low confidence"}, QueryTags: []string{"nope"}}
	got := NewNormalizer().Normalize(raw, vocabulary.Default())

	require.Len(t, got.ConfidenceNotes, 2)
	assert.Equal(t, "upstream: low confidence", got.ConfidenceNotes[0])
	assert.True(t, strings.HasPrefix(got.ConfidenceNotes[1], "dropped tag"))
}

func TestFingerprint(t *testing.T) {
	vocab := vocabulary.Default()
	n := NewNormalizer()

	a := n.Normalize(RawIntent{NameCandidates: []string{"Mount Fuji"}, SeasonHint: "winter"}, vocab)
	b := n.Normalize(RawIntent{NameCandidates: []string{" Mount  Fuji"}, SeasonHint: "WINTER", ConfidenceNotes: []string{"x"}}, vocab)
	c := n.Normalize(RawIntent{NameCandidates: []string{"Mount Fuji"}, SeasonHint: "summer"}, vocab)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
