package ranking

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

func normalize(raw intent.RawIntent) intent.QueryIntent {
	return intent.NewNormalizer().Normalize(raw, vocabulary.Default())
}

func strPtr(s string) *string { return &s }

func TestRank_MountFujiScenario(t *testing.T) {
	in := normalize(intent.RawIntent{
		NameCandidates: []string{"Mount Fuji"},
		SeasonHint:     "winter",
		QueryTags:      []string{"snow_peak"},
	})

	a := catalog.Candidate{ID: 1, Name: "Mount Fuji", Category: "mountain", Country: "Japan"}
	b := catalog.Candidate{ID: 2, Name: "Mount Fiji", Category: "mountain", Country: "Japan"}

	ranked := Rank(Input{
		// B retrieved first so the order is earned, not inherited
		Candidates: []catalog.Candidate{b, a},
		Enrichment: map[int64]catalog.Enrichment{
			1: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonWinter, Tags: []string{"snow_peak"}}}},
			2: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonSummer, Tags: []string{"forest"}}}},
		},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].ID)
	assert.Greater(t, ranked[0].Composite, ranked[1].Composite)

	top := ranked[0]
	assert.Equal(t, 1.0, top.Signals.Name)
	assert.Equal(t, 1.0, top.Signals.TagOverlap)
	assert.Equal(t, 1.0, top.Signals.Category)
	assert.Equal(t, SeasonBonus, top.Signals.SeasonBonus)
	assert.Contains(t, top.Explanation, "name 1.00 (Mount Fuji)")
	assert.Contains(t, top.Explanation, "tags 1/1 (snow_peak)")
	assert.Contains(t, top.Explanation, "winter record")

	assert.Less(t, ranked[1].Signals.Name, 1.0)
	assert.Equal(t, 0.0, ranked[1].Signals.TagOverlap)
	assert.Equal(t, 0.0, ranked[1].Signals.SeasonBonus)
}

func TestRank_OrderIndependent(t *testing.T) {
	in := normalize(intent.RawIntent{
		NameCandidates: []string{"Kiyomizu"},
		QueryTags:      []string{"temple", "autumn_foliage"},
		SeasonHint:     "autumn",
		GeoHints:       &intent.RawGeoHints{Country: strPtr("Japan")},
	})

	candidates := []catalog.Candidate{
		{ID: 1, Name: "Kiyomizu-dera", Category: "temple", Country: "Japan", Popularity: 90},
		{ID: 2, Name: "Kinkaku-ji", Category: "temple", Country: "Japan", Popularity: 95},
		{ID: 3, Name: "Arashiyama", Category: "park", Country: "Japan", Popularity: 80},
		{ID: 4, Name: "Wat Arun", Category: "temple", Country: "Thailand", Popularity: 70},
		{ID: 5, Name: "Tokyo Tower", Category: "tower", Country: "Japan", Popularity: 85},
		{ID: 6, Name: "Fushimi Inari", Category: "temple", Country: "Japan", Popularity: 60},
	}
	enrichment := map[int64]catalog.Enrichment{
		1: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonAutumn, Tags: []string{"autumn_foliage", "pagoda"}}}},
		3: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonUnknown, Tags: []string{"forest"}}}},
		6: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonUnknown, Tags: []string{"torii"}}}},
	}

	rank := func(cs []catalog.Candidate) []int64 {
		ranked := Rank(Input{Candidates: cs, Enrichment: enrichment, Intent: in, Vocabulary: vocabulary.Default()})
		ids := make([]int64, len(ranked))
		for i, r := range ranked {
			ids[i] = r.ID
		}
		return ids
	}

	expected := rank(candidates)
	assert.Equal(t, int64(1), expected[0])

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]catalog.Candidate(nil), candidates...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, rank(shuffled))
	}
}

func TestRank_EmptyQueryTagsAreNeutral(t *testing.T) {
	in := normalize(intent.RawIntent{NameCandidates: []string{"Lake Louise"}})

	ranked := Rank(Input{
		Candidates: []catalog.Candidate{
			{ID: 1, Name: "Lake Louise", Category: "lake"},
			{ID: 2, Name: "Lake Louise", Category: "lake"},
		},
		Enrichment: map[int64]catalog.Enrichment{
			1: {Tags: []catalog.TagRecord{{Season: vocabulary.SeasonSummer, Tags: []string{"lake", "reflection"}}}},
		},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, 1.0, ranked[0].Signals.TagOverlap)
	assert.Equal(t, ranked[0].Signals.TagOverlap, ranked[1].Signals.TagOverlap)
	assert.Equal(t, ranked[0].Composite, ranked[1].Composite)
	// full tie keeps retrieval order
	assert.Equal(t, int64(1), ranked[0].ID)
}

func TestRank_TieBreaks(t *testing.T) {
	in := normalize(intent.RawIntent{})

	ranked := Rank(Input{
		Candidates: []catalog.Candidate{
			{ID: 1, Name: "A", Popularity: 10},
			{ID: 2, Name: "B", Popularity: 50},
			{ID: 3, Name: "C", Popularity: 10},
		},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
	})

	ids := []int64{ranked[0].ID, ranked[1].ID, ranked[2].ID}
	assert.Equal(t, []int64{2, 1, 3}, ids)
	assert.Equal(t, "no specific signal matched; ordered by popularity", ranked[0].Explanation)
}

func TestRank_DeduplicatesAndCaps(t *testing.T) {
	in := normalize(intent.RawIntent{})

	ranked := Rank(Input{
		Candidates: []catalog.Candidate{
			{ID: 1, Name: "First"},
			{ID: 2, Name: "Second"},
			{ID: 1, Name: "Duplicate"},
			{ID: 3, Name: "Third"},
		},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
		TopK:       2,
	})

	require.Len(t, ranked, 2)
	assert.Equal(t, "First", ranked[0].Name)
	assert.Equal(t, "Second", ranked[1].Name)
}

func TestRank_Idempotent(t *testing.T) {
	in := normalize(intent.RawIntent{
		NameCandidates: []string{"Niagara"},
		QueryTags:      []string{"waterfall"},
	})
	input := Input{
		Candidates: []catalog.Candidate{
			{ID: 1, Name: "Niagara Falls", Category: "waterfall", Popularity: 99},
			{ID: 2, Name: "Iguazu Falls", Category: "waterfall", Popularity: 90},
			{ID: 3, Name: "Lake Ontario", Category: "lake", Popularity: 40},
		},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
	}

	first := Rank(input)
	second := Rank(input)
	assert.Equal(t, first, second)
}

func TestGeoScore(t *testing.T) {
	c := catalog.Candidate{Name: "Matterhorn", Country: "Switzerland", Region: "Valais"}

	tests := []struct {
		name     string
		geo      intent.GeoHints
		expected float64
		compared bool
	}{
		{name: "no hints", geo: intent.GeoHints{}, expected: 0.5},
		{name: "country match any case", geo: intent.GeoHints{Country: strPtr("SWITZERLAND")}, expected: 1, compared: true},
		{name: "country mismatch", geo: intent.GeoHints{Country: strPtr("Italy")}, expected: 0, compared: true},
		{name: "place in region", geo: intent.GeoHints{PlaceName: strPtr("valais")}, expected: 1, compared: true},
		{name: "mixed", geo: intent.GeoHints{Country: strPtr("Italy"), PlaceName: strPtr("Valais")}, expected: 0.5, compared: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, compared := geoScore(tt.geo, c)
			assert.Equal(t, tt.expected, score)
			assert.Equal(t, tt.compared, compared)
		})
	}

	score, compared := geoScore(intent.GeoHints{Country: strPtr("Japan")}, catalog.Candidate{Name: "Unknown place"})
	assert.Equal(t, 0.5, score, "unknown candidate geography is neutral")
	assert.False(t, compared)
}

func TestCategoryScore(t *testing.T) {
	vocab := vocabulary.Default()

	tests := []struct {
		name     string
		tags     []string
		category string
		expected float64
	}{
		{name: "exact category tag", tags: []string{"lake"}, category: "lake", expected: 1},
		{name: "implied by visual tag", tags: []string{"torii"}, category: "temple", expected: 1},
		{name: "same group", tags: []string{"waterfall"}, category: "lake", expected: 0.5},
		{name: "different group", tags: []string{"castle"}, category: "lake", expected: 0},
		{name: "no category tags", tags: []string{"sunrise"}, category: "lake", expected: 0},
		{name: "unknown candidate category", tags: []string{"lake"}, category: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := categoryScore(tt.tags, catalog.Candidate{Category: tt.category}, vocab)
			assert.Equal(t, tt.expected, score)
		})
	}
}

func TestTagOverlapAndSeasonBonus(t *testing.T) {
	records := []catalog.TagRecord{
		{Season: vocabulary.SeasonWinter, Tags: []string{"snow_peak"}},
		{Season: vocabulary.SeasonWinter, Tags: []string{"starry_sky"}},
		{Season: vocabulary.SeasonWinter, Tags: []string{"fog"}},
		{Season: vocabulary.SeasonSummer, Tags: []string{"flower_field"}},
		{Season: vocabulary.SeasonUnknown, Tags: []string{"sunrise"}},
	}

	score, matched := tagOverlapScore([]string{"snow_peak", "flower_field", "sunrise", "lake"}, records, vocabulary.SeasonWinter)
	assert.Equal(t, 0.5, score)
	assert.Equal(t, []string{"snow_peak", "sunrise"}, matched)

	score, _ = tagOverlapScore([]string{"snow_peak", "flower_field"}, records, vocabulary.SeasonUnknown)
	assert.Equal(t, 1.0, score, "no hint uses every record")

	assert.Equal(t, SeasonBonusCap, seasonBonus(records, vocabulary.SeasonWinter))
	assert.Equal(t, SeasonBonus, seasonBonus(records, vocabulary.SeasonSummer))
	assert.Equal(t, 0.0, seasonBonus(records, vocabulary.SeasonUnknown))
	assert.Equal(t, 0.0, seasonBonus(records, vocabulary.SeasonAutumn))
}

func TestCompositeIsClamped(t *testing.T) {
	in := normalize(intent.RawIntent{
		NameCandidates: []string{"Mount Fuji"},
		QueryTags:      []string{"snow_peak"},
		SeasonHint:     "winter",
		GeoHints:       &intent.RawGeoHints{Country: strPtr("Japan")},
	})

	ranked := Rank(Input{
		Candidates: []catalog.Candidate{{ID: 1, Name: "Mount Fuji", Category: "mountain", Country: "Japan"}},
		Enrichment: map[int64]catalog.Enrichment{1: {Tags: []catalog.TagRecord{
			{Season: vocabulary.SeasonWinter, Tags: []string{"snow_peak"}},
			{Season: vocabulary.SeasonWinter, Tags: []string{"sunrise"}},
		}}},
		Intent:     in,
		Vocabulary: vocabulary.Default(),
	})

	require.Len(t, ranked, 1)
	assert.Equal(t, 1.0, ranked[0].Composite)
}
