// Package ranking fuses per-candidate signals into a composite score and an
// explanation, and orders candidates by it. Everything here is pure.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// Signal weights. They sum to 1 so the weighted sum stays in [0,1] before
// the season bonus is added.
const (
	NameWeight     = 0.40
	GeoWeight      = 0.15
	CategoryWeight = 0.20
	TagWeight      = 0.25

	SeasonBonus    = 0.10
	SeasonBonusCap = 0.20
)

// Signals are the individual scores behind a composite.
type Signals struct {
	Name        float64 `json:"name_score"`
	Geo         float64 `json:"geo_score"`
	Category    float64 `json:"category_score"`
	TagOverlap  float64 `json:"tag_overlap_score"`
	SeasonBonus float64 `json:"season_bonus"`
}

// Ranked is a candidate with its scores and explanation.
type Ranked struct {
	catalog.Candidate
	Enrichment  catalog.Enrichment `json:"enrichment"`
	Signals     Signals            `json:"signals"`
	Composite   float64            `json:"composite_score"`
	Explanation string             `json:"explanation"`

	order int
}

// Input is everything one ranking pass reads.
type Input struct {
	Candidates []catalog.Candidate
	Enrichment map[int64]catalog.Enrichment
	Intent     intent.QueryIntent
	Vocabulary *vocabulary.Snapshot
	TopK       int
}

// Rank scores, deduplicates and orders the candidates and returns at most
// TopK of them. Ties go to the higher name score, then the higher
// popularity, then the earlier retrieval position.
func Rank(in Input) []Ranked {
	seen := make(map[int64]struct{}, len(in.Candidates))
	ranked := make([]Ranked, 0, len(in.Candidates))
	for i, c := range in.Candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		ranked = append(ranked, score(c, in.Enrichment[c.ID], in.Intent, in.Vocabulary, i))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.Signals.Name != b.Signals.Name {
			return a.Signals.Name > b.Signals.Name
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.order < b.order
	})

	if in.TopK > 0 && len(ranked) > in.TopK {
		ranked = ranked[:in.TopK]
	}
	return ranked
}

func score(c catalog.Candidate, e catalog.Enrichment, in intent.QueryIntent, vocab *vocabulary.Snapshot, order int) Ranked {
	var s Signals
	var notes []string

	var matchedName string
	s.Name, matchedName = nameScore(in.NameCandidates, c)
	if s.Name > 0 {
		notes = append(notes, fmt.Sprintf("name %.2f (%s)", s.Name, matchedName))
	}

	var geoCompared bool
	s.Geo, geoCompared = geoScore(in.GeoHints, c)
	switch {
	case geoCompared && s.Geo == 1:
		notes = append(notes, "geography matches")
	case geoCompared && s.Geo > 0:
		notes = append(notes, "geography partly matches")
	case geoCompared:
		notes = append(notes, "geography differs")
	}

	var matchedCategory string
	if vocab != nil {
		s.Category, matchedCategory = categoryScore(in.QueryTags, c, vocab)
	}
	switch {
	case s.Category == 1:
		notes = append(notes, "category "+matchedCategory)
	case s.Category > 0:
		notes = append(notes, fmt.Sprintf("category %s is close to %s", c.Category, matchedCategory))
	}

	var matchedTags []string
	s.TagOverlap, matchedTags = tagOverlapScore(in.QueryTags, e.Tags, in.SeasonHint)
	if len(matchedTags) > 0 {
		notes = append(notes, fmt.Sprintf("tags %d/%d (%s)", len(matchedTags), len(in.QueryTags), strings.Join(matchedTags, ", ")))
	}

	s.SeasonBonus = seasonBonus(e.Tags, in.SeasonHint)
	if s.SeasonBonus > 0 {
		notes = append(notes, fmt.Sprintf("%s record +%.2f", in.SeasonHint, s.SeasonBonus))
	}

	weighted := clamp(NameWeight*s.Name + GeoWeight*s.Geo + CategoryWeight*s.Category + TagWeight*s.TagOverlap)
	composite := clamp(weighted + s.SeasonBonus)

	explanation := "no specific signal matched; ordered by popularity"
	if len(notes) > 0 {
		explanation = strings.Join(notes, "; ")
	}

	return Ranked{
		Candidate:   c,
		Enrichment:  e,
		Signals:     s,
		Composite:   composite,
		Explanation: explanation,
		order:       order,
	}
}
