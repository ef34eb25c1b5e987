package ranking

import (
	"strings"

	"github.com/xrash/smetrics"

	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

const (
	neutralScore = 0.5

	// Jaro-Winkler parameters: prefix boost above 0.7, up to four prefix runes.
	boostThreshold = 0.7
	prefixSize     = 4
)

// nameScore is the best Jaro-Winkler similarity between any requested name
// and the candidate's primary name or aliases. It returns the matched form.
func nameScore(names []string, c catalog.Candidate) (float64, string) {
	var best float64
	var matched string
	forms := append([]string{c.Name}, c.Aliases...)
	for _, n := range names {
		nk := vocabulary.Key(n)
		if nk == "" {
			continue
		}
		for _, form := range forms {
			fk := vocabulary.Key(form)
			if fk == "" {
				continue
			}
			score := smetrics.JaroWinkler(nk, fk, boostThreshold, prefixSize)
			if score > best {
				best, matched = score, form
			}
		}
	}
	return clamp(best), matched
}

// geoScore averages the comparable country and place checks. Without hints
// or without candidate geography it is neutral.
func geoScore(geo intent.GeoHints, c catalog.Candidate) (float64, bool) {
	var total float64
	var checks int

	country := vocabulary.Key(c.Country)
	if geo.Country != nil && country != "" {
		checks++
		if vocabulary.Key(*geo.Country) == country {
			total++
		}
	}

	region := vocabulary.Key(c.Region)
	if geo.PlaceName != nil && region != "" {
		checks++
		if placeMatches(vocabulary.Key(*geo.PlaceName), region, vocabulary.Key(c.Name)) {
			total++
		}
	}

	if checks == 0 {
		return neutralScore, false
	}
	return total / float64(checks), true
}

func placeMatches(place, region, name string) bool {
	if place == "" {
		return false
	}
	return place == region ||
		strings.Contains(region, place) ||
		strings.Contains(place, region) ||
		strings.Contains(name, place)
}

// categoryScore compares the candidate's category with every query tag that
// can be read as a category. A different category in the same group earns
// partial credit.
func categoryScore(tags []string, c catalog.Candidate, vocab *vocabulary.Snapshot) (float64, string) {
	category := vocabulary.Key(c.Category)
	if category == "" {
		return 0, ""
	}
	group, hasGroup := vocab.Group(category)

	var best float64
	var matched string
	for _, tag := range tags {
		wanted, ok := vocab.CategoryFor(tag)
		if !ok {
			continue
		}
		if wanted == category {
			return 1, wanted
		}
		if hasGroup {
			if g, ok := vocab.Group(wanted); ok && g == group && best < 0.5 {
				best, matched = 0.5, wanted
			}
		}
	}
	return best, matched
}

// seasonTags collects the candidate's tags from records that apply to the
// hinted season. Records with an unknown season apply to every season; with
// no hint every record applies.
func seasonTags(records []catalog.TagRecord, hint vocabulary.Season) map[string]struct{} {
	tags := make(map[string]struct{})
	for _, r := range records {
		if hint.Known() && r.Season != hint && r.Season != vocabulary.SeasonUnknown {
			continue
		}
		for _, t := range r.Tags {
			tags[vocabulary.Key(t)] = struct{}{}
		}
	}
	return tags
}

// tagOverlapScore is |query tags ∩ seasonal tags| / |query tags|, or a
// neutral 1.0 when the query names no tags.
func tagOverlapScore(queryTags []string, records []catalog.TagRecord, hint vocabulary.Season) (float64, []string) {
	if len(queryTags) == 0 {
		return 1, nil
	}
	available := seasonTags(records, hint)
	var matched []string
	for _, t := range queryTags {
		if _, ok := available[vocabulary.Key(t)]; ok {
			matched = append(matched, t)
		}
	}
	return float64(len(matched)) / float64(len(queryTags)), matched
}

// seasonBonus grants SeasonBonus per tag record recorded in the hinted
// season, up to SeasonBonusCap.
func seasonBonus(records []catalog.TagRecord, hint vocabulary.Season) float64 {
	if !hint.Known() {
		return 0
	}
	var bonus float64
	for _, r := range records {
		if r.Season == hint {
			bonus += SeasonBonus
		}
	}
	if bonus > SeasonBonusCap {
		bonus = SeasonBonusCap
	}
	return bonus
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
