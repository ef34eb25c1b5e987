package vocabulary

import "strings"

// Season is the seasonal context of a tag record or a search hint.
type Season string

const (
	SeasonSpring  Season = "spring"
	SeasonSummer  Season = "summer"
	SeasonAutumn  Season = "autumn"
	SeasonWinter  Season = "winter"
	SeasonUnknown Season = "unknown"
)

// Seasons lists every valid season value.
var Seasons = []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter, SeasonUnknown}

// ParseSeason maps free text to a Season. The boolean is false when the
// input is not a recognised season, in which case SeasonUnknown is returned.
func ParseSeason(s string) (Season, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring":
		return SeasonSpring, true
	case "summer":
		return SeasonSummer, true
	case "autumn", "fall":
		return SeasonAutumn, true
	case "winter":
		return SeasonWinter, true
	case "unknown":
		return SeasonUnknown, true
	}
	return SeasonUnknown, false
}

// Known reports whether the season carries information.
func (s Season) Known() bool {
	return s != SeasonUnknown && s != ""
}
