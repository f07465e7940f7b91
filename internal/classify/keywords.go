package classify

import (
	"strings"
	"unicode"

	"github.com/civicconnect/civic/internal/models"
)

// rule maps whole words or phrases to a category. Rules are checked in order,
// so narrower categories come before the broad ones they overlap with
// ("traffic light" before "light", "street light" before "street").
type rule struct {
	category models.IssueCategory
	keywords []string
}

var rules = []rule{
	{models.CategoryNoiseComplaints, []string{
		"noise", "noisy", "loud", "music", "barking", "party", "honking",
	}},
	{models.CategoryTrafficSignals, []string{
		"traffic light", "traffic lights", "traffic signal", "traffic signals",
		"signal", "signals", "stop sign", "red light", "pedestrian signal",
	}},
	{models.CategoryPublicTransportation, []string{
		"bus", "buses", "bus stop", "bus shelter", "train", "subway", "metro",
		"tram", "transit", "station",
	}},
	{models.CategoryStreetCleaning, []string{
		"litter", "littering", "sweep", "sweeping", "street cleaning", "debris",
		"graffiti", "leaves", "dirty",
	}},
	{models.CategoryWaste, []string{
		"garbage", "trash", "rubbish", "waste", "bin", "bins", "dumpster",
		"recycling", "dumping", "dumped",
	}},
	{models.CategorySidewalks, []string{
		"sidewalk", "sidewalks", "pavement", "footpath", "curb", "kerb", "walkway",
	}},
	{models.CategoryUtilities, []string{
		"street light", "street lights", "streetlight", "streetlights", "lamp",
		"water", "leak", "leaking", "pipe", "sewer", "drain", "power", "outage",
		"electric", "electricity", "gas", "hydrant",
	}},
	{models.CategoryParks, []string{
		"park", "playground", "swing", "slide", "bench", "tree", "trees",
		"garden", "grass",
	}},
	{models.CategoryRoads, []string{
		"pothole", "potholes", "road", "roads", "street", "asphalt", "lane",
		"highway", "intersection", "crack",
	}},
}

// Keywords picks a category from words in the title, falling back to the
// description, then to Other.
func Keywords(title, description string) models.IssueCategory {
	for _, text := range []string{title, description} {
		if c, ok := match(normalize(text)); ok {
			return c
		}
	}
	return models.CategoryOther
}

func match(text string) (models.IssueCategory, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, " "+kw+" ") {
				return r.category, true
			}
		}
	}
	return "", false
}

// normalize lowercases s, turns non-letters into spaces and pads both ends so
// every word is space delimited.
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return " " + strings.Join(fields, " ") + " "
}
