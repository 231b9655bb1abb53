package service

import (
	"fmt"
	"strconv"
	"strings"

	"estate-assistant/internal/model"
	"estate-assistant/internal/utils"

	"github.com/rs/zerolog"
)

// followupPhrases mark an utterance as a refinement of the previous results.
// Matching is a plain substring test, so common phrases such as "show me" or
// "now" (also inside "know") flag fresh searches as follow-ups too.
var followupPhrases = []string{
	"from these", "from those", "filter these", "filter those",
	"in these", "in those", "of these", "of those", "now", "instead",
	"show me", "i want", "give me",
}

var listingTypes = []utils.VariantGroup{
	{Value: "rent", Variants: []string{"rent", "rental", "renting", "lease", "leasing"}},
	{Value: "sale", Variants: []string{"sale", "buy", "buying", "purchase", "purchasing", "sell", "selling"}},
}

var propertyTypes = []utils.VariantGroup{
	{Value: "agricultural", Variants: []string{"agricultural", "farm", "farming"}},
	{Value: "commercial", Variants: []string{"commercial", "office", "retail", "shop"}},
	{Value: "residential", Variants: []string{"residential", "house", "home"}},
}

// MaxBedrooms is the largest bedroom count the extractor recognizes
const MaxBedrooms = 5

var bedroomPatterns = buildBedroomPatterns()

func buildBedroomPatterns() []utils.VariantGroup {
	words := []string{"one", "two", "three", "four", "five"}
	groups := make([]utils.VariantGroup, 0, MaxBedrooms)
	for n := 1; n <= MaxBedrooms; n++ {
		groups = append(groups, utils.VariantGroup{
			Value: strconv.Itoa(n),
			Variants: []string{
				fmt.Sprintf("%dbhk", n),
				fmt.Sprintf("%d bhk", n),
				words[n-1] + " bhk",
				fmt.Sprintf("%d bedroom", n),
			},
		})
	}
	return groups
}

// FilterExtractor turns an utterance into a FilterSet with fixed phrase
// tables and the location alias table. It never fails: text without
// recognizable phrases yields an empty set.
type FilterExtractor struct {
	locations *utils.LocationTable
	log       zerolog.Logger
}

// NewFilterExtractor creates an extractor over the given alias table
func NewFilterExtractor(locations *utils.LocationTable, log zerolog.Logger) *FilterExtractor {
	return &FilterExtractor{locations: locations, log: log}
}

// IsFollowup reports whether the utterance contains a refinement phrase
func IsFollowup(utterance string) bool {
	return utils.ContainsAny(strings.ToLower(utterance), followupPhrases)
}

// Extract returns the filters found in utterance and whether it reads as a
// follow-up to the previous search.
func (e *FilterExtractor) Extract(utterance string) (model.FilterSet, bool) {
	text := strings.ToLower(utterance)
	isFollowup := utils.ContainsAny(text, followupPhrases)

	var filters model.FilterSet
	e.extractLocation(text, &filters)

	if v, ok := utils.FirstGroup(text, listingTypes); ok {
		filters.ListingType = &v
	}
	if v, ok := utils.FirstGroup(text, propertyTypes); ok {
		filters.PropertyType = &v
	}
	if v, ok := utils.FirstGroup(text, bedroomPatterns); ok {
		n, _ := strconv.Atoi(v)
		filters.Bedrooms = &n
	}

	e.log.Debug().
		Interface("filters", filters.Fields()).
		Bool("is_followup", isFollowup).
		Msg("extracted filters")
	return filters, isFollowup
}

// extractLocation prefers a verbatim variant anywhere in the text and only
// then tries per-word fuzzy matching.
func (e *FilterExtractor) extractLocation(text string, filters *model.FilterSet) {
	if e.locations == nil {
		return
	}

	if loc, ok := e.locations.FindExact(text); ok {
		assignLocation(filters, loc)
		return
	}

	hit, ok := e.locations.FindFuzzy(strings.Fields(text))
	if !ok {
		return
	}
	e.log.Info().
		Str("word", hit.Word).
		Str("variant", hit.Variant).
		Str("location", hit.Location.Canonical).
		Msg("fuzzy matched location")
	assignLocation(filters, hit.Location)
}

func assignLocation(filters *model.FilterSet, loc utils.LocationAlias) {
	name := loc.Canonical
	if loc.Kind == utils.KindState {
		filters.State = &name
	} else {
		filters.City = &name
	}
}
