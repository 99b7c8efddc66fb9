package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/integratec/plant-crm/internal/model"
)

// The relevance filter removes places that are clearly NOT manufacturing
// facilities before they reach classification. It is conservative: a place
// is only excluded when a type or text signal makes non-manufacturing
// near-certain; everything ambiguous is kept for the classifier to judge.

// excludedPlaceTypes are provider place types that will never be factories.
var excludedPlaceTypes = map[string]struct{}{
	"supermarket":         {},
	"grocery_store":       {},
	"convenience_store":   {},
	"department_store":    {},
	"discount_store":      {},
	"clothing_store":      {},
	"shoe_store":          {},
	"electronics_store":   {},
	"furniture_store":     {},
	"hardware_store":      {},
	"liquor_store":        {},
	"pet_store":           {},
	"book_store":          {},
	"restaurant":          {},
	"cafe":                {},
	"coffee_shop":         {},
	"bar":                 {},
	"meal_delivery":       {},
	"meal_takeaway":       {},
	"fast_food_restaurant": {},
	"gas_station":         {},
	"pharmacy":            {},
	"drugstore":           {},
	"bank":                {},
	"atm":                 {},
	"hotel":               {},
	"motel":               {},
	"lodging":             {},
	"real_estate_agency":  {},
	"car_dealer":          {},
	"car_rental":          {},
	"car_wash":            {},
	"car_repair":          {},
	"parking":             {},
	"church":              {},
	"mosque":              {},
	"synagogue":           {},
	"hindu_temple":        {},
	"school":              {},
	"university":          {},
	"library":             {},
	"hospital":            {},
	"doctor":              {},
	"dentist":             {},
	"gym":                 {},
	"fitness_center":      {},
	"spa":                 {},
	"hair_salon":          {},
	"barber_shop":         {},
	"nail_salon":          {},
	"movie_theater":       {},
	"bowling_alley":       {},
	"amusement_park":      {},
	"zoo":                 {},
	"aquarium":            {},
	"museum":              {},
	"art_gallery":         {},
	"night_club":          {},
	"casino":              {},
	"stadium":             {},
	"park":                {},
	// Construction trades: contractors, not plants.
	"general_contractor":  {},
	"roofing_contractor":  {},
	"plumber":             {},
	"electrician":         {},
	"moving_company":      {},
	"painter":             {},
	"landscaping_company": {},
	"locksmith":           {},
	"hvac_contractor":     {},
	// Retail and supply.
	"building_materials_store": {},
	"food_store":               {},
	// HQ-only offices with no plant signal.
	"corporate_office": {},
}

// excludedTextPatterns are name/summary signals that strongly indicate
// non-manufacturing. Matched against the folded name + summary text.
var excludedTextPatterns = compileAll(
	`\bsupermarket\b`,
	`\bgrocery\s*(store|chain)?\b`,
	`\bconvenience\s*store\b`,
	`\bretail\s*chain\b`,
	`\bchain\s*(store|restaurant|shop)\b`,
	`\brestaurant\b`,
	`\bcafe\b`,
	`\bcoffee\s*shop\b`,
	`\bbar\s+and\s+grill\b`,
	`\bgas\s*station\b`,
	`\bpharmacy\b`,
	`\bhotel\b`,
	`\bmotel\b`,
	`\bbank\b`,
	`\bfast\s*food\b`,
	`\bpizza\s*(restaurant|parlor|place)\b`,
	`\bhamburger\s*restaurant\b`,
	`\bseafood\s*market\b`,
	`\bproduce\s*(market|stand)\b`,
	`\borganic\s*(products?|market)\b`,
	`\bpremade\s*meals?\b`,
	`\bserving\s+(food|meals?|coffee)\b`,
	`\beatery\b`,
	`\bbakery\b`,
	`\bice\s*cream\s*shop\b`,
	`\bdeli\b`,
	`\bbistro\b`,
	`\btavern\b`,
	`\b(bar|restaurant)\s+and\s+grill\b`,
	`\bgrill\s+(house|restaurant|bar)\b`,
	// Construction companies.
	`\bconstruction\s*company\b`,
	`\bconstruction\s*contractor\b`,
	`\bgeneral\s*contractor\b`,
	`\bcommercial\s*construction\b`,
	`\bresidential\s*construction\b`,
	`\bbuilding\s*construction\b`,
	`\bcontractor\s*(company|services?)?\b`,
	`\b(roofing|electrical|plumbing|hvac)\s*(contractor|company|services?)\b`,
	`\bhome\s*(improvement|remodeling|builder)\b`,
	`\bremodeling\s*(contractor|company)\b`,
	`\bconstruction-related\s*(services?)?\b`,
	// Contracting, retail building/landscape supply, utilities.
	`\bcontracting\b`,
	`\bcustom\s*concrete\b`,
	`\bbuilding\s*materials\s*(store|supplier)?\b`,
	`\blandscap(e|ing)\s*(materials?|supply)\b`,
	`\blawn\s*care\s*supply\b`,
	`\bprimarily\s*a\s*retail\s*store\b`,
	`\bcorporate\s*office\b`,
	`\bwater\s*treatment\s*plant\b`,
	`\bwwtp\b`,
	`\bpro\s*desk\b`,
)

// positiveSignals indicate manufacturing/industrial despite a retail- or
// venue-looking type. A match keeps the place.
var positiveSignals = compileAll(
	`\bbrewery\b`,
	`\bbreweries\b`,
	`\bbrewing\b`,
	`\bbottling\b`,
	`\bbottling\s*plant\b`,
	`\bdistillery\b`,
	`\bdistilleries\b`,
	`\bwinery\b`,
	`\bwineries\b`,
	`\btextile\s*(mill|manufacturing|plant)?\b`,
	`\bpaper\s*mill\b`,
	`\bfood\s*processing\b`,
	`\bdairy\s*(plant|processor|manufacturing)?\b`,
	`\bchemical\s*plant\b`,
	`\bpharmaceutical\b`,
	`\bpackaging\s*(facility|plant)?\b`,
	`\bdeer\s*processing\b`,
	`\bcold\s*storage\b`,
	`\bplastics\s*(manufactur|plant)?\b`,
	`\bbeverage\s*(manufactur|producer)?\b`,
	`\bmeat\s*processing\b`,
	`\bpoultry\s*(plant|processing)?\b`,
	`\bcannery\b`,
	`\bflour\s*mill\b`,
	`\bsugar\s*refinery\b`,
	`\boil\s*refinery\b`,
	`\bsteel\s*mill\b`,
	`\bfoundry\b`,
	`\bcement\s*(plant|mill)?\b`,
	`\bglass\s*(manufactur|plant)?\b`,
	`\brubber\s*(manufactur|plant)?\b`,
	`\bfertilizer\s*(plant)?\b`,
	`\bprinting\s*(plant|press)?\b`,
	`\bcorrugated\b`,
	`\binjection\s*molding\b`,
	`\bmetal\s*fabrication\b`,
	`\bindustrial\s*(plant|facility|manufacturing)\b`,
)

// hybridVenuePatterns catch restaurant-first venues whose names would
// otherwise trip a positive signal ("Winery & Grill"). Checked before the
// positive signals, so a match always excludes.
var hybridVenuePatterns = compileAll(
	`\bwinery\s*[&and ]+\s*grill\b`,
	`\bgrill\s+[&and ]+\s*winery\b`,
	`\bwinery\s*[&and ]+\s*restaurant\b`,
	`\brestaurant\s+[&and ]+\s*winery\b`,
	`\bbrewery\s*[&and ]+\s*(grill|restaurant)\b`,
	`\b(grill|restaurant)\s+[&and ]+\s*brewery\b`,
	`\bprimarily\s+a\s*(brewery|winery)\s+and\s+restaurant\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var foldTransformer = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// foldText strips diacritics so "Café" matches the cafe pattern.
func foldText(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return folded
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Excluded reports whether a candidate should be dropped as clearly
// non-manufacturing. The tiers run in strict order: hybrid-venue names
// exclude first, positive industrial signals keep second, then place types
// and text patterns exclude; anything left is kept.
func Excluded(c model.Candidate) bool {
	combined := foldText(strings.TrimSpace(c.Name + " " + c.EditorialSummary + " " + c.GenerativeSummary))

	if matchAny(hybridVenuePatterns, combined) {
		return true
	}
	if matchAny(positiveSignals, combined) {
		return false
	}

	if _, ok := excludedPlaceTypes[strings.ToLower(c.PrimaryType)]; ok {
		return true
	}
	for _, t := range c.Types {
		if _, ok := excludedPlaceTypes[strings.ToLower(t)]; ok {
			return true
		}
	}

	if combined != "" && matchAny(excludedTextPatterns, combined) {
		return true
	}

	return false
}

// ExcludedStored applies the same filter to an already-persisted facility,
// for cleanup of records ingested before a ruleset change. The classifier's
// reason text joins the summary so exclusion patterns can match it too
// ("General contractor" in the reason catches mis-stored contractors).
func ExcludedStored(f model.Facility) bool {
	editorial := f.EditorialSummary
	if f.RelevanceReason != "" {
		editorial = strings.TrimSpace(editorial + " " + f.RelevanceReason)
	}
	return Excluded(model.Candidate{
		Name:              f.Name,
		PrimaryType:       f.PrimaryType,
		Types:             f.Types,
		EditorialSummary:  editorial,
		GenerativeSummary: f.GenerativeSummary,
	})
}
