package therapy

import "strings"

// Therapy is one entry of the clinic's protocol catalogue.
type Therapy struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Category        string   `json:"category"`
	Targets         []string `json:"targets"`
	DurationMinutes int      `json:"duration_minutes"`
	BasePriority    Priority `json:"base_priority"`
}

// Catalog is in declaration order; domain matching walks it in this order.
var Catalog = []Therapy{
	{Code: "FRQ-001", Name: "Stress Relief Frequency", Category: "Frequency", Targets: []string{"stress", "anxiety", "sleep"}, DurationMinutes: 30, BasePriority: PriorityMandatory},
	{Code: "FRQ-002", Name: "Sleep Optimization Frequency", Category: "Frequency", Targets: []string{"sleep", "insomnia", "circadian"}, DurationMinutes: 45, BasePriority: PriorityMandatory},
	{Code: "FRQ-003", Name: "Energy Enhancement Frequency", Category: "Frequency", Targets: []string{"energy", "fatigue", "vitality"}, DurationMinutes: 30, BasePriority: PriorityRecommended},

	{Code: "LGT-001", Name: "Red Light Therapy", Category: "Light", Targets: []string{"inflammation", "joint", "pain"}, DurationMinutes: 20, BasePriority: PriorityMandatory},
	{Code: "LGT-002", Name: "Blue Light Therapy", Category: "Light", Targets: []string{"skin", "mood", "circadian"}, DurationMinutes: 15, BasePriority: PriorityRecommended},
	{Code: "LGT-003", Name: "Infrared Therapy", Category: "Light", Targets: []string{"circulation", "muscle", "recovery"}, DurationMinutes: 30, BasePriority: PriorityRecommended},

	{Code: "PMF-001", Name: "Joint Recovery PEMF", Category: "PEMF", Targets: []string{"joint", "arthritis", "mobility"}, DurationMinutes: 30, BasePriority: PriorityMandatory},
	{Code: "PMF-002", Name: "Cellular Regeneration PEMF", Category: "PEMF", Targets: []string{"cellular", "recovery", "healing"}, DurationMinutes: 45, BasePriority: PriorityRecommended},

	{Code: "OZN-001", Name: "Immune Boost Ozone", Category: "Ozone", Targets: []string{"immune", "infection", "detox"}, DurationMinutes: 45, BasePriority: PriorityMandatory},
	{Code: "OZN-002", Name: "Oxygen Enhancement", Category: "Ozone", Targets: []string{"oxygen", "energy", "cellular"}, DurationMinutes: 30, BasePriority: PriorityRecommended},

	{Code: "IVT-001", Name: "Myers Cocktail IV", Category: "IV", Targets: []string{"nutrition", "energy", "immune"}, DurationMinutes: 60, BasePriority: PriorityRecommended},
	{Code: "IVT-002", Name: "Glutathione IV", Category: "IV", Targets: []string{"detox", "antioxidant", "liver"}, DurationMinutes: 45, BasePriority: PriorityRecommended},
	{Code: "IVT-003", Name: "Vitamin C IV", Category: "IV", Targets: []string{"immune", "antioxidant", "energy"}, DurationMinutes: 45, BasePriority: PriorityMandatory},

	{Code: "HBO-001", Name: "Hyperbaric Oxygen Session", Category: "Hyperbaric", Targets: []string{"healing", "brain", "oxygen"}, DurationMinutes: 90, BasePriority: PriorityOptional},
	{Code: "CRY-001", Name: "Whole Body Cryotherapy", Category: "Cryo", Targets: []string{"inflammation", "recovery", "pain"}, DurationMinutes: 3, BasePriority: PriorityRecommended},
	{Code: "SAU-001", Name: "Infrared Sauna Detox", Category: "Sauna", Targets: []string{"detox", "circulation", "relaxation"}, DurationMinutes: 45, BasePriority: PriorityOptional},
}

// Lookup finds a catalogue entry by code.
func Lookup(code string) (Therapy, bool) {
	for _, t := range Catalog {
		if t.Code == code {
			return t, true
		}
	}
	return Therapy{}, false
}

// Constitutional types recorded by the iris assessment.
const (
	ConstitutionLymphatic        = "lymphatic"
	ConstitutionHaematogenic     = "haematogenic"
	ConstitutionBiliary          = "biliary"
	ConstitutionMixed            = "mixed"
	ConstitutionNeurogenic       = "neurogenic"
	ConstitutionPolyglandular    = "polyglandular"
	ConstitutionConnectiveTissue = "connective_tissue"
)

var constitutionalTherapies = map[string][]string{
	ConstitutionLymphatic:        {"OZN-001", "SAU-001", "LGT-003"},
	ConstitutionHaematogenic:     {"LGT-001", "HBO-001", "IVT-003"},
	ConstitutionBiliary:          {"IVT-002", "OZN-002", "SAU-001"},
	ConstitutionMixed:            {"FRQ-001", "PMF-002", "IVT-001"},
	ConstitutionNeurogenic:       {"FRQ-001", "FRQ-002", "HBO-001"},
	ConstitutionPolyglandular:    {"IVT-001", "FRQ-003", "OZN-002"},
	ConstitutionConnectiveTissue: {"PMF-001", "LGT-001", "LGT-003"},
}

// DefaultWellnessSet is used for unmapped constitutional types and when
// nothing else qualifies.
var DefaultWellnessSet = []string{"FRQ-001", "PMF-002"}

// NormalizeConstitution lowercases and converts spaces/dashes to
// underscores, so "Connective Tissue" maps to connective_tissue.
func NormalizeConstitution(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

// KnownConstitution reports whether t has its own therapy list.
func KnownConstitution(t string) bool {
	_, ok := constitutionalTherapies[NormalizeConstitution(t)]
	return ok
}

// ConstitutionalTherapies returns the seed codes for a constitutional type.
// Unknown types get the default wellness set; an empty type gets nil.
func ConstitutionalTherapies(t string) []string {
	t = NormalizeConstitution(t)
	if t == "" {
		return nil
	}
	if codes, ok := constitutionalTherapies[t]; ok {
		return codes
	}
	return DefaultWellnessSet
}

// categoryTerms resolves questionnaire categories to target search terms.
var categoryTerms = map[string][]string{
	"physical":    {"joint", "pain", "mobility", "inflammation", "muscle"},
	"mental":      {"stress", "anxiety", "sleep", "mood", "brain"},
	"lifestyle":   {"energy", "fatigue", "vitality", "nutrition"},
	"environment": {"detox", "immune", "oxygen"},
	"history":     {"circulation", "cellular", "healing"},
}

// domainTerms covers named body-system domains, mostly from iris signs.
var domainTerms = map[string][]string{
	"sleep":          {"sleep", "insomnia", "circadian"},
	"stress":         {"stress", "anxiety", "relaxation"},
	"cardiovascular": {"circulation", "oxygen", "cellular"},
	"joint":          {"joint", "arthritis", "mobility", "pain"},
	"digestive":      {"digestive", "detox", "liver"},
	"kidney":         {"detox", "cellular", "oxygen"},
	"energy":         {"energy", "fatigue", "vitality"},
	"metabolic":      {"metabolic", "cellular", "nutrition"},
	"lymphatic":      {"lymph", "detox", "immune"},
	"nervous":        {"nervous", "stress", "brain"},

	// systems and signs read from the iris chart
	"endocrine":         {"energy", "vitality", "metabolic"},
	"hepatobiliary":     {"liver", "detox", "antioxidant"},
	"connective_tissue": {"joint", "mobility", "healing"},
	"constitutional":    {"vitality", "energy", "cellular"},
	"autonomic":         {"stress", "sleep", "relaxation"},
	"tissue":            {"healing", "cellular", "recovery"},
}

// SearchTerms resolves a domain to the terms matched against therapy
// targets. An unmapped domain searches for itself.
func SearchTerms(domain string) []string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if terms, ok := categoryTerms[d]; ok {
		return terms
	}
	if terms, ok := domainTerms[d]; ok {
		return terms
	}
	return []string{d}
}
