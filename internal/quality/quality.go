// Package quality implements C6 (§4.5): the quality validator that bounds
// a raw classification by the strength of the evidence that produced it,
// the domain's most subtle policy and the one most directly ported from
// the original alert builder's classification-cap ladder.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/types"
)

var highImpactKeywords = []string{
	"SPILL", "LEAK", "STRIKE", "WALKOUT", "CLOSURE", "CLOSED", "SHUTDOWN", "SHUT DOWN", "FIRE", "EXPLOSION",
}

var operationalNouns = []string{
	"PLANT", "FACILITY", "WAREHOUSE", "PORT", "TERMINAL", "REFINERY", "DC",
	"DISTRIBUTION", "LOGISTICS", "SHIPMENT", "LANE", "RAIL", "TRUCK", "CARRIER",
}

var cityStateRe = regexp.MustCompile(`\b[A-Z][a-zA-Z.\- ]+?,\s*[A-Za-z]{2,}\b`)
var facilityTokenRe = regexp.MustCompile(`\b(PLANT|DC|FACILITY)-[A-Z0-9]+\b`)
var dateRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)

// highImpactPhrasePatterns builds the bidirectional "(keyword) ... (noun)"
// patterns, compiled once at package init.
var highImpactPhrasePatterns = buildPhrasePatterns()

func buildPhrasePatterns() []*regexp.Regexp {
	var patterns []*regexp.Regexp
	for _, kw := range highImpactKeywords {
		for _, noun := range operationalNouns {
			patterns = append(patterns,
				regexp.MustCompile(regexp.QuoteMeta(kw)+`.{0,40}`+regexp.QuoteMeta(noun)),
				regexp.MustCompile(regexp.QuoteMeta(noun)+`.{0,40}`+regexp.QuoteMeta(kw)),
			)
		}
	}
	return patterns
}

// hasHighImpactKeyword implements the context-aware keyword detector from
// §4.5: a keyword paired with an operational noun always counts; a bare
// keyword counts only alongside a location signal. The idioms "strike
// price" and "fire sale" are blanked out before matching, so they never
// count, even next to an operational noun ("fire sale at warehouse").
func hasHighImpactKeyword(title, body string) bool {
	upper := strings.ToUpper(title + " " + body)
	for _, idiom := range []string{"FIRE SALE", "STRIKE PRICE"} {
		upper = strings.ReplaceAll(upper, idiom, " ")
	}

	for _, p := range highImpactPhrasePatterns {
		if p.MatchString(upper) {
			return true
		}
	}

	hasKeyword := false
	for _, kw := range highImpactKeywords {
		if strings.Contains(upper, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}

	return hasLocationSignal(upper)
}

func hasLocationSignal(upper string) bool {
	return cityStateRe.MatchString(upper) || facilityTokenRe.MatchString(upper) || dateRe.MatchString(upper)
}

// Result is the validator's output.
type Result struct {
	MaxAllowedClass    int
	Reasoning          []string
	HighImpactFactors  int
	FacilityConfidence float64
	FacilityProvenance string
}

// Evaluate computes the maximum classification the evidence justifies
// (§4.5). breakdown is the impact scorer's fired-rule list.
func Evaluate(ev types.Event, impactScore int, breakdown []string, trustTier int, cfg types.QualityConfig) Result {
	// §4.5: "missing link_confidence defaults every channel to 0.0."
	facilityConf := confidenceOf(ev.LinkConfidence, "facility")
	lanesConf := confidenceOf(ev.LinkConfidence, "lanes")
	shipmentsConf := confidenceOf(ev.LinkConfidence, "shipments")
	provenance := ev.LinkProvenance["facility"]

	keyword := hasHighImpactKeyword(ev.Title, ev.RawText)
	hif := countHighImpactFactors(breakdown, keyword)

	res := Result{
		FacilityConfidence: facilityConf,
		FacilityProvenance: provenance,
		HighImpactFactors:  hif,
	}

	switch {
	case len(ev.Facilities) == 0:
		res.MaxAllowedClass = 0
		res.Reasoning = append(res.Reasoning, "no facilities linked to this event")

	case provenance == types.ProvenanceCityStateAmbiguous:
		if facilityConf < cfg.MinConfidenceAmbiguous {
			res.MaxAllowedClass = 0
			res.Reasoning = append(res.Reasoning, fmt.Sprintf(
				"ambiguous facility match below min confidence %.2f", cfg.MinConfidenceAmbiguous))
			break
		}
		compensators := 0
		if trustTier == 3 {
			compensators++
		}
		if keyword {
			compensators++
		}
		if lanesConf >= 0.70 {
			compensators++
		}
		if shipmentsConf >= 0.60 {
			compensators++
		}
		if len(ev.Facilities) > 1 {
			compensators++
		}
		if impactScore >= 6 {
			compensators++
		}
		if compensators >= 2 {
			res.MaxAllowedClass = 1
			res.Reasoning = append(res.Reasoning, fmt.Sprintf(
				"ambiguous facility match compensated by %d factors", compensators))
		} else {
			res.MaxAllowedClass = 0
			res.Reasoning = append(res.Reasoning, fmt.Sprintf(
				"ambiguous facility match insufficiently compensated (%d factors)", compensators))
		}

	case facilityConf >= cfg.MinConfidenceClass2:
		switch {
		case hif >= 2:
			res.MaxAllowedClass = 2
			res.Reasoning = append(res.Reasoning, "strong facility match with multiple high-impact factors")
		case hif == 1 && impactScore >= 5:
			res.MaxAllowedClass = 2
			res.Reasoning = append(res.Reasoning, "strong facility match, one high-impact factor and elevated impact score")
		default:
			res.MaxAllowedClass = 1
			res.Reasoning = append(res.Reasoning, "strong facility match but insufficient high-impact factors for Impactful")
		}

	case facilityConf >= cfg.MinConfidenceClass1:
		switch {
		case trustTier == 3 && keyword:
			res.MaxAllowedClass = 1
			res.Reasoning = append(res.Reasoning, "moderate facility match, top-tier source with high-impact keyword")
		case trustTier >= 2:
			res.MaxAllowedClass = 1
			res.Reasoning = append(res.Reasoning, "moderate facility match from a trusted source")
		default:
			res.MaxAllowedClass = 0
			res.Reasoning = append(res.Reasoning, "moderate facility match from a low-trust source")
		}

	default:
		res.MaxAllowedClass = 0
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"facility confidence %.2f below min confidence %.2f", facilityConf, cfg.MinConfidenceClass1))
	}

	return res
}

func confidenceOf(m map[string]float64, key string) float64 {
	if m == nil {
		return 0.0
	}
	return m[key]
}

func countHighImpactFactors(breakdown []string, keyword bool) int {
	count := 0
	joined := strings.Join(breakdown, " ")
	if strings.Contains(joined, "R1") {
		count++
	}
	if strings.Contains(joined, "R2") {
		count++
	}
	if strings.Contains(joined, "R3") {
		count++
	}
	if keyword {
		count++
	}
	return count
}

// ApplyPolicy composes the quality cap with the source-supplied
// classification floor per §4.5's two policies, returning the final
// classification and any reasoning notes worth recording on the alert.
func ApplyPolicy(rawClass, cap, floor int, allowOverrideFloor bool) (int, []string) {
	var notes []string
	capped := min(rawClass, cap)
	if cap < rawClass {
		notes = append(notes, sentinelerr.QualityCapNote(rawClass, cap, "evidence quality limited classification"))
	}

	if allowOverrideFloor {
		// Policy B: floor can raise toward the cap, never above it.
		final := max(capped, min(floor, cap))
		if final > capped {
			notes = append(notes, fmt.Sprintf("classification raised %d -> %d: source classification floor", capped, final))
		}
		return final, notes
	}

	// Policy A: the floor is authoritative and may exceed the cap.
	final := max(capped, floor)
	if final > capped {
		notes = append(notes, fmt.Sprintf("classification raised %d -> %d: source classification floor exceeds quality cap under policy A", capped, final))
	}
	return final, notes
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
