package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentinelrisk/hardstop/internal/types"
)

func TestEvaluate_NoFacilitiesCapsZero(t *testing.T) {
	ev := types.Event{Title: "Fire sale at warehouse"}
	res := Evaluate(ev, 0, nil, 2, types.DefaultQualityConfig())
	assert.Equal(t, 0, res.MaxAllowedClass)
}

func TestEvaluate_FireSaleIsNotAHighImpactKeyword(t *testing.T) {
	assert.False(t, hasHighImpactKeyword("Fire sale at warehouse", ""))
}

func TestEvaluate_StrikePriceIsNotAHighImpactKeyword(t *testing.T) {
	assert.False(t, hasHighImpactKeyword("Stock hits new strike price", ""))
}

func TestEvaluate_SpillAtPlantIsHighImpact(t *testing.T) {
	assert.True(t, hasHighImpactKeyword("Chemical spill at PLANT-01 facility", ""))
}

func TestEvaluate_BareKeywordWithLocationSignalCounts(t *testing.T) {
	assert.True(t, hasHighImpactKeyword("Strike reported", "Workers walked out in Houston, TX today"))
}

func TestEvaluate_AmbiguousBelowMinConfidenceCapsZero(t *testing.T) {
	ev := types.Event{
		Facilities:     []string{"PLANT-01", "PLANT-02"},
		LinkProvenance: map[string]string{"facility": types.ProvenanceCityStateAmbiguous},
		LinkConfidence: map[string]float64{"facility": 0.40},
	}
	res := Evaluate(ev, 0, nil, 2, types.DefaultQualityConfig())
	assert.Equal(t, 0, res.MaxAllowedClass)
}

func TestEvaluate_AmbiguousWithTwoCompensatorsCapsOne(t *testing.T) {
	ev := types.Event{
		Title:          "Chemical spill at PLANT-01 facility",
		Facilities:     []string{"PLANT-01", "PLANT-02"},
		LinkProvenance: map[string]string{"facility": types.ProvenanceCityStateAmbiguous},
		LinkConfidence: map[string]float64{"facility": 0.55, "lanes": 0.75},
	}
	res := Evaluate(ev, 5, nil, 3, types.DefaultQualityConfig())
	assert.Equal(t, 1, res.MaxAllowedClass)
}

func TestEvaluate_MissingConfidenceDefaultsToZero(t *testing.T) {
	ev := types.Event{Facilities: []string{"PLANT-01"}}
	res := Evaluate(ev, 4, nil, 2, types.DefaultQualityConfig())
	assert.Equal(t, 0.0, res.FacilityConfidence)
	assert.Equal(t, 0, res.MaxAllowedClass)
}

func TestEvaluate_StrongMatchWithMultipleFactorsCapsTwo(t *testing.T) {
	ev := types.Event{
		Title:          "Chemical spill at PLANT-01 facility",
		Facilities:     []string{"PLANT-01"},
		LinkConfidence: map[string]float64{"facility": 0.90},
	}
	breakdown := []string{"R1: linked facility criticality >= 7 (+2)", "R2: linked lane volume >= 7 (+1)"}
	res := Evaluate(ev, 6, breakdown, 2, types.DefaultQualityConfig())
	assert.Equal(t, 2, res.MaxAllowedClass)
}

func TestApplyPolicy_PolicyBNeverExceedsCap(t *testing.T) {
	final, _ := ApplyPolicy(2, 1, 2, true)
	assert.LessOrEqual(t, final, 1)
}

func TestApplyPolicy_PolicyAFloorCanExceedCap(t *testing.T) {
	final, notes := ApplyPolicy(2, 0, 2, false)
	assert.Equal(t, 2, final)
	assert.NotEmpty(t, notes)
}

func TestApplyPolicy_FloorRaisesTowardCapUnderPolicyB(t *testing.T) {
	final, notes := ApplyPolicy(0, 1, 1, true)
	assert.Equal(t, 1, final)
	assert.NotEmpty(t, notes)
}
