package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrisk/hardstop/internal/types"
)

func TestParseTier_DefaultsEmptyToLocal(t *testing.T) {
	tier, err := parseTier("")
	require.NoError(t, err)
	assert.Equal(t, types.TierLocal, tier)
}

func TestParseTier_AcceptsAllThreeTiers(t *testing.T) {
	for in, want := range map[string]types.Tier{
		"global":   types.TierGlobal,
		"regional": types.TierRegional,
		"local":    types.TierLocal,
	} {
		got, err := parseTier(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseTier_RejectsUnknownValue(t *testing.T) {
	_, err := parseTier("planetary")
	assert.Error(t, err)
}
