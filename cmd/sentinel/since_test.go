package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSinceHours_ParsesHoursAndDays(t *testing.T) {
	h, err := parseSinceHours("24h")
	assert.NoError(t, err)
	assert.Equal(t, 24, h)

	d, err := parseSinceHours("7d")
	assert.NoError(t, err)
	assert.Equal(t, 168, d)
}

func TestParseSinceHours_RejectsEmptyAndMalformed(t *testing.T) {
	_, err := parseSinceHours("")
	assert.Error(t, err)

	_, err = parseSinceHours("seven")
	assert.Error(t, err)

	_, err = parseSinceHours("24w")
	assert.Error(t, err)
}
