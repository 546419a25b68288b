package sentinelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemParseError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("malformed timestamp")
	err := &ItemParseError{RawID: "RAW-1", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "RAW-1")
}

func TestStoreError_AsMatchesType(t *testing.T) {
	var err error = &StoreError{Op: "insert raw item", Cause: errors.New("database is locked")}

	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "insert raw item", se.Op)
}

func TestConfigError_AsMatchesType(t *testing.T) {
	var err error = &ConfigError{Field: "sources[0].tier", Cause: errors.New("unknown tier")}

	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestQualityCapNote_FormatsReason(t *testing.T) {
	note := QualityCapNote(2, 0, "no facilities linked")
	assert.Contains(t, note, "2 -> 0")
	assert.Contains(t, note, "no facilities linked")
}
