package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISO8601Duration_DateAndTimeParts(t *testing.T) {
	d, err := parseISO8601Duration("P1DT2H30M15S")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour+2*time.Hour+30*time.Minute+15*time.Second, d)
}

func TestParseISO8601Duration_TimeOnly(t *testing.T) {
	d, err := parseISO8601Duration("PT15M")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)
}

func TestParseISO8601Duration_RejectsYearsAndMonths(t *testing.T) {
	_, err := parseISO8601Duration("P1Y2M3D")
	assert.Error(t, err)
}

func TestParseISO8601Duration_RejectsNonISOInput(t *testing.T) {
	_, err := parseISO8601Duration("5s")
	assert.Error(t, err)
}

func TestParseCycle_ExtractsSingleOccurrenceDuration(t *testing.T) {
	d, err := parseCycle("R3/PT1H")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)
}

func TestParseCycle_RejectsMissingSlash(t *testing.T) {
	_, err := parseCycle("R3PT1H")
	assert.Error(t, err)
}
