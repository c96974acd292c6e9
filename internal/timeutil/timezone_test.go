package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTimezone(t *testing.T) {
	loc, err := LoadTimezone("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = LoadTimezone("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadTimezone("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = LoadTimezone("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestIsTimezoneValid(t *testing.T) {
	assert.False(t, IsTimezoneValid(""))
	assert.False(t, IsTimezoneValid("Not/AZone"))
	for _, tz := range CommonTimezones {
		assert.True(t, IsTimezoneValid(tz), tz)
	}
}
