// main_test.go
package main

import (
	"testing"

	"visitsync/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestParseArgsRequiresDates(t *testing.T) {
	_, err := parseArgs(nil)
	require.Error(t, err)

	_, err = parseArgs([]string{"2025-06-01"})
	require.Error(t, err)
}

func TestParseArgsDefaultsToAllLocations(t *testing.T) {
	parsed, err := parseArgs([]string{"2025-06-01", "2025-06-07"})
	require.NoError(t, err)
	require.Equal(t, config.DefaultLocationNames(), parsed.locationNames)
	require.Equal(t, "2025-06-01", parsed.startDate.Format(dateLayout))
	require.Equal(t, "2025-06-07", parsed.endDate.Format(dateLayout))
}

func TestParseArgsWithExplicitLocations(t *testing.T) {
	parsed, err := parseArgs([]string{"Oak Lawn", "Schaumburg", "2025-06-01", "2025-06-07"})
	require.NoError(t, err)
	require.Equal(t, []string{"Oak Lawn", "Schaumburg"}, parsed.locationNames)
}

func TestParseArgsRejectsMalformedDates(t *testing.T) {
	_, err := parseArgs([]string{"06/01/2025", "2025-06-07"})
	require.Error(t, err)

	_, err = parseArgs([]string{"2025-06-01", "tomorrow"})
	require.Error(t, err)

	// Shape matches, calendar does not.
	_, err = parseArgs([]string{"2025-13-01", "2025-13-02"})
	require.Error(t, err)
}

func TestParseArgsRejectsInvertedRange(t *testing.T) {
	_, err := parseArgs([]string{"2025-06-07", "2025-06-01"})
	require.Error(t, err)
}
