// pkg/config/config.go
package config

import (
	"os"
	"strings"
)

const (
	// LoginURL is the entry point of the practice-management login flow.
	LoginURL = "https://login.nextech.com/"

	// CutOffDate separates the old schedule layout from the current one.
	// Dates strictly before it are extracted with the legacy single-block
	// strategy. ISO dates compare correctly as strings.
	CutOffDate = "2025-05-31"
)

// Location describes one clinic: the ordered slot-group container IDs of its
// schedule board and the status label each group carries. Loaded once,
// immutable at run time.
type Location struct {
	Name          string
	SlotGroups    []string
	StatusByGroup map[string]string
}

// ExitStatuses returns the subset of this location's status labels that mark
// a completed visit, in slot-group order.
func (l Location) ExitStatuses() []string {
	var statuses []string
	for _, group := range l.SlotGroups {
		if label, ok := l.StatusByGroup[group]; ok && strings.Contains(label, "Exit") {
			statuses = append(statuses, label)
		}
	}
	return statuses
}

var allLocations = []Location{
	{
		Name:          "Oak Lawn",
		SlotGroups:    []string{"box63", "box66", "box366"},
		StatusByGroup: map[string]string{"box63": "No-Show/Resched", "box66": "MD Exit", "box366": "OD/Post-Op Exit"},
	},
	{
		Name:          "Orland Park",
		SlotGroups:    []string{"box96", "box97", "box367"},
		StatusByGroup: map[string]string{"box96": "No-Show/Resced", "box97": "MD Exit", "box367": "OD Exit"},
	},
	{
		Name:          "Albany Park",
		SlotGroups:    []string{"box358", "box352"},
		StatusByGroup: map[string]string{"box358": "No-Show/Resced", "box352": "Exit"},
	},
	{
		Name:          "Buffalo Grove",
		SlotGroups:    []string{"box387", "box388"},
		StatusByGroup: map[string]string{"box387": "No-Show/Resced", "box388": "Exit"},
	},
	{
		Name:          "OakBrook",
		SlotGroups:    []string{"box411", "box412"},
		StatusByGroup: map[string]string{"box411": "No-Show/Resced", "box412": "Exit"},
	},
	{
		Name:          "Schaumburg",
		SlotGroups:    []string{"box439", "box440"},
		StatusByGroup: map[string]string{"box439": "No-Show/Resced", "box440": "Exit"},
	},
}

// Locations returns a copy of the full clinic table.
func Locations() []Location {
	copied := make([]Location, len(allLocations))
	copy(copied, allLocations)
	return copied
}

// DefaultLocationNames lists every configured clinic, used when the caller
// names none.
func DefaultLocationNames() []string {
	names := make([]string, len(allLocations))
	for index, location := range allLocations {
		names[index] = location.Name
	}
	return names
}

// LookupLocation resolves a clinic by exact name.
func LookupLocation(name string) (Location, bool) {
	for _, location := range allLocations {
		if location.Name == name {
			return location, true
		}
	}
	return Location{}, false
}

// Credentials holds the login pair read from the environment.
type Credentials struct {
	Username string
	Password string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		Username: os.Getenv("NEXTECH_USER"),
		Password: os.Getenv("NEXTECH_PASS"),
	}
}

// StoreDSN returns the sqlite connection string, defaulting to a local file.
func StoreDSN() string {
	if dsn := os.Getenv("VISITS_DB"); dsn != "" {
		return dsn
	}
	return "visits.db"
}

// ListenAddr returns the reporting API bind address.
func ListenAddr() string {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":4000"
}
