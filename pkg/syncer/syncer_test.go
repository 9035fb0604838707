// pkg/syncer/syncer_test.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"visitsync/pkg/config"
	"visitsync/pkg/log"
	"visitsync/pkg/scraper"
	"visitsync/pkg/visit"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := log.Init(false); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func unitKey(location, date string) string {
	return location + "|" + date
}

type fakeStore struct {
	synced     map[string]int
	persisted  []visit.Visit
	persistErr error
	markErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{synced: map[string]int{}}
}

func (s *fakeStore) IsSynced(_ context.Context, location, date string) (bool, error) {
	_, ok := s.synced[unitKey(location, date)]
	return ok, nil
}

func (s *fakeStore) Persist(_ context.Context, records []visit.Visit) error {
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted = append(s.persisted, records...)
	return nil
}

func (s *fakeStore) MarkSynced(_ context.Context, location, date string, recordCount int) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.synced[unitKey(location, date)] = recordCount
	return nil
}

type fakeDriver struct {
	loginErr      error
	selectErrs    map[string]error
	slotsByUnit   map[string]bool
	recordsByUnit map[string][]visit.Visit
	selected      []string
	datesSet      []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		selectErrs:    map[string]error{},
		slotsByUnit:   map[string]bool{},
		recordsByUnit: map[string][]visit.Visit{},
	}
}

func (d *fakeDriver) Login(context.Context) error { return d.loginErr }

func (d *fakeDriver) SelectLocation(_ context.Context, name string) error {
	if err := d.selectErrs[name]; err != nil {
		return err
	}
	d.selected = append(d.selected, name)
	return nil
}

func (d *fakeDriver) SetDate(_ context.Context, dateStr string) (bool, error) {
	d.datesSet = append(d.datesSet, dateStr)
	return d.slotsByUnit[dateStr], nil
}

func (d *fakeDriver) Extract(_ context.Context, location config.Location, dateStr string) ([]visit.Visit, error) {
	return d.recordsByUnit[unitKey(location.Name, dateStr)], nil
}

func day(value string) time.Time {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func sampleRecords(location, date string, count int) []visit.Visit {
	records := make([]visit.Visit, count)
	for index := range records {
		records[index] = visit.Visit{
			Location: location,
			Date:     date,
			Time:     fmt.Sprintf("9:%02dAM", index),
			Patient:  fmt.Sprintf("Patient %d", index),
		}
	}
	return records
}

func TestRunExcludesSundays(t *testing.T) {
	driver := newFakeDriver()
	store := newFakeStore()

	// 2025-06-07 is a Saturday, 2025-06-08 a Sunday.
	_, err := New(driver, store).Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-07"), day("2025-06-09"))
	require.NoError(t, err)

	require.Equal(t, []string{"2025-06-07", "2025-06-09"}, driver.datesSet)
}

func TestRunIdempotentResume(t *testing.T) {
	driver := newFakeDriver()
	driver.slotsByUnit["2025-06-02"] = true
	driver.recordsByUnit[unitKey("Albany Park", "2025-06-02")] = sampleRecords("Albany Park", "2025-06-02", 2)
	store := newFakeStore()

	runner := New(driver, store)
	first, err := runner.Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err)
	require.Equal(t, 1, first.Persisted)
	require.Len(t, store.persisted, 2)

	second, err := runner.Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err)
	require.Equal(t, 1, second.SkippedSynced)
	require.Equal(t, 0, second.Persisted)
	require.Len(t, store.persisted, 2, "a resumed run must not re-insert records")
}

func TestRunNoSlotsDoesNotCheckpoint(t *testing.T) {
	driver := newFakeDriver()
	store := newFakeStore()

	summary, err := New(driver, store).Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err)

	require.Equal(t, 1, summary.SkippedNoSlots)
	require.Empty(t, store.persisted)
	require.Empty(t, store.synced, "a no-slots unit must stay pending")
}

func TestRunEmptyExtractionMarksSyncedWithZeroRecords(t *testing.T) {
	driver := newFakeDriver()
	driver.slotsByUnit["2025-06-02"] = true
	store := newFakeStore()

	summary, err := New(driver, store).Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err)

	require.Equal(t, 1, summary.Empty)
	require.Empty(t, store.persisted)
	require.Equal(t, 0, store.synced[unitKey("Albany Park", "2025-06-02")])
}

func TestRunPersistFailureLeavesUnitPending(t *testing.T) {
	driver := newFakeDriver()
	driver.slotsByUnit["2025-06-02"] = true
	driver.recordsByUnit[unitKey("Albany Park", "2025-06-02")] = sampleRecords("Albany Park", "2025-06-02", 1)
	store := newFakeStore()
	store.persistErr = errors.New("disk full")

	summary, err := New(driver, store).Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err, "a persist failure must not abort the run")

	require.Equal(t, 1, summary.Failed)
	require.Empty(t, store.synced)
}

func TestRunLocationNotFoundContinuesWithRemaining(t *testing.T) {
	driver := newFakeDriver()
	driver.selectErrs["Nowhere"] = fmt.Errorf("%q: %w", "Nowhere", scraper.ErrLocationNotFound)
	driver.slotsByUnit["2025-06-02"] = true
	driver.recordsByUnit[unitKey("Albany Park", "2025-06-02")] = sampleRecords("Albany Park", "2025-06-02", 1)
	store := newFakeStore()

	summary, err := New(driver, store).Run(context.Background(),
		[]string{"Nowhere", "Albany Park"}, day("2025-06-02"), day("2025-06-02"))
	require.NoError(t, err)

	require.Equal(t, 1, summary.LocationsFailed)
	require.Equal(t, 1, summary.Persisted)
	require.Equal(t, []string{"Albany Park"}, driver.selected)
}

func TestRunAuthenticationFailureAborts(t *testing.T) {
	driver := newFakeDriver()
	driver.loginErr = &scraper.AuthenticationError{Step: "username field"}
	store := newFakeStore()

	_, err := New(driver, store).Run(context.Background(),
		[]string{"Albany Park"}, day("2025-06-02"), day("2025-06-02"))

	var authErr *scraper.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Empty(t, driver.datesSet)
}
