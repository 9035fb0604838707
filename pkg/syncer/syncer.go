// pkg/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"time"

	"visitsync/pkg/config"
	"visitsync/pkg/log"
	"visitsync/pkg/scraper"
	"visitsync/pkg/visit"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// CheckpointStore is the persistence capability the orchestrator drives. A
// unit counts as synced only after MarkSynced commits; IsSynced must reflect
// every prior commit.
type CheckpointStore interface {
	IsSynced(ctx context.Context, location, date string) (bool, error)
	Persist(ctx context.Context, records []visit.Visit) error
	MarkSynced(ctx context.Context, location, date string, recordCount int) error
}

// Driver is the browser capability: one authenticated session driven
// strictly sequentially.
type Driver interface {
	Login(ctx context.Context) error
	SelectLocation(ctx context.Context, name string) error
	SetDate(ctx context.Context, dateStr string) (bool, error)
	Extract(ctx context.Context, location config.Location, dateStr string) ([]visit.Visit, error)
}

// Summary counts per-unit outcomes of one run.
type Summary struct {
	Persisted       int
	Empty           int
	SkippedSynced   int
	SkippedNoSlots  int
	Failed          int
	LocationsFailed int
}

// Syncer walks every (location, date) unit of the requested range exactly
// once, skipping units already checkpointed. Only an authentication failure
// aborts the run; everything else is isolated to its unit or location.
type Syncer struct {
	driver Driver
	store  CheckpointStore
}

func New(driver Driver, store CheckpointStore) *Syncer {
	return &Syncer{driver: driver, store: store}
}

// Run logs in once, then processes each location's date range sequentially.
// Sundays are excluded: the clinics do not operate.
func (s *Syncer) Run(ctx context.Context, locationNames []string, startDate, endDate time.Time) (Summary, error) {
	var summary Summary

	if err := s.driver.Login(ctx); err != nil {
		return summary, err
	}

	for _, locationName := range locationNames {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := s.driver.SelectLocation(ctx, locationName); err != nil {
			if errors.Is(err, scraper.ErrLocationNotFound) {
				log.L().Error("location_not_found", zap.String("location", locationName))
			} else {
				log.L().Error("location_switch_failed", zap.String("location", locationName), zap.Error(err))
			}
			summary.LocationsFailed++
			continue
		}

		location, known := config.LookupLocation(locationName)
		if !known {
			// Extraction still works for legacy dates, which need no group
			// configuration.
			location = config.Location{Name: locationName}
		}
		s.syncDateRange(ctx, location, startDate, endDate, &summary)
	}

	log.L().Info("sync_summary",
		zap.Int("persisted", summary.Persisted),
		zap.Int("empty", summary.Empty),
		zap.Int("skipped_synced", summary.SkippedSynced),
		zap.Int("skipped_no_slots", summary.SkippedNoSlots),
		zap.Int("failed", summary.Failed),
		zap.Int("locations_failed", summary.LocationsFailed),
	)
	return summary, nil
}

func (s *Syncer) syncDateRange(ctx context.Context, location config.Location, startDate, endDate time.Time, summary *Summary) {
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return
		}
		if day.Weekday() == time.Sunday {
			continue
		}
		s.syncUnit(ctx, location, day.Format(dateLayout), summary)
	}
}

// syncUnit processes one (location, date) pair. Failures are logged with
// unit context and leave the unit pending for a later run.
func (s *Syncer) syncUnit(ctx context.Context, location config.Location, dateStr string, summary *Summary) {
	unitFields := []zap.Field{zap.String("location", location.Name), zap.String("date", dateStr)}

	synced, err := s.store.IsSynced(ctx, location.Name, dateStr)
	if err != nil {
		log.L().Error("checkpoint_read_failed", append(unitFields, zap.Error(err))...)
		summary.Failed++
		return
	}
	if synced {
		log.L().Info("unit_skipped_synced", unitFields...)
		summary.SkippedSynced++
		return
	}

	hasSlots, err := s.driver.SetDate(ctx, dateStr)
	if err != nil {
		log.L().Error("date_navigation_failed", append(unitFields, zap.Error(err))...)
		summary.Failed++
		return
	}
	if !hasSlots {
		// Possibly a transient load issue, so the unit stays pending and a
		// later run retries it.
		log.L().Info("unit_no_slots", unitFields...)
		summary.SkippedNoSlots++
		return
	}

	records, err := s.driver.Extract(ctx, location, dateStr)
	if err != nil {
		log.L().Error("extraction_failed", append(unitFields, zap.Error(err))...)
		summary.Failed++
		return
	}

	if len(records) == 0 {
		if err := s.store.MarkSynced(ctx, location.Name, dateStr, 0); err != nil {
			log.L().Error("checkpoint_write_failed", append(unitFields, zap.Error(err))...)
			summary.Failed++
			return
		}
		log.L().Info("unit_empty", unitFields...)
		summary.Empty++
		return
	}

	if err := s.store.Persist(ctx, records); err != nil {
		log.L().Error("unit_persist_failed", append(unitFields, zap.Error(err))...)
		summary.Failed++
		return
	}
	if err := s.store.MarkSynced(ctx, location.Name, dateStr, len(records)); err != nil {
		log.L().Error("checkpoint_write_failed", append(unitFields, zap.Error(err))...)
		summary.Failed++
		return
	}
	log.L().Info("unit_persisted", append(unitFields, zap.Int("records", len(records)))...)
	summary.Persisted++
}
