// pkg/store/store.go
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"visitsync/pkg/visit"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists visit records and per-unit sync checkpoints in sqlite. A
// unit is a (location, date) pair; it counts as synced once a checkpoint row
// exists, independent of how many records the date produced.
type Store struct {
	db *sql.DB
}

// Open connects to the database at the given DSN and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsSynced reports whether the (location, date) unit has a checkpoint. The
// check is exact-match and reflects every previously committed MarkSynced.
func (s *Store) IsSynced(ctx context.Context, location, date string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checkpoints WHERE location = ? AND date = ?`,
		location, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query checkpoint %s %s: %w", location, date, err)
	}
	return count > 0, nil
}

// MarkSynced records that a unit was fully processed. Replaying it is
// harmless.
func (s *Store) MarkSynced(ctx context.Context, location, date string, recordCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (location, date, record_count) VALUES (?, ?, ?)`,
		location, date, recordCount,
	)
	if err != nil {
		return fmt.Errorf("mark synced %s %s: %w", location, date, err)
	}
	return nil
}

// Persist bulk-inserts the records in one transaction. An empty slice is a
// no-op.
func (s *Store) Persist(ctx context.Context, records []visit.Visit) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO visits (location, date, status, time, patient, doctor, type, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		_, err := stmt.ExecContext(ctx,
			record.Location, record.Date, record.Status, record.Time,
			record.Patient, record.Doctor, record.Type, record.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert visit %s %s: %w", record.Location, record.Date, err)
		}
	}
	return tx.Commit()
}

// VisitsBetween returns every record for the location in [start, end],
// ordered by date then time. An empty location matches all locations.
func (s *Store) VisitsBetween(ctx context.Context, location, start, end string) ([]visit.Visit, error) {
	query := `SELECT location, date, status, time, patient, doctor, type, reason
		  FROM visits WHERE date >= ? AND date <= ?`
	args := []any{start, end}
	if location != "" {
		query += ` AND location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY date, time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []visit.Visit
	for rows.Next() {
		var record visit.Visit
		err := rows.Scan(
			&record.Location, &record.Date, &record.Status, &record.Time,
			&record.Patient, &record.Doctor, &record.Type, &record.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, record)
	}
	return visits, rows.Err()
}

// CountBetween counts a location's records in [start, end].
func (s *Store) CountBetween(ctx context.Context, location, start, end string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visits WHERE location = ? AND date >= ? AND date <= ?`,
		location, start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count visits %s: %w", location, err)
	}
	return count, nil
}

// DoctorCount pairs a doctor's display name with how many records matched.
type DoctorCount struct {
	Doctor string `json:"doctor"`
	Count  int    `json:"count"`
}

// DoctorCounts groups a location's records by doctor, descending by count,
// optionally restricted to the given status labels.
func (s *Store) DoctorCounts(ctx context.Context, location, start, end string, statuses []string) ([]DoctorCount, error) {
	query := `SELECT COALESCE(doctor, ''), COUNT(*) FROM visits
		  WHERE location = ? AND date >= ? AND date <= ?`
	args := []any{location, start, end}
	if len(statuses) > 0 {
		placeholders := strings.Repeat("?,", len(statuses))
		query += ` AND status IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` GROUP BY doctor ORDER BY COUNT(*) DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query doctor counts %s: %w", location, err)
	}
	defer rows.Close()

	var counts []DoctorCount
	for rows.Next() {
		var entry DoctorCount
		if err := rows.Scan(&entry.Doctor, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan doctor count: %w", err)
		}
		counts = append(counts, entry)
	}
	return counts, rows.Err()
}
