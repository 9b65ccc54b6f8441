// Package resultstore keeps classification results in a SQLite database so
// batches can be compared across weight versions and over time.
package resultstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("classification not found")

// Record is one stored classification.
type Record struct {
	ID             string
	Source         string
	DeviceID       string
	DeviceType     ivsweep.DeviceType
	Confidence     float64
	WeightsVersion string
	Warnings       []string
	Result         *ivsweep.Result
	CreatedAt      time.Time
}

// Store is a handle on the results database. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens or creates the database at path and applies pending schema
// migrations. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with the clock used to stamp saved records.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serialises
	// writers the way SQLite would anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{db: db, clock: clock}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	opsf("opened results database %s", path)
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// The migrate instance is not closed: closing it closes the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and dirty flag.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	opsf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// Save stores r under a new id and returns it. source names where the sweep
// came from, typically a file path.
func (s *Store) Save(ctx context.Context, source string, r *ivsweep.Result) (string, error) {
	if r == nil {
		return "", errors.New("nil result")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("failed to encode warnings: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications
			(id, source, device_id, device_type, confidence, weights_version, warnings, result, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, r.DeviceID, string(r.DeviceType), r.Confidence, r.WeightsVersion,
		string(warningsJSON), string(body), s.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert classification: %w", err)
	}
	diagf("saved %s: %s %s (%.3f)", id, source, r.DeviceType, r.Confidence)
	return id, nil
}

const selectColumns = `id, source, device_id, device_type, confidence, weights_version, warnings, result, created_unix_nanos`

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", id, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM classifications WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListBySource returns every record for source, oldest first.
func (s *Store) ListBySource(ctx context.Context, source string) ([]Record, error) {
	tracef("list source=%s", source)
	return s.query(ctx, `SELECT `+selectColumns+` FROM classifications
		WHERE source = ? ORDER BY created_unix_nanos ASC, rowid ASC`, source)
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	tracef("recent limit=%d", limit)
	return s.query(ctx, `SELECT `+selectColumns+` FROM classifications
		ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
}

// CountByType tallies stored records per device type.
func (s *Store) CountByType(ctx context.Context) (map[ivsweep.DeviceType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device_type, COUNT(*) FROM classifications GROUP BY device_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	defer rows.Close()

	counts := map[ivsweep.DeviceType]int{}
	for rows.Next() {
		var dt string
		var n int
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[ivsweep.DeviceType(dt)] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classifications: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec          Record
		deviceType   string
		warningsJSON string
		body         string
		createdNanos int64
	)
	err := sc.Scan(&rec.ID, &rec.Source, &rec.DeviceID, &deviceType, &rec.Confidence,
		&rec.WeightsVersion, &warningsJSON, &body, &createdNanos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan classification: %w", err)
	}
	rec.DeviceType = ivsweep.DeviceType(deviceType)
	rec.CreatedAt = time.Unix(0, createdNanos).UTC()

	if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
		return nil, fmt.Errorf("classification %s: bad warnings: %w", rec.ID, err)
	}
	rec.Result = &ivsweep.Result{}
	if err := json.Unmarshal([]byte(body), rec.Result); err != nil {
		return nil, fmt.Errorf("classification %s: bad result: %w", rec.ID, err)
	}
	return &rec, nil
}
