// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/config"
	"github.com/tamzrod/modbus-resetter/internal/reset"
	"github.com/tamzrod/modbus-resetter/internal/telemetry"
)

// db is the slice of *pgxpool.Pool the store needs.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists reset audit rows, telemetry samples and the daily guard.
type Store struct {
	db  db
	log zerolog.Logger
}

func New(db db, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// ------------------------------------------------------------
// SCHEMA
// ------------------------------------------------------------

const (
	createAttempts = `CREATE TABLE IF NOT EXISTS reset_attempts (
	id          BIGSERIAL PRIMARY KEY,
	event_id    TEXT UNIQUE NOT NULL,
	device      TEXT NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	attempt     INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	max_retries INTEGER NOT NULL,
	counter     INTEGER,
	succeeded   BOOLEAN NOT NULL,
	exhausted   BOOLEAN NOT NULL,
	error       TEXT
)`

	createCycles = `CREATE TABLE IF NOT EXISTS reset_cycles (
	cycle_id    TEXT PRIMARY KEY,
	date        DATE NOT NULL,
	manual      BOOLEAN NOT NULL,
	succeeded   BOOLEAN NOT NULL,
	devices     INTEGER NOT NULL,
	failed      TEXT[] NOT NULL DEFAULT '{}',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

	createGuard = `CREATE TABLE IF NOT EXISTS reset_guard (
	id              SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	last_reset_date DATE NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	createTelemetry = `CREATE TABLE IF NOT EXISTS %s (
	event_id  TEXT PRIMARY KEY,
	at        TIMESTAMPTZ NOT NULL,
	counter   INTEGER,
	registers INTEGER[],
	error     TEXT
)`
)

// EnsureSchema creates the shared tables and one telemetry table per device.
func (s *Store) EnsureSchema(ctx context.Context, devices []string) error {
	for _, stmt := range []string{createAttempts, createCycles, createGuard} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: schema: %w", err)
		}
	}

	for _, code := range devices {
		stmt := fmt.Sprintf(createTelemetry, quotedTable(code))
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: telemetry table for %s: %w", code, err)
		}
	}
	return nil
}

// TableName is the telemetry table of one device.
func TableName(code string) string {
	return "telemetry_" + config.DeviceSlug(code)
}

func quotedTable(code string) string {
	return pgx.Identifier{TableName(code)}.Sanitize()
}

// ------------------------------------------------------------
// WRITES
// ------------------------------------------------------------

const insertAttempt = `INSERT INTO reset_attempts
	(event_id, device, at, attempt, retry_count, max_retries, counter, succeeded, exhausted, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (event_id) DO NOTHING`

// RecordAttempt stores one attempt. Redelivered events are ignored.
func (s *Store) RecordAttempt(ctx context.Context, eventID string, a telemetry.AttemptData) error {
	_, err := s.db.Exec(ctx, insertAttempt,
		eventID, a.Device, a.At, a.Attempt, a.RetryCount, a.MaxRetries,
		counterArg(a.Counter), a.Succeeded, a.Exhausted, nullString(a.Error),
	)
	if err != nil {
		return fmt.Errorf("store: record attempt: %w", err)
	}
	return nil
}

const insertCycle = `INSERT INTO reset_cycles
	(cycle_id, date, manual, succeeded, devices, failed, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (cycle_id) DO NOTHING`

// RecordCycle stores one fleet cycle. Redelivered events are ignored.
func (s *Store) RecordCycle(ctx context.Context, c telemetry.CycleData) error {
	failed := c.Failed
	if failed == nil {
		failed = []string{}
	}
	_, err := s.db.Exec(ctx, insertCycle,
		c.CycleID, c.Date, c.Manual, c.Succeeded, c.Devices, failed, c.StartedAt, c.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("store: record cycle: %w", err)
	}
	return nil
}

const insertSample = `INSERT INTO %s (event_id, at, counter, registers, error)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO NOTHING`

// InsertSample stores one telemetry sample in the device's own table.
func (s *Store) InsertSample(ctx context.Context, eventID string, d telemetry.SampleData) error {
	regs := make([]int32, len(d.Registers))
	for i, r := range d.Registers {
		regs[i] = int32(r)
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(insertSample, quotedTable(d.Device)),
		eventID, d.At, counterArg(d.Counter), regs, nullString(d.Error),
	)
	if err != nil {
		return fmt.Errorf("store: insert sample %s: %w", d.Device, err)
	}
	return nil
}

// ------------------------------------------------------------
// DAILY GUARD
// ------------------------------------------------------------

const (
	selectGuard = `SELECT to_char(last_reset_date, 'YYYY-MM-DD') FROM reset_guard WHERE id = 1`
	upsertGuard = `INSERT INTO reset_guard (id, last_reset_date, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE
SET last_reset_date = GREATEST(reset_guard.last_reset_date, EXCLUDED.last_reset_date),
    updated_at = now()`
)

// LoadLastResetDate returns "" when no day has completed yet.
func (s *Store) LoadLastResetDate(ctx context.Context) (string, error) {
	var date string
	err := s.db.QueryRow(ctx, selectGuard).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: load guard: %w", err)
	}
	return date, nil
}

// SaveLastResetDate never moves the stored date backwards.
func (s *Store) SaveLastResetDate(ctx context.Context, date string) error {
	if _, err := s.db.Exec(ctx, upsertGuard, date); err != nil {
		return fmt.Errorf("store: save guard: %w", err)
	}
	return nil
}

var _ reset.GuardStore = (*Store)(nil)

// ---- helpers ----

func counterArg(c *uint16) any {
	if c == nil {
		return nil
	}
	return int32(*c)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
