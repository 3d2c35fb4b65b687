package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for identity registry persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without a database dependency.
type Repository interface {
	// GetBySDID retrieves a record by stable device ID.
	// Returns ErrNotFound if no such record exists.
	GetBySDID(ctx context.Context, sdid string) (*Record, error)

	// GetByCID retrieves a record by its current connection ID.
	// Returns ErrNotFound if no record is currently bound to that CID.
	GetByCID(ctx context.Context, cid string) (*Record, error)

	// List retrieves all records.
	List(ctx context.Context) ([]Record, error)

	// Upsert inserts a new record or updates the CID/last-seen/model fields
	// of an existing one keyed by SDID.
	Upsert(ctx context.Context, rec *Record) error

	// Rebind changes the CID bound to an existing SDID, recording the
	// migration. Returns ErrNotFound if the SDID is unknown.
	Rebind(ctx context.Context, sdid, newCID string, seenAt time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// identity_registry migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `stable_device_id, connection_id, manufacturer, model, first_seen_at, last_seen_at`

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var firstSeen, lastSeen string
	if err := row.Scan(&rec.SDID, &rec.CID, &rec.Manufacturer, &rec.Model, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	var err error
	if rec.FirstSeenAt, err = time.Parse(time.RFC3339, firstSeen); err != nil {
		return nil, fmt.Errorf("parsing first_seen_at: %w", err)
	}
	if rec.LastSeenAt, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}
	return &rec, nil
}

// GetBySDID retrieves a record by stable device ID.
func (r *SQLiteRepository) GetBySDID(ctx context.Context, sdid string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_registry WHERE stable_device_id = ?`, sdid)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying record by sdid: %w", err)
	}
	return rec, nil
}

// GetByCID retrieves a record by its current connection ID.
func (r *SQLiteRepository) GetByCID(ctx context.Context, cid string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM identity_registry WHERE connection_id = ?`, cid)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying record by cid: %w", err)
	}
	return rec, nil
}

// List retrieves all records.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM identity_registry ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var firstSeen, lastSeen string
		if err := rows.Scan(&rec.SDID, &rec.CID, &rec.Manufacturer, &rec.Model, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if rec.FirstSeenAt, err = time.Parse(time.RFC3339, firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen_at: %w", err)
		}
		if rec.LastSeenAt, err = time.Parse(time.RFC3339, lastSeen); err != nil {
			return nil, fmt.Errorf("parsing last_seen_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Upsert inserts a new record or updates the CID/last-seen/model fields of
// an existing one keyed by SDID. Writer-last-wins: a concurrent resolver
// racing on the same SDID simply overwrites the losing write's CID/model,
// which self-corrects on the next successful probe.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *Record) error {
	now := rec.LastSeenAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	firstSeen := rec.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identity_registry (stable_device_id, connection_id, manufacturer, model, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(stable_device_id) DO UPDATE SET
			connection_id = excluded.connection_id,
			manufacturer  = excluded.manufacturer,
			model         = excluded.model,
			last_seen_at  = excluded.last_seen_at`,
		rec.SDID, rec.CID, rec.Manufacturer, rec.Model,
		firstSeen.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

// Rebind changes the CID bound to an existing SDID.
func (r *SQLiteRepository) Rebind(ctx context.Context, sdid, newCID string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identity_registry SET connection_id = ?, last_seen_at = ? WHERE stable_device_id = ?`,
		newCID, seenAt.Format(time.RFC3339), sdid)
	if err != nil {
		return fmt.Errorf("rebinding record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rebind result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
