package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scraphaul/dispatch/core/model"
	corestore "github.com/scraphaul/dispatch/core/store"
)

// SQLiteStore persists pickups, the rejection ledger and the vendor registry
// to a SQLite database. Every transition is a single conditional UPDATE whose
// WHERE clause encodes the precondition; zero affected rows means the caller
// lost the race.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ corestore.PickupStore     = (*SQLiteStore)(nil)
	_ corestore.RejectionLedger = (*SQLiteStore)(nil)
	_ corestore.VendorDirectory = (*SQLiteStore)(nil)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pickups (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    address TEXT NOT NULL,
    lat REAL,
    lng REAL,
    slot_start INTEGER NOT NULL DEFAULT 0,
    slot_end INTEGER NOT NULL DEFAULT 0,
    assigned_vendor TEXT NOT NULL DEFAULT '',
    assignment_expires_at INTEGER,
    cancelled_at INTEGER,
    completed_at INTEGER,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pickup_items (
    pickup_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    scrap_type TEXT NOT NULL,
    estimated_kg REAL NOT NULL,
    PRIMARY KEY (pickup_id, position)
);
CREATE TABLE IF NOT EXISTS rejections (
    pickup_id TEXT NOT NULL,
    vendor_ref TEXT NOT NULL,
    reason TEXT NOT NULL,
    ts INTEGER NOT NULL,
    PRIMARY KEY (pickup_id, vendor_ref)
);
CREATE TABLE IF NOT EXISTS vendors (
    vendor_ref TEXT PRIMARY KEY,
    lat REAL NOT NULL,
    lng REAL NOT NULL,
    callback_url TEXT NOT NULL,
    available INTEGER NOT NULL DEFAULT 0,
    last_seen INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pickups_expiry ON pickups (status, assignment_expires_at);
`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize access instead of surfacing
	// SQLITE_BUSY to the engine.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func nanos(t time.Time) int64 { return t.UnixNano() }

// Create durably inserts a new pickup and its items in status REQUESTED.
func (s *SQLiteStore) Create(ctx context.Context, p model.Pickup) (model.Pickup, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Pickup{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var lat, lng any
	if p.Location != nil {
		lat, lng = p.Location.Lat, p.Location.Lng
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO pickups
        (id, customer_id, status, address, lat, lng, slot_start, slot_end, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CustomerID, model.StatusRequested.String(), p.Address, lat, lng,
		nanos(p.TimeSlot.Start), nanos(p.TimeSlot.End), nanos(p.CreatedAt))
	if err != nil {
		return model.Pickup{}, err
	}
	for i, it := range p.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pickup_items (pickup_id, position, scrap_type, estimated_kg) VALUES (?, ?, ?, ?)`,
			p.ID, i, it.ScrapType, it.EstimatedKg); err != nil {
			return model.Pickup{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Pickup{}, err
	}
	return s.Get(ctx, p.ID)
}

// Get returns the current record.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Pickup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, customer_id, status, address, lat, lng,
        slot_start, slot_end, assigned_vendor, assignment_expires_at, cancelled_at, completed_at, created_at
        FROM pickups WHERE id = ?`, id)

	var (
		p                    model.Pickup
		status               string
		lat, lng             sql.NullFloat64
		slotStart, slotEnd   int64
		expiry, cancl, compl sql.NullInt64
		created              int64
	)
	err := row.Scan(&p.ID, &p.CustomerID, &status, &p.Address, &lat, &lng,
		&slotStart, &slotEnd, &p.AssignedVendor, &expiry, &cancl, &compl, &created)
	if err == sql.ErrNoRows {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.Pickup{}, err
	}
	st, ok := model.StatusFromString(status)
	if !ok {
		return model.Pickup{}, fmt.Errorf("pickup %s: unknown status %q", id, status)
	}
	p.Status = st
	if lat.Valid && lng.Valid {
		p.Location = &model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.TimeSlot = model.TimeSlot{Start: time.Unix(0, slotStart), End: time.Unix(0, slotEnd)}
	if expiry.Valid {
		t := time.Unix(0, expiry.Int64)
		p.AssignmentExpiresAt = &t
	}
	if cancl.Valid {
		t := time.Unix(0, cancl.Int64)
		p.CancelledAt = &t
	}
	if compl.Valid {
		t := time.Unix(0, compl.Int64)
		p.CompletedAt = &t
	}
	p.CreatedAt = time.Unix(0, created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT scrap_type, estimated_kg FROM pickup_items WHERE pickup_id = ? ORDER BY position`, id)
	if err != nil {
		return model.Pickup{}, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var it model.PickupItem
		if err := rows.Scan(&it.ScrapType, &it.EstimatedKg); err != nil {
			return model.Pickup{}, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// transition runs a conditional UPDATE and maps zero affected rows to
// ErrConflict (or ErrNotFound when the pickup does not exist at all).
func (s *SQLiteStore) transition(ctx context.Context, id, query string, args ...any) (model.Pickup, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Pickup{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Pickup{}, err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pickups WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return model.Pickup{}, corestore.ErrNotFound
		} else if err != nil {
			return model.Pickup{}, err
		}
		return model.Pickup{}, corestore.ErrConflict
	}
	return s.Get(ctx, id)
}

// HoldOffer tentatively assigns the pickup to vendorRef until expiresAt.
func (s *SQLiteStore) HoldOffer(ctx context.Context, id, vendorRef string, expiresAt time.Time) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?, assigned_vendor = ?, assignment_expires_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		model.StatusFindingVendor.String(), vendorRef, nanos(expiresAt),
		id, model.StatusRequested.String(), model.StatusFindingVendor.String())
}

// ReleaseOffer clears the hold while it still belongs to vendorRef.
func (s *SQLiteStore) ReleaseOffer(ctx context.Context, id, vendorRef string) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET assigned_vendor = '', assignment_expires_at = NULL
         WHERE id = ? AND status = ? AND assigned_vendor = ?`,
		id, model.StatusFindingVendor.String(), vendorRef)
}

// ConfirmAssignment promotes the hold to ASSIGNED iff still live at now.
// The expiry comparison is strict: an acceptance landing exactly at the
// expiry instant loses.
func (s *SQLiteStore) ConfirmAssignment(ctx context.Context, id, vendorRef string, now time.Time) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?, assignment_expires_at = NULL
         WHERE id = ? AND status = ? AND assigned_vendor = ? AND assignment_expires_at > ?`,
		model.StatusAssigned.String(),
		id, model.StatusFindingVendor.String(), vendorRef, nanos(now))
}

// MarkNoVendor terminates the pickup with NO_VENDOR_AVAILABLE.
func (s *SQLiteStore) MarkNoVendor(ctx context.Context, id string) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?, assigned_vendor = '', assignment_expires_at = NULL
         WHERE id = ? AND status IN (?, ?)`,
		model.StatusNoVendorAvailable.String(),
		id, model.StatusRequested.String(), model.StatusFindingVendor.String())
}

// Advance moves the pickup between post-assignment statuses.
func (s *SQLiteStore) Advance(ctx context.Context, id, vendorRef string, from, to model.Status) (model.Pickup, error) {
	if to == model.StatusCompleted {
		return s.transition(ctx, id,
			`UPDATE pickups SET status = ?, completed_at = ?
             WHERE id = ? AND status = ? AND assigned_vendor = ?`,
			to.String(), nanos(time.Now()), id, from.String(), vendorRef)
	}
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?
         WHERE id = ? AND status = ? AND assigned_vendor = ?`,
		to.String(), id, from.String(), vendorRef)
}

// Cancel terminates the pickup from REQUESTED or FINDING_VENDOR.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?, cancelled_at = ?, assigned_vendor = '', assignment_expires_at = NULL
         WHERE id = ? AND status IN (?, ?)`,
		model.StatusCancelled.String(), nanos(time.Now()),
		id, model.StatusRequested.String(), model.StatusFindingVendor.String())
}

// ClearOffer resets a pre-assignment pickup back to REQUESTED.
func (s *SQLiteStore) ClearOffer(ctx context.Context, id string) (model.Pickup, error) {
	return s.transition(ctx, id,
		`UPDATE pickups SET status = ?, assigned_vendor = '', assignment_expires_at = NULL
         WHERE id = ? AND status IN (?, ?)`,
		model.StatusRequested.String(),
		id, model.StatusRequested.String(), model.StatusFindingVendor.String())
}

// ListExpiredOffers returns FINDING_VENDOR pickups whose expiry lies before now.
func (s *SQLiteStore) ListExpiredOffers(ctx context.Context, now time.Time) ([]model.Pickup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM pickups WHERE status = ? AND assignment_expires_at IS NOT NULL AND assignment_expires_at < ?`,
		model.StatusFindingVendor.String(), nanos(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Pickup, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Add appends a rejection record. Re-recording the same vendor for a pickup
// is a no-op, matching the ledger's set semantics.
func (s *SQLiteStore) Add(ctx context.Context, rec model.RejectionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rejections (pickup_id, vendor_ref, reason, ts) VALUES (?, ?, ?, ?)`,
		rec.PickupID, rec.VendorRef, string(rec.Reason), nanos(rec.Timestamp))
	return err
}

// Rejected returns the vendors excluded for the pickup.
func (s *SQLiteStore) Rejected(ctx context.Context, pickupID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vendor_ref FROM rejections WHERE pickup_id = ?`, pickupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]bool)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		out[ref] = true
	}
	return out, rows.Err()
}

// UpsertVendor registers or refreshes a vendor in the directory.
func (s *SQLiteStore) UpsertVendor(ctx context.Context, v model.VendorCandidate) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO vendors (vendor_ref, lat, lng, callback_url, available, last_seen)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(vendor_ref) DO UPDATE SET
            lat = excluded.lat, lng = excluded.lng, callback_url = excluded.callback_url,
            available = excluded.available, last_seen = excluded.last_seen`,
		v.VendorRef, v.Location.Lat, v.Location.Lng, v.CallbackURL, boolToInt(v.Available), nanos(v.LastSeen))
	return err
}

// Candidates returns a fresh snapshot of the vendor registry.
func (s *SQLiteStore) Candidates(ctx context.Context) ([]model.VendorCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vendor_ref, lat, lng, callback_url, available, last_seen FROM vendors`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.VendorCandidate
	for rows.Next() {
		var (
			v         model.VendorCandidate
			available int
			lastSeen  int64
		)
		if err := rows.Scan(&v.VendorRef, &v.Location.Lat, &v.Location.Lng, &v.CallbackURL, &available, &lastSeen); err != nil {
			return nil, err
		}
		v.Available = available != 0
		v.LastSeen = time.Unix(0, lastSeen)
		out = append(out, v)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
