package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lpoflow/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS customers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL COLLATE NOCASE,
  alias TEXT,
  customer_name TEXT NOT NULL,
  customer_number TEXT,
  trn TEXT,
  billing_address TEXT,
  shipping_address TEXT,
  payment_terms INTEGER NOT NULL DEFAULT 30,
  currency TEXT NOT NULL DEFAULT 'AED',
  delivery_calendar TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(email, customer_name)
);
CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);

CREATE TABLE IF NOT EXISTS branch_identifiers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  customer_email TEXT NOT NULL COLLATE NOCASE,
  branch_identifier TEXT NOT NULL,
  branch_name TEXT NOT NULL,
  delivery_address TEXT,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_branch_identifiers_email ON branch_identifiers(customer_email);

CREATE TABLE IF NOT EXISTS product_mappings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  customer_email TEXT NOT NULL COLLATE NOCASE,
  lpo_product_name TEXT NOT NULL,
  system_product_name TEXT NOT NULL,
  unit_price REAL NOT NULL,
  unit TEXT NOT NULL DEFAULT 'EACH',
  vat_rate REAL NOT NULL DEFAULT 5.0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(customer_email, lpo_product_name)
);

CREATE TABLE IF NOT EXISTS queue_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  origin TEXT NOT NULL,
  origin_ref TEXT,
  filename TEXT NOT NULL,
  file_path TEXT NOT NULL,
  customer_email TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  export_status TEXT NOT NULL DEFAULT '',
  parse_result TEXT,
  error_message TEXT,
  content_hash TEXT NOT NULL,
  export_ref TEXT,
  export_path TEXT,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  processed_at TEXT,
  exported_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status);
CREATE INDEX IF NOT EXISTS idx_queue_items_hash ON queue_items(content_hash);

CREATE TABLE IF NOT EXISTS parsing_failures (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  filename TEXT NOT NULL,
  customer_email TEXT,
  error_type TEXT NOT NULL,
  error_message TEXT,
  extracted_text TEXT,
  unmapped_products TEXT,
  resolved INTEGER NOT NULL DEFAULT 0,
  resolved_at TEXT,
  resolution_notes TEXT,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_parsing_failures_email ON parsing_failures(customer_email);
CREATE INDEX IF NOT EXISTS idx_parsing_failures_resolved ON parsing_failures(resolved);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ErrInvalidTransition is returned when a status change is not listed
// in the transition table or the row is no longer in the expected
// state.
var ErrInvalidTransition = errors.New("invalid queue status transition")

func (d *DB) UpsertCustomer(c internal.Customer) error {
	_, err := d.conn.Exec(`
INSERT INTO customers (email, alias, customer_name, customer_number, trn, billing_address, shipping_address, payment_terms, currency, delivery_calendar, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(email, customer_name) DO UPDATE SET
  alias=excluded.alias,
  customer_number=excluded.customer_number,
  trn=excluded.trn,
  billing_address=excluded.billing_address,
  shipping_address=excluded.shipping_address,
  payment_terms=excluded.payment_terms,
  currency=excluded.currency,
  delivery_calendar=excluded.delivery_calendar,
  active=excluded.active,
  updated_at=CURRENT_TIMESTAMP
`, c.Email, c.Alias, c.Name, c.CustomerNumber, c.TRN, c.BillingAddress, c.ShippingAddress, c.PaymentTermsDays, c.Currency, c.DeliveryCalendar, boolToInt(c.Active))
	return err
}

// ListCustomersByEmail returns every active customer record sharing the
// contact address, in stable insertion order. More than one row means a
// multi-branch customer.
func (d *DB) ListCustomersByEmail(email string) ([]internal.Customer, error) {
	rows, err := d.conn.Query(`
SELECT email, alias, customer_name, customer_number, trn, billing_address, shipping_address, payment_terms, currency, delivery_calendar, active
FROM customers WHERE email = ? COLLATE NOCASE AND active = 1 ORDER BY id ASC
`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) ListActiveContactEmails() ([]string, error) {
	rows, err := d.conn.Query(`SELECT DISTINCT lower(email) FROM customers WHERE active = 1 AND email != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (d *DB) InsertBranchIdentifier(b internal.BranchIdentifier) error {
	_, err := d.conn.Exec(`
INSERT INTO branch_identifiers (customer_email, branch_identifier, branch_name, delivery_address)
VALUES (?, ?, ?, ?)
`, b.CustomerEmail, b.Token, b.BranchName, b.DeliveryAddress)
	return err
}

func (d *DB) ListBranchIdentifiers(email string) ([]internal.BranchIdentifier, error) {
	rows, err := d.conn.Query(`
SELECT id, customer_email, branch_identifier, branch_name, delivery_address
FROM branch_identifiers WHERE customer_email = ? COLLATE NOCASE ORDER BY id ASC
`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.BranchIdentifier
	for rows.Next() {
		var b internal.BranchIdentifier
		var addr sql.NullString
		if err := rows.Scan(&b.ID, &b.CustomerEmail, &b.Token, &b.BranchName, &addr); err != nil {
			return nil, err
		}
		b.DeliveryAddress = addr.String
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) UpsertProductMapping(m internal.ProductMapping) error {
	_, err := d.conn.Exec(`
INSERT INTO product_mappings (customer_email, lpo_product_name, system_product_name, unit_price, unit, vat_rate, active)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(customer_email, lpo_product_name) DO UPDATE SET
  system_product_name=excluded.system_product_name,
  unit_price=excluded.unit_price,
  unit=excluded.unit,
  vat_rate=excluded.vat_rate,
  active=excluded.active
`, m.CustomerEmail, m.LPOName, m.SystemName, m.UnitPrice, m.Unit, m.VATRate, boolToInt(m.Active))
	return err
}

func (d *DB) ListProductMappings(email string) ([]internal.ProductMapping, error) {
	rows, err := d.conn.Query(`
SELECT id, customer_email, lpo_product_name, system_product_name, unit_price, unit, vat_rate, active
FROM product_mappings WHERE customer_email = ? COLLATE NOCASE AND active = 1 ORDER BY id ASC
`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ProductMapping
	for rows.Next() {
		var m internal.ProductMapping
		var active int
		if err := rows.Scan(&m.ID, &m.CustomerEmail, &m.LPOName, &m.SystemName, &m.UnitPrice, &m.Unit, &m.VATRate, &active); err != nil {
			return nil, err
		}
		m.Active = active != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// HasQueueItemWithHash is the sole duplicate-detection mechanism: it
// must be consulted before any expensive work on an inbound message.
func (d *DB) HasQueueItemWithHash(hash string) (bool, error) {
	var id int64
	err := d.conn.QueryRow(`SELECT id FROM queue_items WHERE content_hash = ? LIMIT 1`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) InsertQueueItem(req internal.QueueRequest) (internal.QueueItem, error) {
	result, err := d.conn.Exec(`
INSERT INTO queue_items (origin, origin_ref, filename, file_path, customer_email, status, content_hash)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, string(req.Origin), req.OriginRef, req.Filename, req.FilePath, req.CustomerEmail, string(internal.StatusPending), req.ContentHash)
	if err != nil {
		return internal.QueueItem{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return internal.QueueItem{}, err
	}
	item, err := d.GetQueueItem(id)
	if err != nil {
		return internal.QueueItem{}, err
	}
	if item == nil {
		return internal.QueueItem{}, errors.New("queue item vanished after insert")
	}
	return *item, nil
}

func (d *DB) GetQueueItem(id int64) (*internal.QueueItem, error) {
	row := d.conn.QueryRow(queueSelect+` WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListQueueItemsByStatus returns items oldest first, bounding each
// pipeline cycle.
func (d *DB) ListQueueItemsByStatus(status internal.Status, limit int) ([]internal.QueueItem, error) {
	rows, err := d.conn.Query(queueSelect+` WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// ClaimQueueItem flips one item from pending to processing. The guard
// on the current status makes the claim a compare-and-set: under
// concurrent workers only one claimer sees rowsAffected == 1.
func (d *DB) ClaimQueueItem(id int64) (bool, error) {
	result, err := d.conn.Exec(`
UPDATE queue_items SET status = ?, processed_at = ? WHERE id = ? AND status = ?
`, string(internal.StatusProcessing), nowStamp(), id, string(internal.StatusPending))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkCompleted finishes a processing item and opens its export
// lifecycle in the same statement.
func (d *DB) MarkCompleted(id int64, parse *internal.ParseResult) error {
	blob, err := json.Marshal(parse)
	if err != nil {
		return err
	}
	return d.transition(id, internal.StatusProcessing, internal.StatusCompleted, `
UPDATE queue_items SET status = ?, export_status = ?, parse_result = ?, error_message = NULL
WHERE id = ? AND status = ?
`, string(internal.StatusCompleted), string(internal.ExportPending), string(blob), id, string(internal.StatusProcessing))
}

func (d *DB) MarkFailed(id int64, parse *internal.ParseResult, errorMessage string) error {
	var blob any
	if parse != nil {
		b, err := json.Marshal(parse)
		if err != nil {
			return err
		}
		blob = string(b)
	}
	return d.transition(id, internal.StatusProcessing, internal.StatusFailed, `
UPDATE queue_items SET status = ?, parse_result = ?, error_message = ?
WHERE id = ? AND status = ?
`, string(internal.StatusFailed), blob, errorMessage, id, string(internal.StatusProcessing))
}

func (d *DB) transition(id int64, from, to internal.Status, query string, args ...any) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	result, err := d.conn.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("%w: item %d is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// ListExportable selects completed items whose export is still pending,
// optionally restricted to explicit ids.
func (d *DB) ListExportable(ids []int64, limit int) ([]internal.QueueItem, error) {
	if len(ids) == 0 {
		rows, err := d.conn.Query(queueSelect+`
 WHERE status = ? AND export_status = ? ORDER BY processed_at ASC, id ASC LIMIT ?
`, string(internal.StatusCompleted), string(internal.ExportPending), limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectQueueItems(rows)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(internal.StatusCompleted), string(internal.ExportPending))
	rows, err := d.conn.Query(queueSelect+` WHERE id IN (`+placeholders+`) AND status = ? AND export_status = ? ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// MarkExported stamps every listed item with the shared batch reference
// in one transaction; either all items flip to exported or none do.
func (d *DB) MarkExported(ids []int64, batchRef, exportPath string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stamp := nowStamp()
	for _, id := range ids {
		result, err := tx.Exec(`
UPDATE queue_items SET export_status = ?, export_ref = ?, export_path = ?, exported_at = ?
WHERE id = ? AND status = ? AND export_status = ?
`, string(internal.ExportExported), batchRef, exportPath, stamp, id, string(internal.StatusCompleted), string(internal.ExportPending))
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return fmt.Errorf("%w: item %d is not exportable", ErrInvalidTransition, id)
		}
	}
	return tx.Commit()
}

func (d *DB) InsertParsingFailure(f internal.ParsingFailure) error {
	var unmapped any
	if len(f.UnmappedProducts) > 0 {
		blob, err := json.Marshal(f.UnmappedProducts)
		if err != nil {
			return err
		}
		unmapped = string(blob)
	}
	_, err := d.conn.Exec(`
INSERT INTO parsing_failures (filename, customer_email, error_type, error_message, extracted_text, unmapped_products)
VALUES (?, ?, ?, ?, ?, ?)
`, f.Filename, f.CustomerEmail, string(f.FailureType), f.ErrorMessage, f.TextPreview, unmapped)
	return err
}

func (d *DB) ListParsingFailures(onlyUnresolved bool, limit int) ([]internal.ParsingFailure, error) {
	query := `
SELECT id, filename, customer_email, error_type, error_message, extracted_text, unmapped_products, resolved, created_at
FROM parsing_failures`
	if onlyUnresolved {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := d.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ParsingFailure
	for rows.Next() {
		var f internal.ParsingFailure
		var email, message, preview, unmapped sql.NullString
		var resolved int
		var created string
		if err := rows.Scan(&f.ID, &f.Filename, &email, (*string)(&f.FailureType), &message, &preview, &unmapped, &resolved, &created); err != nil {
			return nil, err
		}
		f.CustomerEmail = email.String
		f.ErrorMessage = message.String
		f.TextPreview = preview.String
		f.Resolved = resolved != 0
		f.CreatedAt = parseStamp(created)
		if unmapped.Valid && unmapped.String != "" {
			_ = json.Unmarshal([]byte(unmapped.String), &f.UnmappedProducts)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ResolveParsingFailure closes out a failure after an operator fixed
// the underlying mapping or customer data.
func (d *DB) ResolveParsingFailure(id int64, notes string) error {
	result, err := d.conn.Exec(`
UPDATE parsing_failures SET resolved = 1, resolved_at = ?, resolution_notes = ? WHERE id = ? AND resolved = 0
`, nowStamp(), notes, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("parsing failure %d not found or already resolved", id)
	}
	return nil
}

func (d *DB) QueueStats() (internal.QueueStats, error) {
	stats := internal.QueueStats{
		ByStatus:       map[internal.Status]int{},
		ByExportStatus: map[internal.ExportStatus]int{},
	}

	rows, err := d.conn.Query(`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			_ = rows.Close()
			return stats, err
		}
		stats.ByStatus[internal.Status(status)] = count
		stats.Total += count
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = d.conn.Query(`SELECT export_status, COUNT(*) FROM queue_items WHERE status = ? GROUP BY export_status`, string(internal.StatusCompleted))
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByExportStatus[internal.ExportStatus(status)] = count
	}
	return stats, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

const lastCutoffCheckKey = "mail.last_cutoff_check"

func (d *DB) LastCutoffCheck() (*time.Time, error) {
	raw, err := d.GetMetadata(lastCutoffCheckKey)
	if err != nil || raw == nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, nil
	}
	return &parsed, nil
}

func (d *DB) SetLastCutoffCheck(t time.Time) error {
	return d.SetMetadata(lastCutoffCheckKey, t.UTC().Format(time.RFC3339))
}

const queueSelect = `
SELECT id, origin, origin_ref, filename, file_path, customer_email, status, export_status,
       parse_result, error_message, content_hash, export_ref, export_path,
       created_at, processed_at, exported_at
FROM queue_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (internal.QueueItem, error) {
	var item internal.QueueItem
	var originRef, customerEmail, parseResult, errorMessage, exportRef, exportPath sql.NullString
	var created string
	var processed, exported sql.NullString

	err := row.Scan(
		&item.ID, (*string)(&item.Origin), &originRef, &item.Filename, &item.FilePath,
		&customerEmail, (*string)(&item.Status), (*string)(&item.ExportStatus),
		&parseResult, &errorMessage, &item.ContentHash, &exportRef, &exportPath,
		&created, &processed, &exported,
	)
	if err != nil {
		return item, err
	}

	item.OriginRef = originRef.String
	item.CustomerEmail = customerEmail.String
	item.ErrorMessage = errorMessage.String
	item.ExportRef = exportRef.String
	item.ExportPath = exportPath.String
	item.CreatedAt = parseStamp(created)
	if processed.Valid {
		t := parseStamp(processed.String)
		item.ProcessedAt = &t
	}
	if exported.Valid {
		t := parseStamp(exported.String)
		item.ExportedAt = &t
	}
	if parseResult.Valid && parseResult.String != "" {
		var parsed internal.ParseResult
		if err := json.Unmarshal([]byte(parseResult.String), &parsed); err == nil {
			item.ParseResult = &parsed
		}
	}
	return item, nil
}

func collectQueueItems(rows *sql.Rows) ([]internal.QueueItem, error) {
	var out []internal.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanCustomer(rows *sql.Rows) (internal.Customer, error) {
	var c internal.Customer
	var alias, number, trn, billing, shipping, calendar sql.NullString
	var active int
	err := rows.Scan(&c.Email, &alias, &c.Name, &number, &trn, &billing, &shipping, &c.PaymentTermsDays, &c.Currency, &calendar, &active)
	if err != nil {
		return c, err
	}
	c.Alias = alias.String
	c.CustomerNumber = number.String
	c.TRN = trn.String
	c.BillingAddress = billing.String
	c.ShippingAddress = shipping.String
	c.DeliveryCalendar = calendar.String
	c.Active = active != 0
	return c, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseStamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
