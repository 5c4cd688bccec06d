package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS invoices (
			identifier TEXT PRIMARY KEY,
			amount REAL NOT NULL DEFAULT 0,
			value REAL NOT NULL DEFAULT 0,
			boostagram TEXT,
			created_at TEXT,
			creation_date INTEGER NOT NULL,
			podcast TEXT,
			episode TEXT,
			app_name TEXT,
			sender_name TEXT,
			message TEXT,
			value_msat_total INTEGER,
			feed_id REAL,
			item_id REAL,
			guid TEXT,
			episode_guid TEXT,
			event_guid TEXT,
			published INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_creation_date ON invoices(creation_date)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_published ON invoices(published)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// SaveInvoice stores a boost, returns true if it was new
func (s *Storage) SaveInvoice(inv payment.Invoice) (bool, error) {
	boostagram, err := json.Marshal(inv.Boostagram)
	if err != nil {
		return false, fmt.Errorf("marshal boostagram: %w", err)
	}

	b := inv.Boostagram
	if b == nil {
		b = &payment.Boostagram{}
	}

	var msat sql.NullInt64
	if sats := b.ValueMsatTotal.Sats(); sats > 0 {
		msat = sql.NullInt64{Int64: int64(*b.ValueMsatTotal), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO invoices
		 (identifier, amount, value, boostagram, created_at, creation_date,
		  podcast, episode, app_name, sender_name, message, value_msat_total,
		  feed_id, item_id, guid, episode_guid, event_guid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.Identifier, inv.Amount, inv.Value, string(boostagram), inv.CreatedAt, int64(inv.CreationDate),
		b.Podcast, b.Episode, b.AppName, b.SenderName, b.Message, msat,
		b.FeedID, b.ItemID, b.GUID, b.EpisodeGUID, b.EventGUID,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetInvoice returns a stored boost by identifier
func (s *Storage) GetInvoice(identifier string) (*payment.Invoice, error) {
	row := s.db.QueryRow(
		`SELECT `+invoiceColumns+` FROM invoices WHERE identifier = ?`,
		identifier,
	)

	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns boosts matching q, oldest first
func (s *Storage) ListInvoices(q InvoiceQuery) ([]payment.Invoice, error) {
	q = q.normalized()

	var where []string
	var params []any

	if q.CreatedAtLT != 0 {
		where = append(where, "creation_date <= ?")
		params = append(params, q.CreatedAtLT)
	}

	if q.CreatedAtGT != 0 {
		where = append(where, "creation_date >= ?")
		params = append(params, q.CreatedAtGT)
	}

	if q.Since != "" {
		where = append(where,
			"creation_date >= (SELECT MAX(creation_date) FROM invoices WHERE identifier = ?)",
			"identifier <> ?",
		)
		params = append(params, q.Since, q.Since)
	}

	// podcast, event and episode filters widen each other
	var anyOf []string
	for _, p := range q.Podcasts {
		anyOf = append(anyOf, "podcast LIKE ?")
		params = append(params, "%"+p+"%")
	}
	if len(q.EventGUIDs) > 0 {
		anyOf = append(anyOf, "event_guid IN ("+placeholders(len(q.EventGUIDs))+")")
		for _, g := range q.EventGUIDs {
			params = append(params, g)
		}
	}
	if len(q.EpisodeGUIDs) > 0 {
		anyOf = append(anyOf, "episode_guid IN ("+placeholders(len(q.EpisodeGUIDs))+")")
		for _, g := range q.EpisodeGUIDs {
			params = append(params, g)
		}
	}
	if len(anyOf) > 0 {
		where = append(where, "("+strings.Join(anyOf, " OR ")+")")
	}

	if len(where) == 0 {
		where = append(where, "1=1")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM invoices WHERE %s ORDER BY creation_date ASC, identifier ASC LIMIT ? OFFSET ?`,
		invoiceColumns, strings.Join(where, " AND "),
	)
	params = append(params, q.Items, (q.Page-1)*q.Items)

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []payment.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}

	return invoices, rows.Err()
}

// ListUnpublished returns boosts not yet relayed to nostr, oldest first
func (s *Storage) ListUnpublished(limit int) ([]payment.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT `+invoiceColumns+` FROM invoices WHERE published = 0
		 ORDER BY creation_date ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []payment.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}

	return invoices, rows.Err()
}

// MarkPublished flags a boost as relayed to nostr
func (s *Storage) MarkPublished(identifier string) error {
	result, err := s.db.Exec("UPDATE invoices SET published = 1 WHERE identifier = ?", identifier)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const invoiceColumns = `identifier, amount, value, boostagram, created_at, creation_date`

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*payment.Invoice, error) {
	var inv payment.Invoice
	var boostagram, createdAt sql.NullString
	var creationDate int64

	if err := row.Scan(&inv.Identifier, &inv.Amount, &inv.Value, &boostagram, &createdAt, &creationDate); err != nil {
		return nil, err
	}

	inv.CreatedAt = createdAt.String
	inv.CreationDate = float64(creationDate)

	if boostagram.Valid && boostagram.String != "" && boostagram.String != "null" {
		var b payment.Boostagram
		if err := json.Unmarshal([]byte(boostagram.String), &b); err != nil {
			return nil, fmt.Errorf("decode boostagram %s: %w", inv.Identifier, err)
		}
		inv.Boostagram = &b
	}

	return &inv, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
