// Package store keeps extracted OCR words in Postgres and lists them for
// the records page.
//
// The schema lives in embedded golang-migrate migrations whose schema and
// table prefix are filled in at install time. Connections go through the
// pgx database/sql driver; the URL always comes from configuration.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ironsheep/craft-text-demo/internal/ocr"
	"github.com/ironsheep/craft-text-demo/internal/store/migrations"
)

// TableName is the unprefixed name of the records table.
const TableName = "extracted_data"

// ExtractedRecord is the records table as text: the column names in
// table order and one string per cell.
type ExtractedRecord struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// RecordLister lists the records table.
type RecordLister interface {
	ListRecords(ctx context.Context) (*ExtractedRecord, error)
}

// RecordWriter saves recognized words for an image.
type RecordWriter interface {
	InsertRecords(ctx context.Context, image string, langs []string, records []ocr.Record) error
}

// Store is a Postgres backed RecordLister and RecordWriter.
type Store struct {
	db *sql.DB

	databaseName   string
	databaseSchema string
	databasePrefix string

	table string
}

var (
	_ RecordLister = (*Store)(nil)
	_ RecordWriter = (*Store)(nil)
)

// New wraps an open database.
func New(db *sql.DB, options ...Option) *Store {
	s := &Store{
		db:             db,
		databaseName:   "postgres",
		databaseSchema: "public",
	}
	for _, option := range options {
		option(s)
	}
	s.table = fmt.Sprintf("%s.%s%s", s.databaseSchema, s.databasePrefix, TableName)
	return s
}

// Open connects to databaseURL and checks the connection.
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - databaseURL: A postgres:// URL; credentials come from configuration
//   - options: Schema, table prefix and database name overrides
//
// Returns:
//   - *Store: An open store; call Install before the first query
//   - error: Non-nil if the driver cannot open the URL or the ping fails
func Open(ctx context.Context, databaseURL string, options ...Option) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Join(errors.New("failed to parse database URL"), err)
	}

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Join(errors.New("failed to connect to database"), err)
	}
	return New(db, options...), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Table returns the qualified records table name.
func (s *Store) Table() string {
	return s.table
}

func (s *Store) migrator() (*migrate.Migrate, error) {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return nil, errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := postgres.WithInstance(s.db, &postgres.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: s.migrationsTable(),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	source, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	m, err := migrate.NewWithInstance("migrations", source, s.databaseName, driver)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create migrator"), err)
	}
	return m, nil
}

func (s *Store) migrationsTable() string {
	return s.databasePrefix + "migrations"
}

// Install creates the records table. Running it again is a no-op.
func (s *Store) Install(ctx context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}
	return nil
}

// UnInstall drops the records table and the migrations bookkeeping table.
func (s *Store) UnInstall(ctx context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", s.databaseSchema, s.migrationsTable())
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Join(errors.New("failed to drop migrations table"), err)
	}
	return nil
}

// ListRecords returns every row of the records table.
func (s *Store) ListRecords(ctx context.Context) (*ExtractedRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.table)
	if err != nil {
		return nil, errors.Join(errors.New("failed to query records"), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Join(errors.New("failed to read record columns"), err)
	}

	out := &ExtractedRecord{Columns: columns, Rows: [][]string{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Join(errors.New("failed to scan record"), err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatCell(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(errors.New("failed to read records"), err)
	}
	return out, nil
}

// InsertRecords stores one row per recognized word in a single
// transaction.
func (s *Store) InsertRecords(ctx context.Context, image string, langs []string, records []ocr.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Join(errors.New("failed to begin record transaction"), err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (image, languages, text, confidence, box)
		VALUES ($1, $2, $3, $4, $5)
	`, s.table)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Join(errors.New("failed to prepare record insert"), err)
	}
	defer stmt.Close()

	joined := strings.Join(langs, ",")
	for _, r := range records {
		box, err := json.Marshal(r.Box)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, image, joined, r.Text, r.Confidence, string(box)); err != nil {
			return errors.Join(fmt.Errorf("failed to insert record %q", r.Text), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Join(errors.New("failed to commit records"), err)
	}
	return nil
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%.4g", v)
	case float32:
		return fmt.Sprintf("%.4g", v)
	default:
		return fmt.Sprint(v)
	}
}
