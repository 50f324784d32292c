package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fixr105/Seven-Render-sub002/internal/records"
	"github.com/fixr105/Seven-Render-sub002/internal/util"
)

const uniqueViolation = "23505"

// RecordStore keeps record-store tables in Postgres as one JSONB document per
// row. It implements records.Gateway and nothing more: whole-table reads and
// single-row upserts keyed by row id or business id.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) DB() *sql.DB {
	return s.db
}

// FetchTable returns the rows of table in insertion order.
func (s *RecordStore) FetchTable(ctx context.Context, table string) ([]records.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fields
		FROM record_rows
		WHERE table_name = $1
		ORDER BY seq ASC
	`, table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	result := make([]records.Row, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s row %s: %w", table, id, err)
		}
		row[records.FieldID] = id
		result = append(result, row)
	}
	return result, rows.Err()
}

// Upsert writes the full row. An existing row is found by the same rules as
// records.SameRecord; otherwise a new row is inserted, with a generated id
// when the row has none. A concurrent insert of the same business id is
// retried once as an update.
func (s *RecordStore) Upsert(ctx context.Context, table string, row records.Row) (records.Row, error) {
	stored := records.Flatten(row)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var saved records.Row
		saved, err = s.upsertOnce(ctx, table, stored.Clone())
		if err == nil {
			return saved, nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
			return nil, err
		}
	}
	return nil, err
}

func (s *RecordStore) upsertOnce(ctx context.Context, table string, row records.Row) (records.Row, error) {
	id, businessID := records.Keys(table, row)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findExisting(ctx, tx, table, id, businessID)
	if err != nil {
		return nil, err
	}
	switch {
	case existing != "":
		row[records.FieldID] = existing
	case id == "":
		row[records.FieldID] = util.NewID("rec")
	}
	id = row.ID()

	fields := row.Clone()
	delete(fields, records.FieldID)
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s row %s: %w", table, id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO record_rows (table_name, id, business_id, fields)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (table_name, id) DO UPDATE
		SET business_id = EXCLUDED.business_id, fields = EXCLUDED.fields, updated_at = NOW()
	`, table, id, businessID, string(encoded)); err != nil {
		return nil, fmt.Errorf("upsert %s row %s: %w", table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert %s: %w", table, err)
	}

	// return what a fetch would return, not what the caller passed in
	saved, err := decodeFields(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s row %s: %w", table, id, err)
	}
	saved[records.FieldID] = id
	return saved, nil
}

func findExisting(ctx context.Context, tx *sql.Tx, table, id, businessID string) (string, error) {
	keys := make([]string, 0, 2)
	for _, key := range []string{id, businessID} {
		if key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return "", nil
	}

	var existing string
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM record_rows
		WHERE table_name = $1 AND (id = ANY($2) OR (business_id <> '' AND business_id = ANY($2)))
		ORDER BY seq ASC
		LIMIT 1
		FOR UPDATE
	`, table, keys).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s row: %w", table, err)
	}
	return existing, nil
}

func decodeFields(raw []byte) (records.Row, error) {
	row := records.Row{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return row, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}
