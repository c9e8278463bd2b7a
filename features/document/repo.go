package document

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("document not found")

type Repository interface {
	// InsertVersion writes an immutable version row. A key collision means
	// the same envelope was already persisted and reports created=false.
	InsertVersion(ctx context.Context, rec *Record) (bool, error)
	UpsertLatest(ctx context.Context, rec *Record) error
	GetLatest(ctx context.Context, documentID string) (*Record, error)
	ListLatest(ctx context.Context) ([]Record, error)
	ListByClient(ctx context.Context, clientName string) ([]Record, error)
	FindByPONumber(ctx context.Context, poNumber string) ([]Record, error)
	ListVersions(ctx context.Context, documentID string) ([]Record, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recordColumns = `pk, sk, client_name, po_number, end_date, validation_passed, extraction_confidence, payload, created_at`

func (r *PostgresRepo) InsertVersion(ctx context.Context, rec *Record) (bool, error) {
	query := `INSERT INTO documents (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pk, sk) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		rec.PK, rec.SK, rec.ClientName, rec.PONumber, rec.EndDate,
		rec.ValidationPassed, rec.ExtractionConfidence, []byte(rec.Payload), rec.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepo) UpsertLatest(ctx context.Context, rec *Record) error {
	query := `INSERT INTO documents (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pk, sk) DO UPDATE SET
			client_name = EXCLUDED.client_name,
			po_number = EXCLUDED.po_number,
			end_date = EXCLUDED.end_date,
			validation_passed = EXCLUDED.validation_passed,
			extraction_confidence = EXCLUDED.extraction_confidence,
			payload = EXCLUDED.payload,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, query,
		rec.PK, LatestSK, rec.ClientName, rec.PONumber, rec.EndDate,
		rec.ValidationPassed, rec.ExtractionConfidence, []byte(rec.Payload), rec.CreatedAt)
	return err
}

func (r *PostgresRepo) GetLatest(ctx context.Context, documentID string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE pk = $1 AND sk = $2`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, documentID, LatestSK))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepo) ListLatest(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE sk = $1 ORDER BY created_at DESC`
	return r.queryRecords(ctx, query, LatestSK)
}

func (r *PostgresRepo) ListByClient(ctx context.Context, clientName string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE sk = $1 AND client_name = $2 ORDER BY created_at DESC`
	return r.queryRecords(ctx, query, LatestSK, clientName)
}

func (r *PostgresRepo) FindByPONumber(ctx context.Context, poNumber string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE sk = $1 AND po_number = $2 ORDER BY created_at DESC`
	return r.queryRecords(ctx, query, LatestSK, poNumber)
}

func (r *PostgresRepo) ListVersions(ctx context.Context, documentID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE pk = $1 AND sk LIKE $2 ORDER BY sk DESC`
	return r.queryRecords(ctx, query, documentID, VersionSKPrefix+"%")
}

func (r *PostgresRepo) queryRecords(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var payload []byte
	err := s.Scan(&rec.PK, &rec.SK, &rec.ClientName, &rec.PONumber, &rec.EndDate,
		&rec.ValidationPassed, &rec.ExtractionConfidence, &payload, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	return rec, nil
}
