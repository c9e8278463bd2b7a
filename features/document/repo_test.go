package document

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *Record {
	return &Record{
		PK:                   "DOC#1",
		SK:                   "VERSION#2025-06-01T00:00:00Z",
		ClientName:           "ACME Corp",
		PONumber:             "PO-123",
		EndDate:              "2025-12-31",
		ValidationPassed:     true,
		ExtractionConfidence: 0.95,
		Payload:              json.RawMessage(`{"document_id":"DOC#1"}`),
		CreatedAt:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func recordRows(rec *Record) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"pk", "sk", "client_name", "po_number", "end_date",
		"validation_passed", "extraction_confidence", "payload", "created_at",
	}).AddRow(rec.PK, rec.SK, rec.ClientName, rec.PONumber, rec.EndDate,
		rec.ValidationPassed, rec.ExtractionConfidence, []byte(rec.Payload), rec.CreatedAt)
}

func TestPostgresRepo_InsertVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("New version inserted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("INSERT INTO documents").
			WithArgs("DOC#1", "VERSION#2025-06-01T00:00:00Z", "ACME Corp", "PO-123", "2025-12-31",
				true, 0.95, []byte(`{"document_id":"DOC#1"}`), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := NewPostgresRepo(db).InsertVersion(ctx, testRecord())
		assert.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Key collision reports not created", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("INSERT INTO documents").
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := NewPostgresRepo(db).InsertVersion(ctx, testRecord())
		assert.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_UpsertLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("DOC#1", LatestSK, "ACME Corp", "PO-123", "2025-12-31",
			true, 0.95, []byte(`{"document_id":"DOC#1"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, NewPostgresRepo(db).UpsertLatest(context.Background(), testRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rec := testRecord()
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE pk = \\$1 AND sk = \\$2").
			WithArgs("DOC#1", LatestSK).
			WillReturnRows(recordRows(rec))

		got, err := NewPostgresRepo(db).GetLatest(ctx, "DOC#1")
		require.NoError(t, err)
		assert.Equal(t, rec.ClientName, got.ClientName)
		assert.Equal(t, rec.Payload, got.Payload)
	})

	t.Run("Missing maps to ErrNotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM documents").
			WithArgs("DOC#missing", LatestSK).
			WillReturnRows(sqlmock.NewRows([]string{"pk"}))

		_, err = NewPostgresRepo(db).GetLatest(ctx, "DOC#missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresRepo_SecondaryLookups(t *testing.T) {
	ctx := context.Background()

	t.Run("ListByClient filters latest rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE sk = \\$1 AND client_name = \\$2").
			WithArgs(LatestSK, "ACME Corp").
			WillReturnRows(recordRows(testRecord()))

		records, err := NewPostgresRepo(db).ListByClient(ctx, "ACME Corp")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ACME Corp", records[0].ClientName)
	})

	t.Run("FindByPONumber", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE sk = \\$1 AND po_number = \\$2").
			WithArgs(LatestSK, "PO-123").
			WillReturnRows(recordRows(testRecord()))

		records, err := NewPostgresRepo(db).FindByPONumber(ctx, "PO-123")
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("ListVersions orders newest first", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM documents WHERE pk = \\$1 AND sk LIKE \\$2 ORDER BY sk DESC").
			WithArgs("DOC#1", VersionSKPrefix+"%").
			WillReturnRows(recordRows(testRecord()))

		records, err := NewPostgresRepo(db).ListVersions(ctx, "DOC#1")
		require.NoError(t, err)
		require.Len(t, records, 1)
	})
}
