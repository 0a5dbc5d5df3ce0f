package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/ocr-service/internal/ocr/domain"
	"github.com/docuflow/ocr-service/internal/ocr/repository"
	"github.com/docuflow/ocr-service/pkg/database"
	apperrors "github.com/docuflow/ocr-service/pkg/errors"
	"github.com/docuflow/ocr-service/pkg/logger"
	"github.com/docuflow/ocr-service/pkg/testutil"
)

func newMockRepo(t *testing.T) (*repository.AuditRepository, *testutil.MockDB) {
	t.Helper()

	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := database.NewFromDB(mockDB.DB, logger.New("test", "test"))
	return repository.NewAuditRepository(db), mockDB
}

func TestAuditRepository_Record(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	created := time.Now().UTC().Truncate(time.Second)
	mockDB.ExpectQuery("INSERT INTO ocr_audit").
		WithArgs(
			testutil.AnyUUID{}, "req-1", "https://docs.example.com/a.pdf", "success",
			nil, 3, int64(2048), "tesseract", int64(150),
		).
		WillReturnRows(testutil.MockRows("created_at").AddRow(created))

	rec := &domain.AuditRecord{
		RequestID:  "req-1",
		Document:   "https://docs.example.com/a.pdf",
		Status:     "success",
		Pages:      3,
		SizeBytes:  2048,
		Engine:     "tesseract",
		DurationMS: 150,
	}

	err := repo.Record(context.Background(), rec)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID, "ID should be generated when empty")
	assert.Equal(t, created, rec.CreatedAt)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_RecordMapsConstraintViolation(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	mockDB.ExpectQuery("INSERT INTO ocr_audit").
		WillReturnError(&pq.Error{Code: "23514", Constraint: "ocr_audit_status_valid"})

	rec := &domain.AuditRecord{
		RequestID: "req-1",
		Document:  "https://docs.example.com/a.pdf",
		Status:    "pending",
	}

	err := repo.Record(context.Background(), rec)
	require.Error(t, err)

	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	var appErr *apperrors.AppError
	require.True(t, apperrors.As(err, &appErr))
	assert.Contains(t, appErr.Details["status"], "success, error")
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_Recent(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	created := time.Now()
	rows := testutil.MockRows(
		"id", "request_id", "document", "status", "error_category",
		"pages", "size_bytes", "engine", "duration_ms", "created_at",
	).
		AddRow("6f0a1b9e-0000-0000-0000-000000000002", "req-2", "https://docs.example.com/b.png",
			"error", "download_error", 0, int64(0), "tesseract", int64(12), created).
		AddRow("6f0a1b9e-0000-0000-0000-000000000001", "req-1", "https://docs.example.com/a.pdf",
			"success", nil, 2, int64(4096), "tesseract", int64(900), created.Add(-time.Minute))

	mockDB.ExpectQuery("SELECT id, request_id, document, status, error_category").
		WithArgs(2).
		WillReturnRows(rows)

	records, err := repo.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "error", records[0].Status)
	require.NotNil(t, records[0].ErrorCategory)
	assert.Equal(t, "download_error", *records[0].ErrorCategory)
	assert.Nil(t, records[1].ErrorCategory)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_RecentDefaultsLimit(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	mockDB.ExpectQuery("SELECT id, request_id, document, status, error_category").
		WithArgs(50).
		WillReturnRows(testutil.MockRows(
			"id", "request_id", "document", "status", "error_category",
			"pages", "size_bytes", "engine", "duration_ms", "created_at",
		))

	records, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)

	assert.NotNil(t, records, "empty result should be a slice, not nil")
	assert.Len(t, records, 0)
	mockDB.ExpectationsWereMet(t)
}

func TestAuditRepository_CountByStatus(t *testing.T) {
	repo, mockDB := newMockRepo(t)

	mockDB.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(testutil.MockRows("status", "count").
			AddRow("success", 7).
			AddRow("error", 3))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"success": 7, "error": 3}, counts)
	mockDB.ExpectationsWereMet(t)
}
