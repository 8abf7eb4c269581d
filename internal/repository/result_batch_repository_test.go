package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/pkg/database"
)

var batchRowColumns = []string{
	"id", "batch_name", "batch_code", "classroom_id", "academic_year", "term", "grading_scale_id",
	"subject_group_id", "status", "csv_file_path", "error_log", "total_students", "total_subjects", "total_results",
	"failed_imports", "processed_at", "published_at", "created_by", "updated_by", "teacher_name", "principal_name",
	"teacher_signature_url", "principal_signature_url", "created_at", "updated_at",
}

func batchRows(id string, status models.BatchStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(batchRowColumns).AddRow(
		id, "First term", "RB-2024-T1-001", "class-1", "2024/2025", "First", "gs1",
		"g1", string(status), nil, []byte(`[{"line":3,"error":"Student not found"}]`), 2, 2, 4,
		1, nil, nil, "admin-1", nil, nil, nil,
		nil, nil, now, now,
	)
}

func TestResultBatchRepositoryNextSequence(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO result_batch_sequences")).
		WithArgs("class-1", "2024/2025", "First").
		WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(3))

	seq, err := repo.NextSequence(context.Background(), models.ResultScope{ClassroomID: "class-1", AcademicYear: "2024/2025", Term: "First"})
	require.NoError(t, err)
	assert.Equal(t, 3, seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryCreateSurfacesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO result_batches")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "result_batches_batch_code_key"})

	err := repo.Create(context.Background(), &models.ResultBatch{ID: "b1", Status: models.BatchStatusDraft})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, "result_batches_batch_code_key"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryFindByIDDecodesErrorLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM result_batches WHERE id = $1")).
		WithArgs("b1").
		WillReturnRows(batchRows("b1", models.BatchStatusCompleted))

	batch, err := repo.FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	require.Len(t, batch.ErrorLog, 1)
	assert.Equal(t, 3, batch.ErrorLog[0].Line)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryListPaginates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM result_batches WHERE classroom_id = $1 AND status = $2")).
		WithArgs("class-1", "completed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs("class-1", "completed", 10, 20).
		WillReturnRows(batchRows("b21", models.BatchStatusCompleted))

	items, total, err := repo.List(context.Background(), models.ResultBatchFilter{ClassroomID: "class-1", Status: models.BatchStatusCompleted, Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryPublishRequiresCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE result_batches")).
		WithArgs("b1", "published", sqlmock.AnyArg(), "admin-1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Publish(context.Background(), "b1", "admin-1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryUpdateSignaturesOnlyTouchesGivenFields(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	name := "Mrs. Ade"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE result_batches SET principal_name = $2, updated_by = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("b1", name, "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateSignatures(context.Background(), "b1", BatchSignatureUpdate{PrincipalName: &name, UpdatedBy: "admin-1", UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryDeleteWithResultsCascadesOverScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	batch := &models.ResultBatch{ID: "b1", ClassroomID: "class-1", AcademicYear: "2024/2025", Term: "First"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_results WHERE classroom_id = $1 AND academic_year = $2 AND term = $3")).
		WithArgs("class-1", "2024/2025", "First").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM result_batches WHERE id = $1")).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.DeleteWithResults(context.Background(), batch)
	require.NoError(t, err)
	assert.EqualValues(t, 7, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultBatchRepositoryDeleteMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewResultBatchRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM student_results")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM result_batches")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.DeleteWithResults(context.Background(), &models.ResultBatch{ID: "gone"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
