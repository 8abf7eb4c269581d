package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/models"
)

func TestGradingScaleRepositoryFindByIDDecodesStringConfig(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradingScaleRepository(db)

	now := time.Now()
	stored := `"[{\"min\":0,\"max\":49,\"grade\":\"F\",\"remark\":\"Fail\"},{\"min\":50,\"max\":100,\"grade\":\"P\",\"remark\":\"Pass\"}]"`
	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_scales WHERE id = $1")).
		WithArgs("gs1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "grade_config", "is_default", "created_by", "created_at", "updated_at"}).
			AddRow("gs1", "Pass/Fail", []byte(stored), true, nil, now, now))

	scale, err := repo.FindByID(context.Background(), "gs1")
	require.NoError(t, err)
	require.Len(t, scale.GradeConfig, 2)
	assert.Equal(t, "P", scale.GradeConfig.Resolve(80).Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradingScaleRepositoryCreateDefaultClearsOthers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradingScaleRepository(db)

	scale := &models.GradingScale{
		ID:          "gs2",
		Name:        "WAEC",
		GradeConfig: models.GradeConfig{{Min: 0, Max: 100, Grade: "A"}},
		IsDefault:   true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grading_scales SET is_default = FALSE")).
		WithArgs("gs2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grading_scales")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), scale))
	assert.NoError(t, mock.ExpectationsWereMet())
}
