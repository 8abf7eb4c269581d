package service

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// ResolveGrade maps a total score to the first range of scale containing it.
// Scores outside every range resolve to models.FallbackGrade.
func ResolveGrade(total float64, scale models.GradeConfig) models.GradeResult {
	return scale.Resolve(total)
}

func resolveDecimalGrade(total decimal.Decimal, scale models.GradeConfig) models.GradeResult {
	f, _ := total.Float64()
	return ResolveGrade(f, scale)
}
