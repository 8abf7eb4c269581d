package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FallbackGrade is returned when no configured range contains a score.
var FallbackGrade = GradeResult{Grade: "F", Remark: "Fail"}

// GradeRange maps the closed interval [Min, Max] to a grade.
type GradeRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Grade  string  `json:"grade"`
	Remark string  `json:"remark"`
}

// GradeResult is the outcome of resolving a score.
type GradeResult struct {
	Grade  string `json:"grade"`
	Remark string `json:"remark"`
}

// GradeConfig is the ordered list of ranges of a grading scale. It decodes from
// either a JSON array or a JSON string holding an array.
type GradeConfig []GradeRange

// Resolve returns the first range containing total, or FallbackGrade.
func (g GradeConfig) Resolve(total float64) GradeResult {
	for _, r := range g {
		if r.Min <= total && total <= r.Max {
			return GradeResult{Grade: r.Grade, Remark: r.Remark}
		}
	}
	return FallbackGrade
}

// Validate checks that every range is well formed and that no two ranges overlap.
func (g GradeConfig) Validate() error {
	if len(g) == 0 {
		return fmt.Errorf("grade config requires at least one range")
	}
	for i, r := range g {
		if r.Grade == "" {
			return fmt.Errorf("range %d: grade is required", i+1)
		}
		if r.Min < 0 || r.Min > r.Max {
			return fmt.Errorf("range %d: min must be between 0 and max", i+1)
		}
		for j := 0; j < i; j++ {
			o := g[j]
			if r.Min <= o.Max && o.Min <= r.Max {
				return fmt.Errorf("range %d overlaps range %d", i+1, j+1)
			}
		}
	}
	return nil
}

// UnmarshalJSON accepts an array or a JSON-encoded string containing an array.
func (g *GradeConfig) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("decode grade config string: %w", err)
		}
		if inner == "" {
			*g = nil
			return nil
		}
		return g.UnmarshalJSON([]byte(inner))
	}
	var ranges []GradeRange
	if err := json.Unmarshal(data, &ranges); err != nil {
		return fmt.Errorf("decode grade config: %w", err)
	}
	*g = ranges
	return nil
}

// Value marshals the ranges for a JSONB column.
func (g GradeConfig) Value() (driver.Value, error) {
	ranges := []GradeRange(g)
	if ranges == nil {
		ranges = []GradeRange{}
	}
	data, err := json.Marshal(ranges)
	if err != nil {
		return nil, fmt.Errorf("marshal grade config: %w", err)
	}
	return data, nil
}

// Scan decodes a JSONB column.
func (g *GradeConfig) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*g = nil
		return nil
	case []byte:
		return g.UnmarshalJSON(v)
	case string:
		return g.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported type %T for GradeConfig", value)
	}
}

// GradingScale is a named grade configuration.
type GradingScale struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	GradeConfig GradeConfig `db:"grade_config" json:"gradeConfig"`
	IsDefault   bool        `db:"is_default" json:"isDefault"`
	CreatedBy   *string     `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}
