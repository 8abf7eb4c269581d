package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

const (
	columnUserID    = "user_id"
	columnEmail     = "email"
	columnFirstName = "first_name"
	columnLastName  = "last_name"
	caSuffix        = "_CA"
	examSuffix      = "_EXAM"
	utf8BOM         = "\ufeff"
)

// ResultTemplateHeader returns the CSV header shared by templates and uploads.
func ResultTemplateHeader(codes []string) []string {
	header := []string{columnUserID, columnEmail, columnFirstName, columnLastName}
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		header = append(header, code+caSuffix, code+examSuffix)
	}
	return header
}

// ParsedScoreRecord is one student's scores for one subject.
type ParsedScoreRecord struct {
	Line        int
	UserID      string
	Email       string
	SubjectCode string
	CAScore     decimal.Decimal
	ExamScore   decimal.Decimal
	TotalScore  decimal.Decimal
}

// ParseResult holds the records and row-level errors of one file.
type ParseResult struct {
	Records []ParsedScoreRecord
	Errors  models.ImportErrors
	Rows    int
}

// ResultCSVParser reshapes wide per-subject CSV files into score records.
type ResultCSVParser struct {
	timeout time.Duration
}

// NewResultCSVParser builds a parser that aborts after timeout. A non-positive
// timeout disables the limit.
func NewResultCSVParser(timeout time.Duration) *ResultCSVParser {
	return &ResultCSVParser{timeout: timeout}
}

type subjectColumns struct {
	code string
	ca   int
	exam int
}

// Parse streams r row by row. Malformed rows and cells are collected in
// ParseResult.Errors; only an unusable header, a read failure or the timeout
// abort the file. When r is an io.Closer it is closed once ctx is done.
func (p *ResultCSVParser) Parse(ctx context.Context, r io.Reader, codes []string) (*ParseResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// A Read blocked on a slow source only returns once the source is closed.
	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	reader := csv.NewReader(&contextReader{ctx: ctx, r: r})
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if cerr := p.contextError(ctx); cerr != nil {
			return nil, cerr
		}
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "CSV file is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "CSV header could not be read")
	}

	header = append([]string(nil), header...)
	index := headerIndex(header)
	userCol, hasUser := index[columnUserID]
	emailCol, hasEmail := index[columnEmail]
	if !hasUser && !hasEmail {
		return nil, appErrors.Clone(appErrors.ErrValidation, "CSV header must include user_id or email")
	}
	if !hasUser {
		userCol = -1
	}
	if !hasEmail {
		emailCol = -1
	}

	subjects := make([]subjectColumns, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		cols := subjectColumns{code: code, ca: -1, exam: -1}
		if i, ok := index[strings.ToLower(code+caSuffix)]; ok {
			cols.ca = i
		}
		if i, ok := index[strings.ToLower(code+examSuffix)]; ok {
			cols.exam = i
		}
		subjects = append(subjects, cols)
	}

	result := &ParseResult{}
	for {
		if cerr := p.contextError(ctx); cerr != nil {
			return nil, cerr
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cerr := p.contextError(ctx); cerr != nil {
				return nil, cerr
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Rows++
				result.Errors = append(result.Errors, models.ImportError{
					Line:  parseErr.StartLine,
					Error: fmt.Sprintf("Malformed CSV row: %v", parseErr.Err),
				})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrImportFailed.Code, appErrors.ErrImportFailed.Status, "failed to read CSV")
		}

		if blankRecord(record) {
			continue
		}
		result.Rows++
		line, _ := reader.FieldPos(0)

		userID := cell(record, userCol)
		email := cell(record, emailCol)
		if userID == "" && email == "" {
			result.Errors = append(result.Errors, models.ImportError{
				Line:  line,
				Data:  rowData(header, record),
				Error: "Row must include user_id or email",
			})
			continue
		}
		identity := map[string]string{}
		if userID != "" {
			identity[columnUserID] = userID
		}
		if email != "" {
			identity[columnEmail] = email
		}

		for _, subject := range subjects {
			rawCA := cell(record, subject.ca)
			rawExam := cell(record, subject.exam)
			if rawCA == "" && rawExam == "" {
				continue
			}
			ca, err := parseScore(rawCA)
			if err != nil {
				result.Errors = append(result.Errors, scoreError(line, subject.code, "CA", rawCA, identity, err))
				continue
			}
			exam, err := parseScore(rawExam)
			if err != nil {
				result.Errors = append(result.Errors, scoreError(line, subject.code, "exam", rawExam, identity, err))
				continue
			}
			result.Records = append(result.Records, ParsedScoreRecord{
				Line:        line,
				UserID:      userID,
				Email:       email,
				SubjectCode: subject.code,
				CAScore:     ca,
				ExamScore:   exam,
				TotalScore:  ca.Add(exam),
			})
		}
	}
	return result, nil
}

func (p *ResultCSVParser) contextError(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrImportTimeout.Code, appErrors.ErrImportTimeout.Status,
			fmt.Sprintf("CSV parsing exceeded %s", p.timeout))
	default:
		return err
	}
}

// Scores are stored as NUMERIC(8, 2).
const scorePlaces = 2

var (
	maxScore = decimal.New(1, 6)

	errNegativeScore  = errors.New("must not be negative")
	errScoreTooLarge  = fmt.Errorf("must be below %s", maxScore)
	errScorePrecision = fmt.Errorf("must have at most %d decimal places", scorePlaces)
)

func parseScore(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("not a number")
	}
	if value.IsNegative() {
		return decimal.Zero, errNegativeScore
	}
	if value.GreaterThanOrEqual(maxScore) {
		return decimal.Zero, errScoreTooLarge
	}
	if !value.Equal(value.Truncate(scorePlaces)) {
		return decimal.Zero, errScorePrecision
	}
	return value, nil
}

func scoreError(line int, code, part, raw string, identity map[string]string, cause error) models.ImportError {
	data := make(map[string]string, len(identity)+1)
	for k, v := range identity {
		data[k] = v
	}
	data["value"] = raw
	return models.ImportError{
		Line:        line,
		SubjectCode: code,
		Data:        data,
		Error:       fmt.Sprintf("Invalid %s score for %s: %s", part, code, cause),
	}
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := index[key]; !seen && key != "" {
			index[key] = i
		}
	}
	return index
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func rowData(header, record []string) map[string]string {
	data := make(map[string]string, len(record))
	for i, v := range record {
		if i >= len(header) || strings.TrimSpace(v) == "" {
			continue
		}
		data[strings.TrimSpace(strings.TrimPrefix(header[i], utf8BOM))] = v
	}
	return data
}

// contextReader fails reads once ctx is done. It checks between reads only;
// a read already blocked is released by closing the source.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
