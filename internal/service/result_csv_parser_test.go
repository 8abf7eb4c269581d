package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

func TestResultTemplateHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"user_id", "email", "first_name", "last_name", "MATH_CA", "MATH_EXAM", "ENG_CA", "ENG_EXAM"},
		ResultTemplateHeader([]string{"math", "ENG"}))
}

func TestResultCSVParserReshapesWideRows(t *testing.T) {
	csv := "user_id,email,first_name,last_name,MATH_CA,MATH_EXAM,ENG_CA,ENG_EXAM\n" +
		"u1,,Ada,Obi,20,25,,\n" +
		",b@school.test,Bola,Uche,40,40,10,\n"

	res, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(csv), []string{"MATH", "ENG"})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Rows)
	require.Len(t, res.Records, 3)

	first := res.Records[0]
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "MATH", first.SubjectCode)
	assert.Equal(t, 2, first.Line)
	assert.True(t, first.TotalScore.Equal(decimal.NewFromInt(45)))

	eng := res.Records[2]
	assert.Equal(t, "b@school.test", eng.Email)
	assert.Equal(t, "ENG", eng.SubjectCode)
	assert.True(t, eng.ExamScore.IsZero(), "one empty side counts as zero")
	assert.True(t, eng.TotalScore.Equal(decimal.NewFromInt(10)))
}

func TestResultCSVParserKeepsDecimalScoresExact(t *testing.T) {
	csv := "user_id,MATH_CA,MATH_EXAM\nu1,0.1,0.2\n"
	res, err := NewResultCSVParser(0).Parse(context.Background(), strings.NewReader(csv), []string{"MATH"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "0.3", res.Records[0].TotalScore.String())
}

func TestResultCSVParserCollectsCellErrorsWithoutAborting(t *testing.T) {
	csv := "user_id,email,MATH_CA,MATH_EXAM,ENG_CA,ENG_EXAM\n" +
		"u1,,abc,10,5,5\n" +
		"u2,,-1,10,,\n" +
		",,10,10,,\n" +
		"u4,,30,30,,\n"

	res, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(csv), []string{"MATH", "ENG"})
	require.NoError(t, err)
	require.Len(t, res.Errors, 3)

	assert.Equal(t, 2, res.Errors[0].Line)
	assert.Equal(t, "MATH", res.Errors[0].SubjectCode)
	assert.Equal(t, "abc", res.Errors[0].Data["value"])
	assert.Contains(t, res.Errors[1].Error, "must not be negative")
	assert.Equal(t, 4, res.Errors[2].Line)
	assert.Equal(t, "Row must include user_id or email", res.Errors[2].Error)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "ENG", res.Records[0].SubjectCode, "the valid subject of a row with one bad cell is kept")
	assert.Equal(t, "u4", res.Records[1].UserID)
}

func TestResultCSVParserRejectsScoresTheColumnsCannotHold(t *testing.T) {
	csv := "user_id,MATH_CA,MATH_EXAM\n" +
		"s1,,1e9\n" +
		"s2,,49.995\n" +
		"s3,999999.99,999999.99\n" +
		"s4,12345678,1\n" +
		"s5,1000000,0\n" +
		"s6,12.50,0.10\n"

	res, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(csv), []string{"MATH"})
	require.NoError(t, err)
	require.Len(t, res.Errors, 4)

	assert.Equal(t, 2, res.Errors[0].Line)
	assert.Equal(t, "1e9", res.Errors[0].Data["value"])
	assert.Contains(t, res.Errors[0].Error, "must be below 1000000")
	assert.Equal(t, 3, res.Errors[1].Line)
	assert.Contains(t, res.Errors[1].Error, "at most 2 decimal places")
	assert.Equal(t, "s4", res.Errors[2].Data["user_id"])
	assert.Contains(t, res.Errors[2].Error, "Invalid CA score")
	assert.Equal(t, 6, res.Errors[3].Line)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "s3", res.Records[0].UserID)
	assert.Equal(t, "1999999.98", res.Records[0].TotalScore.String())
	assert.Equal(t, "s6", res.Records[1].UserID)
	assert.True(t, res.Records[1].TotalScore.Equal(decimal.RequireFromString("12.6")))
}

func TestResultCSVParserHandlesBOMAndCaseInsensitiveHeaders(t *testing.T) {
	csv := "\ufeffUser_ID,EMAIL,math_ca,Math_Exam\nu1,a@school.test,1,2\n"
	res, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(csv), []string{"math"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "u1", res.Records[0].UserID)
	assert.Equal(t, "MATH", res.Records[0].SubjectCode)
}

func TestResultCSVParserRejectsHeaderWithoutIdentifiers(t *testing.T) {
	_, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader("first_name,MATH_CA\nAda,1\n"), []string{"MATH"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(""), []string{"MATH"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResultCSVParserMalformedQuotingIsARowError(t *testing.T) {
	csv := "user_id,MATH_CA,MATH_EXAM\nu1,1,2\nu2,4\"0,5\nu3,3,3\n"
	res, err := NewResultCSVParser(time.Second).Parse(context.Background(), strings.NewReader(csv), []string{"MATH"})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Error, "Malformed CSV row")
	require.Len(t, res.Records, 2)
	assert.Equal(t, "u3", res.Records[1].UserID)
}

type slowReader struct {
	data  string
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:1], s.data)
	s.data = s.data[n:]
	return n, nil
}

func TestResultCSVParserTimeoutIsDistinctFromParseErrors(t *testing.T) {
	body := "user_id,MATH_CA,MATH_EXAM\n" + strings.Repeat("u1,1,1\n", 200)
	_, err := NewResultCSVParser(20*time.Millisecond).Parse(context.Background(), &slowReader{data: body, delay: time.Millisecond}, []string{"MATH"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrImportTimeout))
	assert.False(t, appErrors.Is(err, appErrors.ErrValidation))
}

// blockingReader never returns from Read until it is closed.
type blockingReader struct {
	header string
	closed chan struct{}
	once   sync.Once
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if b.header != "" {
		n := copy(p, b.header)
		b.header = b.header[n:]
		return n, nil
	}
	<-b.closed
	return 0, errors.New("read on closed source")
}

func (b *blockingReader) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestResultCSVParserTimeoutClosesBlockedSource(t *testing.T) {
	src := &blockingReader{header: "user_id,MATH_CA,MATH_EXAM\nu1,1,1\n", closed: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := NewResultCSVParser(20*time.Millisecond).Parse(context.Background(), src, []string{"MATH"})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrImportTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("parse stayed blocked after the timeout")
	}
}

func TestResolveGrade(t *testing.T) {
	scale := passFailScale()

	assert.Equal(t, "F", ResolveGrade(45, scale).Grade)
	assert.Equal(t, "P", ResolveGrade(80, scale).Grade)
	assert.Equal(t, "P", ResolveGrade(50, scale).Grade, "range bounds are inclusive")
	assert.Equal(t, "Pass", ResolveGrade(100, scale).Remark)

	fallback := ResolveGrade(49.5, scale)
	assert.Equal(t, "F", fallback.Grade, "gaps between ranges fall back")
	assert.Equal(t, "Fail", fallback.Remark)
	assert.Equal(t, "F", ResolveGrade(140, scale).Grade)
}

func TestResolveGradeFirstMatchWins(t *testing.T) {
	scale := passFailScale()
	for score := 0; score <= 100; score++ {
		got := ResolveGrade(float64(score), scale)
		if score < 50 {
			assert.Equal(t, "F", got.Grade, "score %d", score)
		} else {
			assert.Equal(t, "P", got.Grade, "score %d", score)
		}
	}
}
