package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ReportCard is the printable view of one student's results for a period.
type ReportCard struct {
	SchoolName    string
	StudentName   string
	StudentEmail  string
	Classroom     string
	AcademicYear  string
	Term          string
	Lines         []ReportCardLine
	TeacherName   string
	PrincipalName string
}

// ReportCardLine is one subject row on the card.
type ReportCardLine struct {
	SubjectCode string
	SubjectName string
	CAScore     string
	ExamScore   string
	TotalScore  string
	Grade       string
	Remark      string
}

var reportCardColumns = []struct {
	title string
	width float64
	align string
}{
	{"Code", 20, "L"},
	{"Subject", 56, "L"},
	{"CA", 20, "R"},
	{"Exam", 20, "R"},
	{"Total", 20, "R"},
	{"Grade", 16, "C"},
	{"Remark", 38, "L"},
}

// PDFExporter renders report cards with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderReportCard lays out a single A4 page per card.
func (e *PDFExporter) RenderReportCard(card ReportCard) ([]byte, error) {
	if strings.TrimSpace(card.StudentName) == "" {
		return nil, fmt.Errorf("report card requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	title := "STUDENT REPORT CARD"
	if card.SchoolName != "" {
		title = strings.ToUpper(card.SchoolName)
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	info := [][2]string{
		{"Student", card.StudentName},
		{"Email", card.StudentEmail},
		{"Class", card.Classroom},
		{"Session", strings.TrimSpace(card.AcademicYear + " " + card.Term)},
	}
	for _, kv := range info {
		if kv[1] == "" {
			continue
		}
		pdf.CellFormat(30, 6, kv[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	for _, col := range reportCardColumns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	if len(card.Lines) == 0 {
		pdf.CellFormat(190, 7, "No results recorded", "1", 1, "C", false, 0, "")
	}
	for _, line := range card.Lines {
		values := []string{line.SubjectCode, line.SubjectName, line.CAScore, line.ExamScore, line.TotalScore, line.Grade, line.Remark}
		for i, col := range reportCardColumns {
			pdf.CellFormat(col.width, 7, values[i], "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(12)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 6, "Class Teacher: "+card.TeacherName, "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Principal: "+card.PrincipalName, "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
