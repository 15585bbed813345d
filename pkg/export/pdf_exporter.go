package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// KeyValue is a labelled figure in a report summary block.
type KeyValue struct {
	Label string
	Value string
}

// Section groups a report heading with an optional summary block and table.
type Section struct {
	Heading string
	Summary []KeyValue
	Table   *Dataset
}

// Report describes a multi-section document (profile summaries, comparison
// result sets) rendered to PDF.
type Report struct {
	Title    string
	Subtitle string
	Sections []Section
}

// PDFExporter renders reports into paginated PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document from the report definition.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	if len(report.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(report.Title), "", 1, "C", false, 0, "")
	}
	if report.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, report.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range report.Sections {
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, section.Heading, "", 1, "L", false, 0, "")
		}
		if len(section.Summary) > 0 {
			pdf.SetFont("Arial", "", 9)
			for _, kv := range section.Summary {
				pdf.CellFormat(70, 6, kv.Label, "", 0, "L", false, 0, "")
				pdf.CellFormat(0, 6, kv.Value, "", 1, "L", false, 0, "")
			}
			pdf.Ln(2)
		}
		if section.Table != nil && len(section.Table.Columns) > 0 {
			if err := renderTable(pdf, *section.Table); err != nil {
				return nil, err
			}
			pdf.Ln(3)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTable(pdf *gofpdf.Fpdf, data Dataset) error {
	if len(data.Columns) == 0 {
		return fmt.Errorf("pdf table requires at least one column")
	}
	pdf.SetFont("Arial", "B", 9)
	colWidth := 190.0 / float64(len(data.Columns))
	for _, column := range data.Columns {
		pdf.CellFormat(colWidth, 7, column, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, column := range data.Columns {
			pdf.CellFormat(colWidth, 6, row[column], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return nil
}
