// Package export renders meeting points and invites into downloadable formats.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/example/cart-scheduler/internal/application"
)

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

var dayNames = map[time.Weekday]string{
	time.Monday:    "Lunes",
	time.Tuesday:   "Martes",
	time.Wednesday: "Miércoles",
	time.Thursday:  "Jueves",
	time.Friday:    "Viernes",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

type column struct {
	title string
	width float64
}

var pdfColumns = []column{
	{"Fecha", 38},
	{"Hora", 18},
	{"Lugar", 45},
	{"Director", 40},
	{"Tema", 39},
}

const (
	pdfMargin     = 15.0
	pdfLineHeight = 4.5
	pdfCellMargin = 2.0
)

// PDFRenderer renders a month of meeting points as an A4 table.
type PDFRenderer struct {
	compress bool
}

// NewPDFRenderer returns a renderer producing compressed PDF documents.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{compress: true}
}

// ContentType implements application.MonthRenderer.
func (r *PDFRenderer) ContentType() string { return "application/pdf" }

// Filename implements application.MonthRenderer.
func (r *PDFRenderer) Filename(month string) string {
	return fmt.Sprintf("puntos_encuentro_%s.pdf", month)
}

// RenderMonth implements application.MonthRenderer. Points are rendered in
// the order given.
func (r *PDFRenderer) RenderMonth(month string, points []application.MeetingPoint) ([]byte, error) {
	title, err := monthTitle(month)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetCellMargin(pdfCellMargin)
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(15, 23, 42)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	t := &table{pdf: pdf, tr: tr}
	t.header()

	if len(points) == 0 {
		t.span("Sin puntos de encuentro", "")
	}
	for _, mp := range points {
		t.row([]string{
			formatDay(mp.Date),
			mp.Time,
			mp.Location,
			conductorName(mp.Conductor),
			deref(mp.Outline),
		})
		if link := deref(mp.Link); link != "" {
			t.span("Enlace: "+link, link)
		}
	}
	t.close()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type table struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func (t *table) width() float64 {
	var total float64
	for _, c := range pdfColumns {
		total += c.width
	}
	return total
}

func (t *table) header() {
	pdf := t.pdf
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetDrawColor(226, 232, 240)
	pdf.SetX(pdfMargin)
	for _, c := range pdfColumns {
		pdf.CellFormat(c.width, 9, t.tr(c.title), "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

// ensure starts a new page with a repeated header when height does not fit.
func (t *table) ensure(height float64) {
	_, pageHeight := t.pdf.GetPageSize()
	if t.pdf.GetY()+height <= pageHeight-pdfMargin {
		return
	}
	t.close()
	t.pdf.AddPage()
	t.header()
}

func (t *table) row(cells []string) {
	pdf := t.pdf
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(15, 23, 42)

	lines := 1
	translated := make([]string, len(cells))
	for i, cell := range cells {
		translated[i] = t.tr(cell)
		if n := len(pdf.SplitLines([]byte(translated[i]), pdfColumns[i].width)); n > lines {
			lines = n
		}
	}
	height := float64(lines)*pdfLineHeight + 4
	t.ensure(height)

	y := pdf.GetY()
	pdf.Line(pdfMargin, y, pdfMargin+t.width(), y)
	x := pdfMargin
	for i, cell := range translated {
		pdf.SetXY(x, y+2)
		pdf.MultiCell(pdfColumns[i].width, pdfLineHeight, cell, "", "L", false)
		x += pdfColumns[i].width
	}
	t.edges(y, height)
	pdf.SetXY(pdfMargin, y+height)
}

// span writes a row across every column, linked to url when it is set.
func (t *table) span(text, url string) {
	pdf := t.pdf
	pdf.SetFont("Helvetica", "", 8)
	text = t.tr(text)
	lines := len(pdf.SplitLines([]byte(text), t.width()))
	if lines < 1 {
		lines = 1
	}
	height := float64(lines)*4 + 2
	t.ensure(height)

	y := pdf.GetY()
	pdf.SetFillColor(248, 250, 252)
	pdf.Rect(pdfMargin, y, t.width(), height, "F")
	pdf.SetTextColor(15, 23, 42)
	if url != "" {
		pdf.SetTextColor(37, 99, 235)
	}
	pdf.SetXY(pdfMargin, y+1)
	pdf.MultiCell(t.width(), 4, text, "", "L", false)
	if url != "" {
		pdf.LinkString(pdfMargin, y, t.width(), height, url)
	}
	t.edges(y, height)
	pdf.SetXY(pdfMargin, y+height)
}

func (t *table) edges(y, height float64) {
	right := pdfMargin + t.width()
	t.pdf.Line(pdfMargin, y, pdfMargin, y+height)
	t.pdf.Line(right, y, right, y+height)
}

func (t *table) close() {
	y := t.pdf.GetY()
	t.pdf.Line(pdfMargin, y, pdfMargin+t.width(), y)
}

func monthTitle(month string) (string, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	return fmt.Sprintf("Puntos de Encuentro — %s %d", monthNames[parsed.Month()-1], parsed.Year()), nil
}

// formatDay renders a date as "Lunes 02/03/2026".
func formatDay(date time.Time) string {
	return dayNames[date.Weekday()] + " " + date.Format("02/01/2006")
}

func conductorName(p *application.Person) string {
	if p == nil {
		return ""
	}
	return p.DisplayName()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
