package render

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/go-pdf/fpdf"

	"billoffice/internal/apperr"
	"billoffice/internal/model"
)

// Line is one printable line item, already resolved to a display label.
type Line struct {
	Label     string
	Quantity  float64
	UnitPrice float64
}

func (l Line) Amount() float64 {
	return l.Quantity * l.UnitPrice
}

// Renderer turns a document into PDF bytes. Implementations are stateless
// and know nothing about storage.
type Renderer interface {
	Render(doc *model.Document, items []Line, owner *model.User, client *model.Client) ([]byte, error)
}

// PDFRenderer renders a single multi-page-capable A4 document.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render produces the PDF. Output is deterministic for identical inputs
// apart from the generated-at footer. A missing or undecodable logo renders
// a text placeholder instead of aborting.
func (r *PDFRenderer) Render(doc *model.Document, items []Line, owner *model.User, client *model.Client) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	r.drawHeader(pdf, doc, owner)
	r.drawParties(pdf, owner, client)
	r.drawItemTable(pdf, doc, items)
	r.drawTotals(pdf, doc)
	r.drawPaymentTerms(pdf, doc)

	pdf.SetY(-15)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 10,
		fmt.Sprintf("Generated at %s", time.Now().UTC().Format(time.RFC3339)),
		"", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperr.RenderFailed("pdf output failed", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) drawHeader(pdf *fpdf.Fpdf, doc *model.Document, owner *model.User) {
	logoDrawn := false
	if len(owner.Logo) > 0 {
		// Validate before handing the bytes to fpdf so a corrupt logo
		// degrades to a placeholder instead of poisoning the document.
		if _, err := png.DecodeConfig(bytes.NewReader(owner.Logo)); err == nil {
			opts := fpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(owner.Logo))
			pdf.ImageOptions("logo", 10, 10, 30, 0, false, opts, 0, "")
			logoDrawn = true
		}
	}
	if !logoDrawn {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetXY(10, 10)
		pdf.CellFormat(30, 10, "[no logo]", "1", 0, "C", false, 0, "")
	}

	title := "INVOICE"
	if doc.Kind == model.KindExpense {
		title = "EXPENSE"
	}
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(10, 25)
	pdf.CellFormat(0, 12, title, "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("No. %s", doc.Number), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", doc.IssueDate.Format("2006-01-02")), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Due: %s", doc.DueDate.Format("2006-01-02")), "", 1, "R", false, 0, "")
	pdf.Ln(4)
}

func (r *PDFRenderer) drawParties(pdf *fpdf.Fpdf, owner *model.User, client *model.Client) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(95, 6, "From", "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Bill to", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	y := pdf.GetY()
	pdf.MultiCell(95, 5, fmt.Sprintf("%s\n%s", owner.CompanyName, owner.Address), "", "L", false)
	endY := pdf.GetY()

	pdf.SetXY(105, y)
	clientBlock := ""
	if client != nil {
		clientBlock = fmt.Sprintf("%s\n%s\n%s", client.Name, client.Address, client.Email)
	}
	pdf.MultiCell(95, 5, clientBlock, "", "L", false)
	if pdf.GetY() > endY {
		endY = pdf.GetY()
	}
	pdf.SetY(endY + 6)
}

func (r *PDFRenderer) drawItemTable(pdf *fpdf.Fpdf, doc *model.Document, items []Line) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(90, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Unit price", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, it := range items {
		pdf.CellFormat(90, 8, it.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, fmt.Sprintf("%.2f", it.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, fmt.Sprintf("%.2f", it.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 8, fmt.Sprintf("%.2f", it.Amount()), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

func (r *PDFRenderer) drawTotals(pdf *fpdf.Fpdf, doc *model.Document) {
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(155, 7, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, fmt.Sprintf("%.2f %s", doc.Subtotal, doc.Currency), "", 1, "R", false, 0, "")
	pdf.CellFormat(155, 7, fmt.Sprintf("Tax (%.1f%%)", doc.TaxRate), "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, fmt.Sprintf("%.2f %s", doc.Subtotal*doc.TaxRate/100, doc.Currency), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(155, 8, "Total", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, fmt.Sprintf("%.2f %s", doc.Total, doc.Currency), "", 1, "R", false, 0, "")
	pdf.Ln(4)
}

func (r *PDFRenderer) drawPaymentTerms(pdf *fpdf.Fpdf, doc *model.Document) {
	if doc.PaymentTerms != model.PaymentAdvanceBalance {
		return
	}

	pdf.SetFont("Helvetica", "", 10)
	if doc.AdvanceAmount != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Advance payment: %.2f %s", *doc.AdvanceAmount, doc.Currency), "", 1, "L", false, 0, "")
	}
	if doc.BalanceDue != nil {
		line := fmt.Sprintf("Balance due: %.2f %s", *doc.BalanceDue, doc.Currency)
		if doc.BalanceDueDate != nil {
			line += fmt.Sprintf(" by %s", doc.BalanceDueDate.Format("2006-01-02"))
		}
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
	}
}
