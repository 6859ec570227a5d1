// Package invoice renders the A4 PDF invoice emailed to shoppers.
package invoice

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// VATRate is the Spanish IVA applied to every order. Order totals are VAT inclusive.
const VATRate = 0.21

// Company is the seller block printed on every invoice.
var Company = []string{
	"CORISA TEXTIL S.L.",
	"B02852895",
	"Calle Neptuno 29",
	"Pozuelo de Alarcón, Madrid, 28224",
	"(+34) 608667749",
}

// Line is one invoiced product.
type Line struct {
	Name     string
	Quantity int
	Price    float64
}

// Total returns quantity times unit price.
func (l Line) Total() float64 { return round2(float64(l.Quantity) * l.Price) }

// Invoice is the data printed on the PDF.
type Invoice struct {
	Number     string
	Date       time.Time
	ClientName string
	Address    string
	CityLine   string
	Phone      string
	Lines      []Line
	GrossTotal float64
	ApplyVAT   bool
}

// FromOrder builds an invoice from a looked-up order, billing to the order's
// billing address.
func FromOrder(o *models.Order) (Invoice, error) {
	if o == nil {
		return Invoice{}, fmt.Errorf("no order to invoice")
	}
	gross, err := parseAmount(o.TotalPrice)
	if err != nil {
		return Invoice{}, fmt.Errorf("invalid order total %q: %w", o.TotalPrice, err)
	}
	inv := Invoice{
		Number:     o.Name,
		Date:       o.CreatedAt,
		ClientName: o.BillingAddress.FullName(),
		Address:    o.BillingAddress.Address1,
		CityLine:   o.BillingAddress.CityLine(),
		Phone:      o.BillingAddress.Phone,
		GrossTotal: gross,
		ApplyVAT:   true,
	}
	for _, li := range o.LineItems {
		price, err := parseAmount(li.Price)
		if err != nil {
			return Invoice{}, fmt.Errorf("invalid price %q for %s: %w", li.Price, li.Title, err)
		}
		inv.Lines = append(inv.Lines, Line{Name: li.Title, Quantity: li.Quantity, Price: price})
	}
	return inv, nil
}

// Totals splits the VAT-inclusive gross total into base and VAT.
func (inv Invoice) Totals() (subtotal, vat, total float64) {
	subtotal = round2(inv.GrossTotal / (1 + VATRate))
	if inv.ApplyVAT {
		vat = round2(VATRate * subtotal)
	}
	return subtotal, vat, round2(subtotal + vat)
}

// Filename is the attachment name used when emailing the invoice.
func (inv Invoice) Filename() string {
	return "factura-" + strings.TrimLeft(inv.Number, "#") + ".pdf"
}

// Render draws the invoice and returns the PDF bytes.
func Render(inv Invoice) ([]byte, error) {
	const (
		left   = 20.0
		right  = 190.0
		center = 105.0
		line   = 7.0
	)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(inv.Date)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	textRight := func(s string, y float64) {
		s = tr(s)
		pdf.Text(right-pdf.GetStringWidth(s), y, s)
	}
	text := func(s string, x, y float64) { pdf.Text(x, y, tr(s)) }

	y := 20.0
	pdf.SetFont("Helvetica", "B", 16)
	textRight("FACTURA", y)
	y += line * 2
	pdf.SetFont("Helvetica", "", 12)
	textRight(inv.Number, y)
	y += line
	if !inv.Date.IsZero() {
		textRight(inv.Date.Format("02/01/2006"), y)
	}

	y += line * 3
	companyY := y

	pdf.SetFont("Helvetica", "B", 12)
	text("Datos del cliente", left, y)
	y += line * 2
	pdf.SetFont("Helvetica", "", 10)
	for _, s := range []string{inv.ClientName, inv.Address, inv.CityLine, inv.Phone} {
		if strings.TrimSpace(s) == "" {
			continue
		}
		text(s, left, y)
		y += line
	}

	pdf.SetFont("Helvetica", "B", 12)
	textRight("Datos", companyY)
	companyY += line * 2
	pdf.SetFont("Helvetica", "", 10)
	for _, s := range Company {
		textRight(s, companyY)
		companyY += line
	}

	y = math.Max(y, companyY) + line*3
	pdf.SetFont("Helvetica", "B", 12)
	text("ARTÍCULOS", left, y)
	text("CANTIDAD", center-20, y)
	text("PRECIO", center+20, y)
	textRight("TOTAL", y)
	pdf.SetLineWidth(0.5)
	pdf.Line(left, y-5, right, y-5)
	pdf.Line(left, y+3, right, y+3)

	y += line * 2
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range inv.Lines {
		text(l.Name, left, y)
		text(strconv.Itoa(l.Quantity), center-20, y)
		text(euros(l.Price), center+20, y)
		textRight(euros(l.Total()), y)
		y += line * 1.5
	}

	subtotal, vat, total := inv.Totals()
	y += line
	pdf.SetFont("Helvetica", "B", 12)
	for _, row := range []struct {
		label  string
		amount float64
	}{{"Subtotal", subtotal}, {"IVA", vat}, {"TOTAL", total}} {
		text(row.label, center+20, y)
		textRight(euros(row.amount), y)
		y += line * 2
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}

func euros(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + " €"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
