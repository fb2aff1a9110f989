package billing

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/garagedesk/garagedesk/web"
)

type lineView struct {
	Name        string
	Description string
	Quantity    string
	UnitPrice   string
	LineTotal   string
}

type documentView struct {
	Title     string
	Number    string
	Status    string
	IssuedAt  time.Time
	DateLabel string
	Date      time.Time
	Customer  Contact
	Items     []lineView
	Subtotal  string
	TaxRate   string
	TaxAmount string
	Total     string
	Notes     string

	raw Document
}

func invoiceView(inv Invoice, contact Contact) documentView {
	status := string(inv.Status)
	if inv.Overdue {
		status = string(InvoiceStatusOverdue)
	}
	return documentView{
		Title:     "Invoice",
		Number:    inv.Number,
		Status:    status,
		IssuedAt:  inv.CreatedAt,
		DateLabel: "Due date",
		Date:      inv.DueDate,
		Customer:  contact,
		Notes:     inv.Notes,
		raw:       inv.Document,
	}
}

func estimateView(est Estimate, contact Contact) documentView {
	status := string(est.Status)
	if est.Expired {
		status = string(EstimateStatusExpired)
	}
	return documentView{
		Title:     "Estimate",
		Number:    est.Number,
		Status:    status,
		IssuedAt:  est.CreatedAt,
		DateLabel: "Valid until",
		Date:      est.ValidUntil,
		Customer:  contact,
		Notes:     est.Notes,
		raw:       est.Document,
	}
}

// documentRenderer turns documents into printable HTML.
type documentRenderer struct {
	tpl     *template.Template
	unit    currency.Unit
	printer *message.Printer
}

func newDocumentRenderer(code string) *documentRenderer {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.USD
	}
	funcs := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
	}
	tpl := template.Must(template.New("document.html").Funcs(funcs).ParseFS(web.Templates, "templates/documents/document.html"))
	return &documentRenderer{
		tpl:     tpl,
		unit:    unit,
		printer: message.NewPrinter(language.English),
	}
}

// money formats an amount rounded to cents with the currency symbol.
func (r *documentRenderer) money(d decimal.Decimal) string {
	return r.printer.Sprint(currency.Symbol(r.unit.Amount(d.Round(2).InexactFloat64())))
}

// Render fills the line and total fields from the raw document and executes the template.
func (r *documentRenderer) Render(v documentView) (string, error) {
	v.Items = make([]lineView, 0, len(v.raw.Items))
	for _, item := range v.raw.Items {
		v.Items = append(v.Items, lineView{
			Name:        item.Name,
			Description: item.Description,
			Quantity:    strconv.Itoa(item.Quantity),
			UnitPrice:   r.money(item.UnitPrice),
			LineTotal:   r.money(item.LineTotal),
		})
	}
	v.Subtotal = r.money(v.raw.Subtotal)
	v.TaxRate = v.raw.TaxRate.String() + "%"
	v.TaxAmount = r.money(v.raw.TaxAmount)
	v.Total = r.money(v.raw.Total)

	var buf bytes.Buffer
	if err := r.tpl.ExecuteTemplate(&buf, "document.html", v); err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return buf.String(), nil
}
