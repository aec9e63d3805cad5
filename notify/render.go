package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prosuite/rent-ledger/billing"
)

const invoiceTemplate = `INVOICE {{.Invoice.InvoiceNumber}}
{{.PropertyName}}

Billed to:  {{.TenantName}} (Unit {{.Invoice.UnitID}})
Period:     {{.Invoice.Period.Label}}
Issued:     {{date .Invoice.IssueDate}}
Due:        {{date .Invoice.DueDate}}
Status:     {{.Invoice.Status}}

{{range .Invoice.LineItems}}{{printf "%-24s" .Label}} {{printf "%12s" (money .Amount)}}{{if .Detail}}
    {{.Detail}}{{end}}
{{end}}
{{printf "%-24s" "Total due"}} {{printf "%12s" (money .Invoice.TotalDue)}}
{{printf "%-24s" "Amount paid"}} {{printf "%12s" (money .Invoice.AmountPaid)}}
{{with .PaymentDetails}}{{if or .Bank .AccountNumber}}
Pay to:
  {{.AccountName}}
  {{.Bank}} {{.AccountNumber}}
{{end}}{{end}}`

// TextRenderer renders invoices as plain-text attachments.
type TextRenderer struct {
	tmpl *template.Template
}

func NewTextRenderer() *TextRenderer {
	funcs := template.FuncMap{
		"date":  func(t time.Time) string { return t.Format("2006-01-02") },
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}
	return &TextRenderer{
		tmpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceTemplate)),
	}
}

func (r *TextRenderer) Render(doc billing.InvoiceDocument) (billing.Attachment, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return billing.Attachment{}, fmt.Errorf("render invoice %s: %w", doc.Invoice.InvoiceNumber, err)
	}
	return billing.Attachment{
		Filename:    fmt.Sprintf("invoice-%s.txt", doc.Invoice.InvoiceNumber),
		ContentType: "text/plain; charset=utf-8",
		Content:     buf.Bytes(),
	}, nil
}
