// Package extract wraps the external document-understanding collaborators:
// the extraction service that turns a scanned document into a structured
// candidate invoice, the classification service that labels its quality, and
// the vector service that produces embeddings. Each client degrades the way
// the ledger expects: extraction failure is fatal to the ingestion attempt,
// classification falls back to local rules, vectors are simply absent.
package extract

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandidateInvoice is the structured output of extraction, before the
// ingestion processor has accepted it into the ledger.
type CandidateInvoice struct {
	InvoiceNumber    string          `json:"invoice_number"`
	InvoiceDate      time.Time       `json:"invoice_date"`
	CounterpartyName string          `json:"counterparty_name"`
	Classification   string          `json:"classification"`
	Items            []CandidateItem `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	SourceText       string          `json:"source_text"`
}

type CandidateItem struct {
	Name     string          `json:"name"`
	Qty      decimal.Decimal `json:"qty"`
	UnitRate decimal.Decimal `json:"unit_rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// Classification is the quality verdict on a candidate, from the remote
// service or the local rule fallback. Labels match models.QualityLabel.
type Classification struct {
	Label  string   `json:"label"`
	Issues []string `json:"issues"`
}
