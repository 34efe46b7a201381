package extract

import (
	"context"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// totalsTolerance is how far the declared grand total may sit from
// subtotal+tax (as a fraction of the grand total) before the local rules
// flag a mismatch. Scanned documents routinely carry rounding noise.
var totalsTolerance = decimal.NewFromFloat(0.01)

// ClassifyCandidate asks the classification service for a quality verdict and
// falls back to ClassifyLocally when the service is unavailable. The ledger
// does not care which path produced the label.
func (c *Client) ClassifyCandidate(ctx context.Context, candidate *CandidateInvoice) Classification {
	var verdict Classification
	if err := c.postJSON(ctx, "/v1/classify", candidate, &verdict); err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"invoice_number": candidate.InvoiceNumber,
		}).Warn("classification service failed; using local rules: " + err.Error())
		return ClassifyLocally(candidate)
	}
	if verdict.Label == "" {
		return ClassifyLocally(candidate)
	}
	return verdict
}

// ClassifyLocally is the rule-based fallback check: required fields present,
// line items present, and totals that add up within tolerance.
func ClassifyLocally(candidate *CandidateInvoice) Classification {
	var issues []string

	if candidate.InvoiceNumber == "" {
		issues = append(issues, "missing invoice number")
	}
	if candidate.CounterpartyName == "" {
		issues = append(issues, "missing counterparty name")
	}
	if candidate.InvoiceDate.IsZero() {
		issues = append(issues, "missing document date")
	}
	if len(candidate.Items) == 0 {
		issues = append(issues, "no line items")
	}

	if candidate.GrandTotal.IsPositive() {
		expected := candidate.Subtotal.Add(candidate.TaxAmount)
		diff := candidate.GrandTotal.Sub(expected).Abs()
		if diff.GreaterThan(candidate.GrandTotal.Mul(totalsTolerance)) {
			issues = append(issues, "grand total does not match subtotal plus tax")
		}
	}

	label := "Valid"
	if len(issues) > 0 {
		label = "NeedsReview"
	}
	return Classification{Label: label, Issues: issues}
}
