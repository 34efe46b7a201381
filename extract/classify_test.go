package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func completeCandidate() *CandidateInvoice {
	return &CandidateInvoice{
		InvoiceNumber:    "INV-100",
		InvoiceDate:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		CounterpartyName: "Acme Supplies",
		Classification:   "PurchaseInvoice",
		Items: []CandidateItem{
			{Name: "Widget", Qty: decimal.NewFromInt(10), UnitRate: decimal.NewFromInt(12), Amount: decimal.NewFromInt(120)},
		},
		Subtotal:   decimal.NewFromInt(120),
		TaxAmount:  decimal.NewFromInt(12),
		GrandTotal: decimal.NewFromInt(132),
	}
}

func TestClassifyLocally_CompleteCandidateIsValid(t *testing.T) {
	verdict := ClassifyLocally(completeCandidate())
	if verdict.Label != "Valid" {
		t.Fatalf("label = %q, issues = %v", verdict.Label, verdict.Issues)
	}
	if len(verdict.Issues) != 0 {
		t.Fatalf("unexpected issues: %v", verdict.Issues)
	}
}

func TestClassifyLocally_MissingFields(t *testing.T) {
	candidate := completeCandidate()
	candidate.InvoiceNumber = ""
	candidate.CounterpartyName = ""
	candidate.InvoiceDate = time.Time{}
	candidate.Items = nil

	verdict := ClassifyLocally(candidate)
	if verdict.Label != "NeedsReview" {
		t.Fatalf("label = %q, want NeedsReview", verdict.Label)
	}
	if len(verdict.Issues) != 4 {
		t.Fatalf("issues = %v, want 4 entries", verdict.Issues)
	}
}

func TestClassifyLocally_TotalsMismatchBeyondTolerance(t *testing.T) {
	candidate := completeCandidate()
	candidate.GrandTotal = decimal.NewFromInt(200)

	verdict := ClassifyLocally(candidate)
	if verdict.Label != "NeedsReview" {
		t.Fatalf("label = %q, want NeedsReview", verdict.Label)
	}
}

func TestClassifyLocally_RoundingNoiseWithinToleranceIsValid(t *testing.T) {
	candidate := completeCandidate()
	// 132 declared vs 131.00 computed is under the 1% tolerance (1.32).
	candidate.Subtotal = decimal.RequireFromString("119.00")

	verdict := ClassifyLocally(candidate)
	if verdict.Label != "Valid" {
		t.Fatalf("label = %q, issues = %v", verdict.Label, verdict.Issues)
	}
}

func TestClassifyLocally_ZeroGrandTotalSkipsTotalsRule(t *testing.T) {
	candidate := completeCandidate()
	candidate.GrandTotal = decimal.Zero
	candidate.Subtotal = decimal.NewFromInt(999)

	verdict := ClassifyLocally(candidate)
	for _, issue := range verdict.Issues {
		if issue == "grand total does not match subtotal plus tax" {
			t.Fatal("totals rule must not fire without a positive grand total")
		}
	}
}
