package ledger

import (
	"strings"
	"testing"

	"github.com/inkbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestCheckLines_ExactStockIsAdmitted(t *testing.T) {
	available := map[string]decimal.Decimal{"Widget": decimal.NewFromInt(70)}
	lines := []models.NewInvoiceItem{{Name: "Widget", Qty: decimal.NewFromInt(70)}}

	if rejection := CheckLinesAgainstAvailability(lines, available); rejection != nil {
		t.Fatalf("exact stock must pass, got %v", rejection)
	}
}

func TestCheckLines_StrictlyGreaterIsRejected(t *testing.T) {
	available := map[string]decimal.Decimal{"Widget": decimal.NewFromInt(70)}
	lines := []models.NewInvoiceItem{{Name: "Widget", Qty: decimal.NewFromInt(71)}}

	rejection := CheckLinesAgainstAvailability(lines, available)
	if rejection == nil {
		t.Fatal("expected rejection")
	}
	if len(rejection.Lines) != 1 {
		t.Fatalf("rejection lines = %d, want 1", len(rejection.Lines))
	}
	l := rejection.Lines[0]
	if l.Name != "Widget" || !l.Requested.Equal(decimal.NewFromInt(71)) || !l.Available.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected rejection line: %+v", l)
	}
}

func TestCheckLines_UnknownItemHasZeroAvailability(t *testing.T) {
	lines := []models.NewInvoiceItem{{Name: "Ghost", Qty: decimal.NewFromInt(1)}}

	rejection := CheckLinesAgainstAvailability(lines, map[string]decimal.Decimal{})
	if rejection == nil {
		t.Fatal("expected rejection for unknown item")
	}
	if !rejection.Lines[0].Available.Equal(decimal.Zero) {
		t.Fatalf("unknown item availability = %s, want 0", rejection.Lines[0].Available)
	}
}

func TestCheckLines_ReportsEveryFailingLine(t *testing.T) {
	available := map[string]decimal.Decimal{
		"Widget": decimal.NewFromInt(5),
		"Bolt":   decimal.NewFromInt(100),
	}
	lines := []models.NewInvoiceItem{
		{Name: "Widget", Qty: decimal.NewFromInt(6)},
		{Name: "Bolt", Qty: decimal.NewFromInt(10)},
		{Name: "Ghost", Qty: decimal.NewFromInt(1)},
	}

	rejection := CheckLinesAgainstAvailability(lines, available)
	if rejection == nil {
		t.Fatal("expected rejection")
	}
	if len(rejection.Lines) != 2 {
		t.Fatalf("rejection lines = %d, want 2 (Widget and Ghost, not Bolt)", len(rejection.Lines))
	}
	for _, l := range rejection.Lines {
		if l.Name == "Bolt" {
			t.Fatal("Bolt had sufficient stock and must not be reported")
		}
	}
}

func TestCheckLines_NegativeAvailabilityRejectsAnyRequest(t *testing.T) {
	available := map[string]decimal.Decimal{"Widget": decimal.NewFromInt(-30)}
	lines := []models.NewInvoiceItem{{Name: "Widget", Qty: decimal.NewFromInt(1)}}

	if rejection := CheckLinesAgainstAvailability(lines, available); rejection == nil {
		t.Fatal("expected rejection against negative availability")
	}
}

func TestStockRejection_ErrorMessage(t *testing.T) {
	rejection := &StockRejection{Lines: []UnderstockedLine{
		{Name: "Widget", Requested: decimal.NewFromInt(80), Available: decimal.NewFromInt(70)},
	}}

	msg := rejection.Error()
	if !strings.Contains(msg, "insufficient stock") || !strings.Contains(msg, "Widget") {
		t.Fatalf("unexpected error message: %q", msg)
	}
}

func TestCheckLines_FractionalQuantities(t *testing.T) {
	available := map[string]decimal.Decimal{"Cable": decimal.RequireFromString("2.5")}

	ok := []models.NewInvoiceItem{{Name: "Cable", Qty: decimal.RequireFromString("2.5")}}
	if rejection := CheckLinesAgainstAvailability(ok, available); rejection != nil {
		t.Fatalf("2.5 against 2.5 must pass, got %v", rejection)
	}
	over := []models.NewInvoiceItem{{Name: "Cable", Qty: decimal.RequireFromString("2.51")}}
	if rejection := CheckLinesAgainstAvailability(over, available); rejection == nil {
		t.Fatal("2.51 against 2.5 must fail")
	}
}
