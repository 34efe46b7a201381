package models

import "testing"

func TestParseInvoiceClassification(t *testing.T) {
	cases := []struct {
		in   string
		want InvoiceClassification
	}{
		{"PurchaseOrder", ClassificationPurchaseOrder},
		{"PurchaseInvoice", ClassificationPurchaseInvoice},
		{"SalesInvoice", ClassificationSalesInvoice},
		{"Other", ClassificationOther},
	}
	for _, c := range cases {
		got, err := ParseInvoiceClassification(c.in)
		if err != nil {
			t.Errorf("ParseInvoiceClassification(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseInvoiceClassification(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := ParseInvoiceClassification("CreditNote"); err == nil {
		t.Error("expected error for unknown classification")
	}
}

func TestClassificationSign(t *testing.T) {
	if got := ClassificationSalesInvoice.Sign(); got != -1 {
		t.Errorf("SalesInvoice sign = %d, want -1", got)
	}
	for _, c := range []InvoiceClassification{ClassificationPurchaseOrder, ClassificationPurchaseInvoice, ClassificationOther} {
		if got := c.Sign(); got != 1 {
			t.Errorf("%s sign = %d, want 1", c, got)
		}
	}
}

func TestClassificationInventoryPhase(t *testing.T) {
	cases := []struct {
		in   InvoiceClassification
		want InventoryPhase
	}{
		{ClassificationPurchaseInvoice, PhaseInGodown},
		{ClassificationPurchaseOrder, PhaseSource},
		{ClassificationSalesInvoice, PhaseDelivered},
		{ClassificationOther, PhaseInTravel},
	}
	for _, c := range cases {
		if got := c.in.InventoryPhase(); got != c.want {
			t.Errorf("%s phase = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestIsPurchaseLike(t *testing.T) {
	if !ClassificationPurchaseOrder.IsPurchaseLike() || !ClassificationPurchaseInvoice.IsPurchaseLike() {
		t.Error("purchase classifications must be purchase-like")
	}
	if ClassificationSalesInvoice.IsPurchaseLike() || ClassificationOther.IsPurchaseLike() {
		t.Error("sales and other must not be purchase-like")
	}
}
