package models

import (
	"errors"
)

type InvoiceClassification string

const (
	ClassificationPurchaseOrder   InvoiceClassification = "PurchaseOrder"
	ClassificationPurchaseInvoice InvoiceClassification = "PurchaseInvoice"
	ClassificationSalesInvoice    InvoiceClassification = "SalesInvoice"
	ClassificationOther           InvoiceClassification = "Other"
)

func ParseInvoiceClassification(s string) (InvoiceClassification, error) {
	switch s {
	case "PurchaseOrder":
		return ClassificationPurchaseOrder, nil
	case "PurchaseInvoice":
		return ClassificationPurchaseInvoice, nil
	case "SalesInvoice":
		return ClassificationSalesInvoice, nil
	case "Other", "":
		return ClassificationOther, nil
	default:
		return "", errors.New("invalid invoice classification")
	}
}

// Sign is the direction a classification moves inventory: sales consume stock,
// everything else supplies it. The incremental updater, the availability guard,
// the repair replay and (inverted) the deletion path all share this one
// function so the views cannot disagree about direction.
func (c InvoiceClassification) Sign() int64 {
	if c == ClassificationSalesInvoice {
		return -1
	}
	return 1
}

func (c InvoiceClassification) IsPurchaseLike() bool {
	return c == ClassificationPurchaseOrder || c == ClassificationPurchaseInvoice
}

type InventoryPhase string

const (
	PhaseSource    InventoryPhase = "Source"
	PhaseInTravel  InventoryPhase = "InTravel"
	PhaseTransit   InventoryPhase = "Transit"
	PhaseDelivered InventoryPhase = "Delivered"
	PhaseInGodown  InventoryPhase = "InGodown"
)

// InventoryPhase maps a classification to the phase stamped on the event.
// Static dispatch table; there is deliberately no per-document-type subtyping.
func (c InvoiceClassification) InventoryPhase() InventoryPhase {
	switch c {
	case ClassificationPurchaseInvoice:
		return PhaseInGodown
	case ClassificationPurchaseOrder:
		return PhaseSource
	case ClassificationSalesInvoice:
		return PhaseDelivered
	default:
		return PhaseInTravel
	}
}

type QualityLabel string

const (
	QualityValid          QualityLabel = "Valid"
	QualityNeedsReview    QualityLabel = "NeedsReview"
	QualityPotentialFraud QualityLabel = "PotentialFraud"
)

type LedgerEventAction string

const (
	LedgerEventActionCreate LedgerEventAction = "Create"
	LedgerEventActionDelete LedgerEventAction = "Delete"
)
