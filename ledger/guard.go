package ledger

import (
	"fmt"
	"strings"

	"github.com/inkbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnderstockedLine is one failing line of a rejected sales ingestion.
type UnderstockedLine struct {
	Name      string          `json:"name"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}

// StockRejection is returned when a sales event requests more of any item
// than the replayed history supports. It carries every failing line so the
// caller sees the whole problem at once.
type StockRejection struct {
	Lines []UnderstockedLine `json:"lines"`
}

func (r *StockRejection) Error() string {
	parts := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		parts = append(parts, fmt.Sprintf("%s: requested %s, available %s", l.Name, l.Requested.String(), l.Available.String()))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// CheckLinesAgainstAvailability evaluates requested lines against a computed
// availability snapshot. A line fails when requested strictly exceeds
// availability; unknown items have availability zero.
func CheckLinesAgainstAvailability(items []models.NewInvoiceItem, available map[string]decimal.Decimal) *StockRejection {
	var failed []UnderstockedLine
	for _, item := range items {
		onHand, ok := available[item.Name]
		if !ok {
			onHand = decimal.Zero
		}
		if item.Qty.GreaterThan(onHand) {
			failed = append(failed, UnderstockedLine{
				Name:      item.Name,
				Requested: item.Qty,
				Available: onHand,
			})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &StockRejection{Lines: failed}
}

// CheckAvailability replays the full event store on the caller's transaction
// and admits or rejects the requested lines. It deliberately ignores the
// materialized inventory view: reading the view would compound any existing
// drift into the accept/reject decision.
func CheckAvailability(tx *gorm.DB, items []models.NewInvoiceItem) error {
	events, err := models.LoadAllInvoiceEvents(tx)
	if err != nil {
		return err
	}
	if rejection := CheckLinesAgainstAvailability(items, AvailabilityFromEvents(events)); rejection != nil {
		return rejection
	}
	return nil
}
