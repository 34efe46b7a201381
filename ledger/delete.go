package ledger

import (
	"context"
	"errors"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/inkbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeleteInvoiceEvent removes an event and reverses its effects on both views.
//
// The reversal is classification-aware: the same sign the event carried at
// creation time, inverted. A deleted sales line gives stock back, a deleted
// purchase line takes it away. (An unconditional decrement would silently
// corrupt the view for deleted sales events.)
//
// A failure partway leaves the system in a state only RepairInventory can
// fully correct; that is the engine's documented partial-failure contract.
func DeleteInvoiceEvent(ctx context.Context, id int) error {
	logger := config.GetLogger()
	db := config.GetDB()

	var event *models.InvoiceEvent
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event = &models.InvoiceEvent{}
		if err := tx.Preload("Items").First(event, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := models.ApplyCounterpartyDelta(tx, event.CounterpartyName, event.GrandTotal.Neg(), -1); err != nil {
			return err
		}

		inverse := decimal.NewFromInt(event.Classification.Sign()).Neg()
		for _, item := range event.Items {
			// Unit rate zero: a deletion never refreshes the remembered price.
			if err := models.ApplyInventoryDelta(tx, item.Name, item.Qty.Mul(inverse), decimal.Zero); err != nil {
				return err
			}
		}

		if err := tx.Where("invoice_event_id = ?", event.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_event_id = ?", event.ID).Delete(&models.LedgerEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.InvoiceEvent{}, event.ID).Error
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"event_id":       event.ID,
		"invoice_number": event.InvoiceNumber,
		"counterparty":   event.CounterpartyName,
		"classification": event.Classification,
	}).Info("ledger.delete.compensated")

	dropViewCaches()
	notifyLedgerEvent(ctx, event, models.LedgerEventActionDelete)

	return nil
}
