package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/inkbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IngestInvoice turns an accepted candidate into a persisted InvoiceEvent and
// applies the derived-view updates.
//
// All writes happen in one DB transaction, but the engine's contract remains
// the documented multi-collection one: the event store is the source of truth
// and the views are eventually consistent, with RepairInventory as the
// convergence path for any drift (crash mid-sequence, out-of-band mutation).
// Sales admission is serialized on a MySQL advisory lock held across the
// guard and the event write, which closes the check-then-act window for
// well-behaved writers; drift introduced by anything else is repair's job.
func IngestInvoice(ctx context.Context, input *models.NewInvoiceEvent, fileKey string) (*models.InvoiceEvent, error) {
	if input == nil {
		return nil, errors.New("candidate invoice is nil")
	}
	if len(input.Items) == 0 && input.Classification == models.ClassificationSalesInvoice {
		return nil, errors.New("sales invoice has no line items")
	}

	classification, err := models.ParseInvoiceClassification(string(input.Classification))
	if err != nil {
		return nil, err
	}

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now().UTC()
	}
	qualityLabel := input.QualityLabel
	if qualityLabel == "" {
		qualityLabel = models.QualityNeedsReview
	}

	logger := config.GetLogger()
	db := config.GetDB()

	var event *models.InvoiceEvent
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if classification == models.ClassificationSalesInvoice {
			if err := acquireAdvisoryLock(tx, salesAdmissionLock, 30); err != nil {
				return err
			}
			defer releaseAdvisoryLock(tx, salesAdmissionLock)

			if err := CheckAvailability(tx, input.Items); err != nil {
				return err
			}
		}

		invoiceNumber, err := resolveInvoiceNumber(tx, input.InvoiceNumber)
		if err != nil {
			return err
		}

		items := make([]models.InvoiceItem, 0, len(input.Items))
		for _, item := range input.Items {
			amount := item.Amount
			if amount.IsZero() {
				amount = item.Qty.Mul(item.UnitRate)
			}
			items = append(items, models.InvoiceItem{
				Name:     item.Name,
				Qty:      item.Qty,
				UnitRate: item.UnitRate,
				Amount:   amount,
			})
		}

		event = &models.InvoiceEvent{
			InvoiceNumber:    invoiceNumber,
			InvoiceDate:      invoiceDate,
			CounterpartyName: input.CounterpartyName,
			Classification:   classification,
			InventoryPhase:   classification.InventoryPhase(),
			Items:            items,
			Subtotal:         input.Subtotal,
			TaxAmount:        input.TaxAmount,
			GrandTotal:       input.GrandTotal,
			SourceText:       input.SourceText,
			QualityLabel:     qualityLabel,
			QualityIssues:    models.StringList(input.QualityIssues),
			Embedding:        models.Vector(input.Embedding),
			FileKey:          fileKey,
		}
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		if err := models.ApplyCounterpartyDelta(tx, event.CounterpartyName, event.GrandTotal, 1); err != nil {
			return err
		}

		sign := decimal.NewFromInt(classification.Sign())
		for _, item := range event.Items {
			if err := models.ApplyInventoryDelta(tx, item.Name, item.Qty.Mul(sign), item.UnitRate); err != nil {
				return err
			}
		}

		return models.AppendLedgerEntry(tx, event)
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"event_id":       event.ID,
		"invoice_number": event.InvoiceNumber,
		"counterparty":   event.CounterpartyName,
		"classification": event.Classification,
		"grand_total":    event.GrandTotal.String(),
		"line_count":     len(event.Items),
	}
	if source, ok := utils.GetRequestSourceFromContext(ctx); ok {
		fields["request_source"] = source
	}
	logger.WithFields(fields).Info("ledger.ingest.accepted")

	dropViewCaches()
	notifyLedgerEvent(ctx, event, models.LedgerEventActionCreate)

	return event, nil
}

// notifyLedgerEvent publishes a post-commit notification. Best effort only:
// downstream consumers re-read the store, so a lost notification never affects
// ledger correctness.
func notifyLedgerEvent(ctx context.Context, event *models.InvoiceEvent, action models.LedgerEventAction) {
	logger := config.GetLogger()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	correlationId := ""
	if v, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		correlationId = v
	}
	if _, err := config.PublishLedgerEvent(pubCtx, config.LedgerEventMessage{
		EventId:          event.ID,
		InvoiceNumber:    event.InvoiceNumber,
		CounterpartyName: event.CounterpartyName,
		Classification:   string(event.Classification),
		Action:           string(action),
		GrandTotal:       event.GrandTotal.String(),
		OccurredAt:       time.Now().UTC(),
		CorrelationId:    correlationId,
	}); err != nil {
		logger.WithFields(logrus.Fields{
			"event_id": event.ID,
			"action":   action,
		}).Warn("ledger event publish failed (non-fatal): " + err.Error())
	}
}
