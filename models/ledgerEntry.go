package models

import (
	"context"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry mirrors the monetary facts of one accepted event for downstream
// retrieval (search, QA). The reconciliation logic never reads it back.
type LedgerEntry struct {
	ID               int             `gorm:"primary_key" json:"id"`
	InvoiceEventId   int             `gorm:"index;not null" json:"invoice_event_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CounterpartyName string          `gorm:"size:255" json:"counterparty_name"`
	InvoiceNumber    string          `gorm:"size:255" json:"invoice_number"`
	Embedding        Vector          `json:"embedding"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func AppendLedgerEntry(tx *gorm.DB, event *InvoiceEvent) error {
	entry := LedgerEntry{
		InvoiceEventId:   event.ID,
		Amount:           event.GrandTotal,
		CounterpartyName: event.CounterpartyName,
		InvoiceNumber:    event.InvoiceNumber,
		Embedding:        event.Embedding,
	}
	return tx.Create(&entry).Error
}

func GetLedgerEntries(ctx context.Context, limit int, offset int) ([]*LedgerEntry, error) {
	db := config.GetDB()
	var entries []*LedgerEntry
	dbCtx := db.WithContext(ctx).Order("id")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit).Offset(offset)
	}
	if err := dbCtx.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
