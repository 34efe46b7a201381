package models

import (
	"context"
	"errors"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceEvent is one accepted trade document: the unit of the event log.
// Rows are immutable once written; the only mutations are the small correction
// fields updated through UpdateInvoiceEventCorrections, which deliberately do
// not touch the derived views.
type InvoiceEvent struct {
	ID               int                   `gorm:"primary_key" json:"id"`
	InvoiceNumber    string                `gorm:"size:255;uniqueIndex;not null" json:"invoice_number" binding:"required"`
	InvoiceDate      time.Time             `gorm:"not null" json:"invoice_date"`
	CounterpartyName string                `gorm:"size:255;index;not null" json:"counterparty_name" binding:"required"`
	Classification   InvoiceClassification `gorm:"type:enum('PurchaseOrder','PurchaseInvoice','SalesInvoice','Other');not null" json:"classification" binding:"required"`
	InventoryPhase   InventoryPhase        `gorm:"type:enum('Source','InTravel','Transit','Delivered','InGodown');not null" json:"inventory_phase"`
	Items            []InvoiceItem         `gorm:"foreignKey:InvoiceEventId" json:"items"`
	Subtotal         decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	TaxAmount        decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	GrandTotal       decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"grand_total"`
	SourceText       string                `gorm:"type:text" json:"source_text"`
	QualityLabel     QualityLabel          `gorm:"type:enum('Valid','NeedsReview','PotentialFraud');not null;default:'NeedsReview'" json:"quality_label"`
	QualityIssues    StringList            `json:"quality_issues"`
	Embedding        Vector                `json:"embedding"`
	FileKey          string                `gorm:"size:512" json:"file_key"`
	CreatedAt        time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	InvoiceEventId int             `gorm:"index;not null" json:"invoice_event_id"`
	Name           string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Qty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty" binding:"required"`
	UnitRate       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewInvoiceEvent is the candidate produced by the extraction layer (or posted
// directly by a caller) before the ingestion processor has accepted it.
type NewInvoiceEvent struct {
	InvoiceNumber    string                `json:"invoice_number" binding:"required"`
	InvoiceDate      time.Time             `json:"invoice_date"`
	CounterpartyName string                `json:"counterparty_name" binding:"required"`
	Classification   InvoiceClassification `json:"classification"`
	Items            []NewInvoiceItem      `json:"items"`
	Subtotal         decimal.Decimal       `json:"subtotal"`
	TaxAmount        decimal.Decimal       `json:"tax_amount"`
	GrandTotal       decimal.Decimal       `json:"grand_total"`
	SourceText       string                `json:"source_text"`
	QualityLabel     QualityLabel          `json:"quality_label"`
	QualityIssues    []string              `json:"quality_issues"`
	Embedding        []float64             `json:"embedding"`
}

type NewInvoiceItem struct {
	Name     string          `json:"name" binding:"required"`
	Qty      decimal.Decimal `json:"qty" binding:"required"`
	UnitRate decimal.Decimal `json:"unit_rate"`
	Amount   decimal.Decimal `json:"amount"`
}

func GetInvoiceEvent(ctx context.Context, id int) (*InvoiceEvent, error) {
	db := config.GetDB()
	var event InvoiceEvent
	if err := db.WithContext(ctx).Preload("Items").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &event, nil
}

func GetInvoiceEvents(ctx context.Context, limit int, offset int) ([]*InvoiceEvent, error) {
	db := config.GetDB()
	var events []*InvoiceEvent
	dbCtx := db.WithContext(ctx).Preload("Items").Order("id")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit).Offset(offset)
	}
	if err := dbCtx.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// InvoiceNumberExists reports whether any event already carries the number.
// Runs on the caller's transaction so the ingestion collision loop sees its
// own uncommitted rows.
func InvoiceNumberExists(tx *gorm.DB, invoiceNumber string) (bool, error) {
	var count int64
	if err := tx.Model(&InvoiceEvent{}).Where("invoice_number = ?", invoiceNumber).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// LoadAllInvoiceEvents reads the full event store with line items, ordered by
// insertion. Both the availability guard and the repair job replay from this.
func LoadAllInvoiceEvents(tx *gorm.DB) ([]*InvoiceEvent, error) {
	var events []*InvoiceEvent
	if err := tx.Preload("Items").Order("id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateInvoiceEventCorrections is the explicit correction path: it may amend
// quality fields and the stored embedding but never quantities or totals, so
// the inventory view is untouched by design.
func UpdateInvoiceEventCorrections(ctx context.Context, id int, label QualityLabel, issues []string, embedding []float64) (*InvoiceEvent, error) {
	db := config.GetDB()
	event, err := GetInvoiceEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"quality_label":  label,
		"quality_issues": StringList(issues),
	}
	if embedding != nil {
		updates["embedding"] = Vector(embedding)
	}
	if err := db.WithContext(ctx).Model(&InvoiceEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}
	return GetInvoiceEvent(ctx, event.ID)
}
