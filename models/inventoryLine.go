package models

import (
	"context"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryLine is the materialized on-hand view, one row per distinct item
// name. Quantity may legitimately go negative after out-of-band mutations;
// only the repair job restores the signed-sum invariant.
type InventoryLine struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitRate  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func FirstOrCreateInventoryLine(tx *gorm.DB, name string) (*InventoryLine, error) {
	line := InventoryLine{
		Name: name,
	}
	// FirstOrCreate will try to find a record matching the conditions, and if
	// it doesn't find one, it will create a new record
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		FirstOrCreate(&line)
	if result.Error != nil {
		return nil, result.Error
	}
	return &line, nil
}

// ApplyInventoryDelta adjusts one item line by signedQty using the store's
// atomic increment, creating the row lazily. A positive-direction delta that
// carries a positive unit rate overwrites the remembered purchase price
// (most-recent-purchase-price, last write wins).
func ApplyInventoryDelta(tx *gorm.DB, name string, signedQty decimal.Decimal, unitRate decimal.Decimal) error {
	line, err := FirstOrCreateInventoryLine(tx, name)
	if err != nil {
		return err
	}

	if err := tx.Exec("UPDATE inventory_lines SET qty = qty + ?, updated_at = ? WHERE id = ?",
		signedQty, time.Now().UTC(), line.ID).Error; err != nil {
		return err
	}

	if signedQty.IsPositive() && unitRate.IsPositive() {
		if err := tx.Exec("UPDATE inventory_lines SET unit_rate = ? WHERE id = ?", unitRate, line.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

func GetInventoryLines(ctx context.Context) ([]*InventoryLine, error) {
	db := config.GetDB()
	var lines []*InventoryLine
	if err := db.WithContext(ctx).Order("name").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func GetInventoryLineByName(ctx context.Context, name string) (*InventoryLine, error) {
	db := config.GetDB()
	var line InventoryLine
	if err := db.WithContext(ctx).Where("name = ?", name).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}
