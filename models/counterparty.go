package models

import (
	"context"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterpartyAggregate is the running spend/order view per trading partner.
// Same create-lazily, increment/decrement, never-delete pattern as
// InventoryLine.
type CounterpartyAggregate struct {
	ID         int             `gorm:"primary_key" json:"id"`
	Name       string          `gorm:"size:255;uniqueIndex;not null" json:"name"`
	TotalSpend decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spend"`
	EventCount int             `gorm:"default:0" json:"event_count"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func firstOrCreateCounterpartyAggregate(tx *gorm.DB, name string) (*CounterpartyAggregate, error) {
	agg := CounterpartyAggregate{
		Name: name,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		FirstOrCreate(&agg)
	if result.Error != nil {
		return nil, result.Error
	}
	return &agg, nil
}

// ApplyCounterpartyDelta moves the aggregate by one event's grand total.
// countDelta is +1 on ingestion and -1 on deletion.
func ApplyCounterpartyDelta(tx *gorm.DB, name string, spendDelta decimal.Decimal, countDelta int) error {
	agg, err := firstOrCreateCounterpartyAggregate(tx, name)
	if err != nil {
		return err
	}
	return tx.Exec("UPDATE counterparty_aggregates SET total_spend = total_spend + ?, event_count = event_count + ?, updated_at = ? WHERE id = ?",
		spendDelta, countDelta, time.Now().UTC(), agg.ID).Error
}

func GetCounterpartyAggregates(ctx context.Context) ([]*CounterpartyAggregate, error) {
	db := config.GetDB()
	var aggs []*CounterpartyAggregate
	if err := db.WithContext(ctx).Order("name").Find(&aggs).Error; err != nil {
		return nil, err
	}
	return aggs, nil
}

func GetCounterpartyAggregateByName(ctx context.Context, name string) (*CounterpartyAggregate, error) {
	db := config.GetDB()
	var agg CounterpartyAggregate
	if err := db.WithContext(ctx).Where("name = ?", name).First(&agg).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}
