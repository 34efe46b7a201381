package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RepairResult reports what a replay rewrote.
type RepairResult struct {
	EventsReplayed int `json:"events_replayed"`
	ItemsRewritten int `json:"items_rewritten"`
}

// RepairInventory rebuilds the whole inventory view from the event store:
// replay every event into an accumulator, then replace the view with
// delete-all + insert-all inside one transaction. Idempotent, and safe to run
// while ingestion continues (it only reads the event store; concurrent events
// missed by this replay are picked up by the next run).
//
// This is the sole drift-correction mechanism for the non-transactional write
// sequence, partial deletions, and any out-of-band mutation.
func RepairInventory(ctx context.Context) (RepairResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	// Redis lock is a best-effort optimization to avoid two replays racing on
	// the bulk replace; correctness comes from the MySQL advisory lock below.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, inventoryRepairLock, 60*time.Second, nil)
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		} else if err != redislock.ErrNotObtained {
			logger.Warn("repair: error obtaining redis lock; proceeding: " + err.Error())
		}
	}

	var result RepairResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := acquireAdvisoryLock(tx, inventoryRepairLock, 60); err != nil {
			return err
		}
		defer releaseAdvisoryLock(tx, inventoryRepairLock)

		events, err := models.LoadAllInvoiceEvents(tx)
		if err != nil {
			return err
		}
		lines := InventoryRowsFromReplay(AccumulateInventory(events))

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.InventoryLine{}).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}

		result = RepairResult{
			EventsReplayed: len(events),
			ItemsRewritten: len(lines),
		}
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}

	dropViewCaches()
	logger.WithFields(logrus.Fields{
		"events_replayed": result.EventsReplayed,
		"items_rewritten": result.ItemsRewritten,
	}).Info("ledger.repair.inventory.done")

	return result, nil
}

// RepairCounterparties is the aggregate-side twin of RepairInventory. The
// aggregates drift under the same partial-failure conditions as inventory, so
// they get the same replay-and-replace treatment.
func RepairCounterparties(ctx context.Context) (RepairResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var result RepairResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := models.LoadAllInvoiceEvents(tx)
		if err != nil {
			return err
		}
		acc := AccumulateCounterparties(events)

		names := make([]string, 0, len(acc))
		for name := range acc {
			names = append(names, name)
		}
		sort.Strings(names)

		aggs := make([]*models.CounterpartyAggregate, 0, len(acc))
		for _, name := range names {
			entry := acc[name]
			aggs = append(aggs, &models.CounterpartyAggregate{
				Name:       name,
				TotalSpend: entry.TotalSpend,
				EventCount: entry.EventCount,
				// Replay timestamps, not the repair run's clock, so repeated
				// runs over an unchanged store write identical rows.
				CreatedAt: entry.FirstTouched,
				UpdatedAt: entry.LastTouched,
			})
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CounterpartyAggregate{}).Error; err != nil {
			return err
		}
		if len(aggs) > 0 {
			if err := tx.Create(&aggs).Error; err != nil {
				return err
			}
		}

		result = RepairResult{
			EventsReplayed: len(events),
			ItemsRewritten: len(aggs),
		}
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}

	dropViewCaches()
	logger.WithFields(logrus.Fields{
		"events_replayed":      result.EventsReplayed,
		"aggregates_rewritten": result.ItemsRewritten,
	}).Info("ledger.repair.counterparties.done")

	return result, nil
}
