// Package ledger implements the invoice event ledger: ingestion of accepted
// trade documents, the stock availability guard that gates sales, the
// incremental materialized-view updates, and the full-replay repair jobs that
// restore the views after drift.
package ledger

import (
	"sort"
	"time"

	"github.com/inkbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

// ItemAccumulator is the replay state for one item name: the signed quantity
// sum, the most recent purchase-side unit rate seen, and the timestamps of
// the first and last events that touched the item.
type ItemAccumulator struct {
	Qty          decimal.Decimal
	UnitRate     decimal.Decimal
	FirstTouched time.Time
	LastTouched  time.Time
}

// AccumulateInventory replays events in store order into a per-item
// accumulator map. This is the single source of replay semantics: the
// availability guard and the repair job both run on its output, so the
// accept/reject decision and the repaired view can never use different rules.
func AccumulateInventory(events []*models.InvoiceEvent) map[string]*ItemAccumulator {
	acc := make(map[string]*ItemAccumulator)
	for _, event := range events {
		sign := decimal.NewFromInt(event.Classification.Sign())
		for _, item := range event.Items {
			entry := acc[item.Name]
			if entry == nil {
				entry = &ItemAccumulator{Qty: decimal.Zero}
				acc[item.Name] = entry
			}
			entry.Qty = entry.Qty.Add(item.Qty.Mul(sign))
			if event.Classification.Sign() > 0 && item.UnitRate.IsPositive() {
				entry.UnitRate = item.UnitRate
			}
			if entry.FirstTouched.IsZero() || event.CreatedAt.Before(entry.FirstTouched) {
				entry.FirstTouched = event.CreatedAt
			}
			if event.CreatedAt.After(entry.LastTouched) {
				entry.LastTouched = event.CreatedAt
			}
		}
	}
	return acc
}

// InventoryRowsFromReplay turns an accumulator into the rows the repair job
// writes, in deterministic name order. The row timestamps come from the
// replay, not the repair run's clock: CreatedAt is the first event touching
// the item, UpdatedAt the last. Repeated runs over an unchanged store
// therefore produce identical rows.
func InventoryRowsFromReplay(acc map[string]*ItemAccumulator) []*models.InventoryLine {
	names := make([]string, 0, len(acc))
	for name := range acc {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]*models.InventoryLine, 0, len(acc))
	for _, name := range names {
		entry := acc[name]
		lines = append(lines, &models.InventoryLine{
			Name:      name,
			Qty:       entry.Qty,
			UnitRate:  entry.UnitRate,
			CreatedAt: entry.FirstTouched,
			UpdatedAt: entry.LastTouched,
		})
	}
	return lines
}

// AvailabilityFromEvents reduces a replay to just the signed quantity per item
// name. Items with no history are simply absent (availability zero).
func AvailabilityFromEvents(events []*models.InvoiceEvent) map[string]decimal.Decimal {
	acc := AccumulateInventory(events)
	available := make(map[string]decimal.Decimal, len(acc))
	for name, entry := range acc {
		available[name] = entry.Qty
	}
	return available
}

// AccumulateCounterparties replays events into per-counterparty spend/count
// totals, the aggregate-side mirror of AccumulateInventory.
func AccumulateCounterparties(events []*models.InvoiceEvent) map[string]*CounterpartyAccumulator {
	acc := make(map[string]*CounterpartyAccumulator)
	for _, event := range events {
		entry := acc[event.CounterpartyName]
		if entry == nil {
			entry = &CounterpartyAccumulator{TotalSpend: decimal.Zero}
			acc[event.CounterpartyName] = entry
		}
		entry.TotalSpend = entry.TotalSpend.Add(event.GrandTotal)
		entry.EventCount++
		if entry.FirstTouched.IsZero() || event.CreatedAt.Before(entry.FirstTouched) {
			entry.FirstTouched = event.CreatedAt
		}
		if event.CreatedAt.After(entry.LastTouched) {
			entry.LastTouched = event.CreatedAt
		}
	}
	return acc
}

type CounterpartyAccumulator struct {
	TotalSpend   decimal.Decimal
	EventCount   int
	FirstTouched time.Time
	LastTouched  time.Time
}
