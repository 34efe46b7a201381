package models

import (
	"log"

	"github.com/inkbooks/ledger_backend/config"
)

// MigrateTable runs AutoMigrate for every collection the engine owns.
// Call from main() after the DB connection is ready, or from a separate job
// when SKIP_MIGRATIONS=true is set on the service.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&InvoiceEvent{},
		&InvoiceItem{},
		&InventoryLine{},
		&CounterpartyAggregate{},
		&LedgerEntry{},
	)
	if err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}
}
