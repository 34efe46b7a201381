// seed-dev loads a small set of invoice events into an empty development
// database through the normal ingestion path, so the materialized views and
// the availability guard behave exactly as they do in production.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
//
// Flags:
//   --counterparty  vendor/customer name prefix (default "Acme Supplies")
//   --items         number of distinct item names (default 3)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/ledger"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

func main() {
	counterparty := flag.String("counterparty", "Acme Supplies", "Counterparty name for seeded purchases")
	itemCount := flag.Int("items", 3, "Number of distinct item names to seed")
	flag.Parse()

	if *itemCount <= 0 {
		fmt.Fprintln(os.Stderr, "--items must be positive")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
	}

	ctx := context.Background()
	now := time.Now().UTC()

	// One purchase invoice stocks every item, then a small sales invoice
	// consumes part of the first item so the signed view is visible.
	purchaseItems := make([]models.NewInvoiceItem, 0, *itemCount)
	subtotal := decimal.Zero
	for i := 0; i < *itemCount; i++ {
		qty := decimal.NewFromInt(int64(50 + 10*i))
		rate := decimal.NewFromInt(int64(12 + i))
		purchaseItems = append(purchaseItems, models.NewInvoiceItem{
			Name:     fmt.Sprintf("Widget %c", 'A'+i),
			Qty:      qty,
			UnitRate: rate,
			Amount:   qty.Mul(rate),
		})
		subtotal = subtotal.Add(qty.Mul(rate))
	}

	purchase := &models.NewInvoiceEvent{
		InvoiceNumber:    "SEED-PI-001",
		InvoiceDate:      now.AddDate(0, 0, -7),
		CounterpartyName: *counterparty,
		Classification:   models.ClassificationPurchaseInvoice,
		Items:            purchaseItems,
		Subtotal:         subtotal,
		GrandTotal:       subtotal,
		QualityLabel:     models.QualityValid,
	}
	event, err := ledger.IngestInvoice(ctx, purchase, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed purchase failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded purchase %s (event %d, %d items)\n", event.InvoiceNumber, event.ID, len(event.Items))

	saleQty := decimal.NewFromInt(10)
	saleRate := decimal.NewFromInt(20)
	sale := &models.NewInvoiceEvent{
		InvoiceNumber:    "SEED-SI-001",
		InvoiceDate:      now.AddDate(0, 0, -1),
		CounterpartyName: *counterparty + " Retail",
		Classification:   models.ClassificationSalesInvoice,
		Items: []models.NewInvoiceItem{{
			Name:     "Widget A",
			Qty:      saleQty,
			UnitRate: saleRate,
			Amount:   saleQty.Mul(saleRate),
		}},
		Subtotal:     saleQty.Mul(saleRate),
		GrandTotal:   saleQty.Mul(saleRate),
		QualityLabel: models.QualityValid,
	}
	event, err = ledger.IngestInvoice(ctx, sale, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed sale failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded sale %s (event %d)\n", event.InvoiceNumber, event.ID)
}
