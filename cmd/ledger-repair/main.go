// ledger-repair rebuilds the materialized views from the invoice event store.
// The inventory view and the counterparty view are each rewritten wholesale
// from a full replay, so the tool converges the views after any drift.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/ledger-repair
//
// Flags:
//   --views=inventory,counterparties  which views to rebuild (default both)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/ledger"
)

func main() {
	views := flag.String("views", "inventory,counterparties", "Comma-separated views to rebuild: inventory, counterparties")
	flag.Parse()

	wantInventory := false
	wantCounterparties := false
	for _, v := range strings.Split(*views, ",") {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
		case "inventory":
			wantInventory = true
		case "counterparties":
			wantCounterparties = true
		default:
			fmt.Fprintf(os.Stderr, "unknown view %q (want inventory or counterparties)\n", v)
			os.Exit(1)
		}
	}
	if !wantInventory && !wantCounterparties {
		fmt.Fprintln(os.Stderr, "--views selected nothing to rebuild")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	// Redis is optional for repair; the advisory MySQL lock is what
	// guarantees exclusivity. Connect if configured so the redislock
	// fast path works in shared environments.
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
	}

	ctx := context.Background()

	if wantInventory {
		result, err := ledger.RepairInventory(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inventory repair failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("inventory: replayed %d events, rewrote %d lines\n", result.EventsReplayed, result.ItemsRewritten)
	}
	if wantCounterparties {
		result, err := ledger.RepairCounterparties(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "counterparty repair failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("counterparties: replayed %d events, rewrote %d aggregates\n", result.EventsReplayed, result.ItemsRewritten)
	}
}
