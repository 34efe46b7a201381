package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/inkbooks/ledger_backend/ledger"
	"github.com/inkbooks/ledger_backend/models"
	"github.com/shopspring/decimal"
)

// Regression: the full ingest -> view -> guard -> delete -> repair cycle on a
// real MySQL. Covers the drift scenario where deleting a purchase leaves the
// incremental view ahead of the replayed truth until repair converges it.
func TestLedgerRoundtrip_IngestGuardDeleteRepair(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "inkledger_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	now := time.Now().UTC()

	// Purchase 100 Widgets at 12.
	_, err := ledger.IngestInvoice(ctx, &models.NewInvoiceEvent{
		InvoiceNumber:    "INV-001",
		InvoiceDate:      now,
		CounterpartyName: "Acme Supplies",
		Classification:   models.ClassificationPurchaseInvoice,
		Items: []models.NewInvoiceItem{
			{Name: "Widget", Qty: decimal.NewFromInt(100), UnitRate: decimal.NewFromInt(12)},
		},
		GrandTotal:   decimal.NewFromInt(1200),
		QualityLabel: models.QualityValid,
	}, "")
	if err != nil {
		t.Fatalf("ingest purchase: %v", err)
	}

	line, err := models.GetInventoryLineByName(ctx, "Widget")
	if err != nil {
		t.Fatalf("inventory line: %v", err)
	}
	if !line.Qty.Equal(decimal.NewFromInt(100)) || !line.UnitRate.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("after purchase: qty=%s rate=%s, want 100/12", line.Qty, line.UnitRate)
	}

	// Sell 30; the view drops to 70 and the sales rate must not touch UnitRate.
	sale, err := ledger.IngestInvoice(ctx, &models.NewInvoiceEvent{
		InvoiceNumber:    "INV-002",
		InvoiceDate:      now,
		CounterpartyName: "Retail Co",
		Classification:   models.ClassificationSalesInvoice,
		Items: []models.NewInvoiceItem{
			{Name: "Widget", Qty: decimal.NewFromInt(30), UnitRate: decimal.NewFromInt(20)},
		},
		GrandTotal:   decimal.NewFromInt(600),
		QualityLabel: models.QualityValid,
	}, "")
	if err != nil {
		t.Fatalf("ingest sale: %v", err)
	}

	line, err = models.GetInventoryLineByName(ctx, "Widget")
	if err != nil {
		t.Fatalf("inventory line: %v", err)
	}
	if !line.Qty.Equal(decimal.NewFromInt(70)) || !line.UnitRate.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("after sale: qty=%s rate=%s, want 70/12", line.Qty, line.UnitRate)
	}

	// Overselling 80 against 70 on hand must be rejected with the failing line.
	_, err = ledger.IngestInvoice(ctx, &models.NewInvoiceEvent{
		InvoiceNumber:    "INV-003",
		InvoiceDate:      now,
		CounterpartyName: "Retail Co",
		Classification:   models.ClassificationSalesInvoice,
		Items: []models.NewInvoiceItem{
			{Name: "Widget", Qty: decimal.NewFromInt(80), UnitRate: decimal.NewFromInt(20)},
		},
		GrandTotal:   decimal.NewFromInt(1600),
		QualityLabel: models.QualityValid,
	}, "")
	var rejection *ledger.StockRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("oversell: err = %v, want StockRejection", err)
	}
	if len(rejection.Lines) != 1 || !rejection.Lines[0].Available.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("oversell rejection = %+v", rejection.Lines)
	}

	// Reusing an existing invoice number resolves to the deterministic successor.
	dup, err := ledger.IngestInvoice(ctx, &models.NewInvoiceEvent{
		InvoiceNumber:    "INV-002",
		InvoiceDate:      now,
		CounterpartyName: "Acme Supplies",
		Classification:   models.ClassificationPurchaseOrder,
		Items: []models.NewInvoiceItem{
			{Name: "Bolt", Qty: decimal.NewFromInt(40), UnitRate: decimal.NewFromInt(3)},
		},
		GrandTotal:   decimal.NewFromInt(120),
		QualityLabel: models.QualityValid,
	}, "")
	if err != nil {
		t.Fatalf("ingest duplicate number: %v", err)
	}
	if dup.InvoiceNumber != "INV-003" {
		t.Fatalf("duplicate resolved to %q, want INV-003", dup.InvoiceNumber)
	}

	// Counterparty aggregates: Acme has the purchase and the renumbered order.
	acme, err := models.GetCounterpartyAggregateByName(ctx, "Acme Supplies")
	if err != nil {
		t.Fatalf("counterparty: %v", err)
	}
	if !acme.TotalSpend.Equal(decimal.NewFromInt(1320)) || acme.EventCount != 2 {
		t.Fatalf("Acme = spend %s count %d, want 1320/2", acme.TotalSpend, acme.EventCount)
	}

	// Corrupt the view out of band; repair must converge it back to the replay.
	db := config.GetDB()
	if err := db.Exec("UPDATE inventory_lines SET qty = 9999 WHERE name = ?", "Widget").Error; err != nil {
		t.Fatalf("corrupt view: %v", err)
	}
	repair, err := ledger.RepairInventory(ctx)
	if err != nil {
		t.Fatalf("repair inventory: %v", err)
	}
	if repair.EventsReplayed != 3 {
		t.Fatalf("repair replayed %d events, want 3", repair.EventsReplayed)
	}
	line, err = models.GetInventoryLineByName(ctx, "Widget")
	if err != nil {
		t.Fatalf("inventory line: %v", err)
	}
	if !line.Qty.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("after repair: qty=%s, want 70", line.Qty)
	}

	// Rebuilt rows carry the replay's timestamps, not the repair run's clock:
	// updated_at is the newest event touching the item. Compare against the
	// stored event so both sides went through the same column precision.
	storedSale, err := models.GetInvoiceEvent(ctx, sale.ID)
	if err != nil {
		t.Fatalf("reload sale: %v", err)
	}
	if !line.UpdatedAt.Equal(storedSale.CreatedAt) {
		t.Fatalf("after repair: updated_at=%s, want newest touching event %s", line.UpdatedAt, storedSale.CreatedAt)
	}

	// Idempotence: a second run with no new events rewrites identical rows.
	if _, err := ledger.RepairInventory(ctx); err != nil {
		t.Fatalf("repair inventory again: %v", err)
	}
	lineAgain, err := models.GetInventoryLineByName(ctx, "Widget")
	if err != nil {
		t.Fatalf("inventory line: %v", err)
	}
	if !lineAgain.Qty.Equal(line.Qty) || !lineAgain.UpdatedAt.Equal(line.UpdatedAt) || !lineAgain.CreatedAt.Equal(line.CreatedAt) {
		t.Fatalf("second repair diverged: %+v vs %+v", lineAgain, line)
	}

	// Delete the sale: the compensator re-adds the 30 and the aggregate drops.
	if err := ledger.DeleteInvoiceEvent(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	line, err = models.GetInventoryLineByName(ctx, "Widget")
	if err != nil {
		t.Fatalf("inventory line: %v", err)
	}
	if !line.Qty.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("after delete: qty=%s, want 100", line.Qty)
	}
	retail, err := models.GetCounterpartyAggregateByName(ctx, "Retail Co")
	if err != nil {
		t.Fatalf("counterparty: %v", err)
	}
	if !retail.TotalSpend.Equal(decimal.Zero) || retail.EventCount != 0 {
		t.Fatalf("Retail Co after delete = spend %s count %d, want 0/0", retail.TotalSpend, retail.EventCount)
	}

	// The deleted event is gone from the store and from reads.
	if _, err := models.GetInvoiceEvent(ctx, sale.ID); err == nil {
		t.Fatal("deleted event still readable")
	}

	// Counterparty repair converges aggregates from the remaining two events.
	repair, err = ledger.RepairCounterparties(ctx)
	if err != nil {
		t.Fatalf("repair counterparties: %v", err)
	}
	if repair.EventsReplayed != 2 {
		t.Fatalf("counterparty repair replayed %d events, want 2", repair.EventsReplayed)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=inkledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
