package ledger

import (
	"fmt"

	"github.com/inkbooks/ledger_backend/config"
	"gorm.io/gorm"
)

const (
	salesAdmissionLock  = "ledger:sales_admission"
	inventoryRepairLock = "ledger:inventory_repair"
)

// Redis cache keys for the read endpoints. Every write path drops them; a
// lost invalidation only extends staleness until the TTL, never correctness.
const (
	ViewCacheInventory      = "ledger:view:inventory"
	ViewCacheCounterparties = "ledger:view:counterparties"
)

func dropViewCaches() {
	_ = config.RemoveRedisKey(ViewCacheInventory, ViewCacheCounterparties)
}

// acquireAdvisoryLock serializes critical sections on a MySQL named lock.
// Redis locks elsewhere are a best-effort optimization; this is the lock
// correctness actually depends on. The lock is connection-scoped, so it must
// be taken and released on the same transaction.
func acquireAdvisoryLock(tx *gorm.DB, name string, timeoutSeconds int) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, ?)", name, timeoutSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire advisory lock %q", name)
	}
	return nil
}

func releaseAdvisoryLock(tx *gorm.DB, name string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&_ok).Error
}
