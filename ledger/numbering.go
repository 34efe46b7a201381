package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inkbooks/ledger_backend/models"
	"gorm.io/gorm"
)

// maxNumberAttempts bounds the collision-resolution loop. The successor
// function is deterministic, so hitting the bound means something is feeding
// us pathological numbers and the ingestion should fail loudly.
const maxNumberAttempts = 100

// NextInvoiceNumber is the deterministic successor function for invoice
// number collisions: a trailing numeric suffix is incremented, anything else
// gets "-1" appended.
func NextInvoiceNumber(number string) string {
	trimmed := strings.TrimRight(number, "0123456789")
	suffix := number[len(trimmed):]
	if suffix == "" {
		return number + "-1"
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		// Suffix too large for int64; treat like a non-numeric tail.
		return number + "-1"
	}
	next := strconv.FormatInt(n+1, 10)
	if len(next) < len(suffix) {
		// Preserve zero padding (INV-009 -> INV-010).
		next = strings.Repeat("0", len(suffix)-len(next)) + next
	}
	return trimmed + next
}

// resolveInvoiceNumber walks the successor chain until the number is unused.
func resolveInvoiceNumber(tx *gorm.DB, candidate string) (string, error) {
	number := candidate
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		exists, err := models.InvoiceNumberExists(tx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		number = NextInvoiceNumber(number)
	}
	return "", fmt.Errorf("could not resolve a unique invoice number from %q after %d attempts", candidate, maxNumberAttempts)
}
