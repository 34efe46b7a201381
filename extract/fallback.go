package extract

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDocumentText is the best-effort local fallback when the extraction
// service is down but the document's raw text is available (plain-text
// uploads, or OCR output cached by the caller). It understands the loose
// "key: value" layout most scanned trade documents reduce to, plus item lines
// whose trailing tokens are quantity / unit rate / amount.
//
// The result is a candidate like any other; the ingestion processor treats
// this parser as just another opaque producer of structured invoice data.
func ParseDocumentText(text string) *CandidateInvoice {
	candidate := &CandidateInvoice{SourceText: text}

	inItems := false
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			inItems = false
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case hasPrefixFold(line, "invoice number", "invoice no", "number"):
			candidate.InvoiceNumber = valueAfterColon(line)
			continue
		case hasPrefixFold(line, "date", "invoice date", "document date"):
			if d, ok := parseDate(valueAfterColon(line)); ok {
				candidate.InvoiceDate = d
			}
			continue
		case hasPrefixFold(line, "vendor", "supplier", "customer", "counterparty", "bill to", "sold to"):
			candidate.CounterpartyName = valueAfterColon(line)
			continue
		case hasPrefixFold(line, "subtotal"):
			candidate.Subtotal = parseAmount(valueAfterColon(line))
			continue
		case hasPrefixFold(line, "tax", "vat", "gst"):
			candidate.TaxAmount = parseAmount(valueAfterColon(line))
			continue
		case hasPrefixFold(line, "total", "grand total", "amount due"):
			candidate.GrandTotal = parseAmount(valueAfterColon(line))
			continue
		case hasPrefixFold(line, "items", "line items"):
			inItems = true
			continue
		}

		if candidate.Classification == "" {
			switch {
			case strings.Contains(lower, "purchase order"):
				candidate.Classification = "PurchaseOrder"
			case strings.Contains(lower, "purchase invoice"), strings.Contains(lower, "bill from"):
				candidate.Classification = "PurchaseInvoice"
			case strings.Contains(lower, "sales invoice"), strings.Contains(lower, "tax invoice"):
				candidate.Classification = "SalesInvoice"
			}
		}

		if inItems {
			if item, ok := parseItemLine(line); ok {
				candidate.Items = append(candidate.Items, item)
			}
		}
	}

	if candidate.Classification == "" {
		candidate.Classification = "Other"
	}
	return candidate
}

func hasPrefixFold(line string, prefixes ...string) bool {
	lower := strings.ToLower(line)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p+":") || strings.HasPrefix(lower, p+" :") {
			return true
		}
	}
	return false
}

func valueAfterColon(line string) string {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseAmount(s string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseItemLine accepts "<name> <qty> <unit rate> [<amount>]" with the name
// allowed to contain spaces; the trailing two or three tokens must be numeric.
func parseItemLine(line string) (CandidateItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return CandidateItem{}, false
	}

	numeric := make([]decimal.Decimal, 0, 3)
	split := len(fields)
	for i := len(fields) - 1; i >= 0 && len(numeric) < 3; i-- {
		d, err := decimal.NewFromString(strings.ReplaceAll(fields[i], ",", ""))
		if err != nil {
			break
		}
		numeric = append([]decimal.Decimal{d}, numeric...)
		split = i
	}
	if len(numeric) < 2 || split == 0 {
		return CandidateItem{}, false
	}

	item := CandidateItem{
		Name:     strings.Join(fields[:split], " "),
		Qty:      numeric[0],
		UnitRate: numeric[1],
	}
	if len(numeric) == 3 {
		item.Amount = numeric[2]
	} else {
		item.Amount = item.Qty.Mul(item.UnitRate)
	}
	return item, true
}
