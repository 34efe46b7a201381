package utils

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrors_FieldTags(t *testing.T) {
	type payload struct {
		InvoiceNumber string `validate:"required"`
		Counterparty  string `validate:"required"`
	}
	err := validator.New().Struct(payload{})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	fields := ProcessValidationErrors(err)
	if fields["InvoiceNumber"] != "required" || fields["Counterparty"] != "required" {
		t.Fatalf("unexpected field map: %v", fields)
	}
}

// Bind errors from a malformed request body are json decode errors, not
// validator output; they must come back as a plain error map, never a panic.
func TestProcessValidationErrors_MalformedJSONDoesNotPanic(t *testing.T) {
	var dest struct {
		Qty int `json:"qty"`
	}

	syntaxErr := json.Unmarshal([]byte(`{"qty":`), &dest)
	if syntaxErr == nil {
		t.Fatal("expected syntax error")
	}
	fields := ProcessValidationErrors(syntaxErr)
	if fields["error"] == "" {
		t.Fatalf("expected generic error entry, got %v", fields)
	}

	typeErr := json.Unmarshal([]byte(`{"qty":"ten"}`), &dest)
	if typeErr == nil {
		t.Fatal("expected type error")
	}
	fields = ProcessValidationErrors(typeErr)
	if fields["error"] == "" {
		t.Fatalf("expected generic error entry, got %v", fields)
	}
}
