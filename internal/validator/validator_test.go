package validator

import (
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace/internal/apperrors"
)

type bankRequest struct {
	AccountNumber string `json:"accountNumber" validate:"required,bank_account"`
	IFSC          string `json:"ifsc" validate:"required,ifsc"`
	Amount        string `json:"amount" validate:"omitempty,amount"`
}

func TestBankRules(t *testing.T) {
	if err := ValidateIFSC("HDFC0001234"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, code := range []string{"HDFC1001234", "hdfc0001234", "HDF0001234"} {
		if err := ValidateIFSC(code); err == nil {
			t.Fatalf("%s: expected error", code)
		}
	}
	if err := ValidateAccountNumber("123456789"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, number := range []string{"12345678", "1234567890123456789", "12345678a"} {
		if err := ValidateAccountNumber(number); err == nil {
			t.Fatalf("%s: expected error", number)
		}
	}
	if got := MaskAccountNumber("001234561234"); got != "XXXXXX1234" {
		t.Fatalf("unexpected mask %s", got)
	}
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"accountNumber":"12","ifsc":"HDFC0001234","amount":"1.234"}`))
	var body bankRequest
	err := DecodeJSONBody(req, &body)
	appErr := apperrors.As(err)
	if appErr == nil || appErr.Code() != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := appErr.Details()["accountNumber"]; !ok {
		t.Fatalf("expected accountNumber detail, got %#v", appErr.Details())
	}
	if _, ok := appErr.Details()["amount"]; !ok {
		t.Fatalf("expected amount detail, got %#v", appErr.Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("PUT", "/", strings.NewReader(`{"accountNumber":"123456789","ifsc":"HDFC0001234","extra":true}`))
	var body bankRequest
	if err := DecodeJSONBody(req, &body); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 50, 1, 200); err == nil {
		t.Fatal("expected range error")
	}
	value, err := ParseQueryInt(httptest.NewRequest("GET", "/", nil), "limit", 50, 1, 200)
	if err != nil || value != 50 {
		t.Fatalf("expected default, got %d %v", value, err)
	}
}
