package domain

import (
	"errors"
	"strings"
	"testing"
)

func validRequest() IngestRequest {
	return IngestRequest{
		Title:    "Patients' right to emergency care",
		Content:  strings.Repeat("Every hospital must provide emergency treatment. ", 3),
		DocType:  DocTypeLegal,
		Language: LanguageEnglish,
	}
}

func TestValidateIngest_Valid(t *testing.T) {
	req := validRequest()
	if err := ValidateIngest(req, req.Content, false); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestValidateIngest_EmptyTitle(t *testing.T) {
	req := validRequest()
	req.Title = "   "
	if err := ValidateIngest(req, req.Content, false); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestValidateIngest_BadDocType(t *testing.T) {
	req := validRequest()
	req.DocType = "blog"
	err := ValidateIngest(req, req.Content, false)
	if !errors.Is(err, ErrInvalidDocType) {
		t.Fatalf("expected ErrInvalidDocType, got %v", err)
	}
}

func TestValidateIngest_BadLanguage(t *testing.T) {
	req := validRequest()
	req.Language = "fr"
	err := ValidateIngest(req, req.Content, false)
	if !errors.Is(err, ErrInvalidLanguage) {
		t.Fatalf("expected ErrInvalidLanguage, got %v", err)
	}
}

func TestValidateIngest_ShortContent(t *testing.T) {
	req := validRequest()
	err := ValidateIngest(req, "too short", false)
	if !errors.Is(err, ErrContentTooShort) {
		t.Fatalf("expected ErrContentTooShort, got %v", err)
	}
}

func TestValidateIngest_PlaceholderSkipsLengthCheck(t *testing.T) {
	req := validRequest()
	if err := ValidateIngest(req, "[PDF file: report.pdf]", true); err != nil {
		t.Fatalf("placeholder content should pass: %v", err)
	}
}

func TestValidateQuery(t *testing.T) {
	if err := ValidateQuery("free treatment"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateQuery("  "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	a := Checksum("same content")
	b := Checksum("same content")
	if a != b {
		t.Fatalf("checksum not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == Checksum("different content") {
		t.Fatal("distinct content produced equal checksums")
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	err := NewValidationError("doc_type", "blog", ErrInvalidDocType)
	if !errors.Is(err, ErrInvalidDocType) {
		t.Fatal("expected errors.Is to match wrapped sentinel")
	}
	if !strings.Contains(err.Error(), "doc_type") {
		t.Errorf("error message missing field: %s", err.Error())
	}
}
