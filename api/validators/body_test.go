package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/perkmint/perkmint-backend/pkg/errors"
)

type samplePayload struct {
	Title string `json:"title" validate:"required,min=3"`
	Kind  string `json:"kind" validate:"required,oneof=percentage fixed_amount"`
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"Spring promo","kind":"percentage"}`))
	var payload samplePayload
	if err := DecodeJSONBody(req, &payload); err != nil {
		t.Fatalf("expected decode to succeed: %v", err)
	}
	if payload.Title != "Spring promo" {
		t.Fatalf("unexpected title %q", payload.Title)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"x","kind":"percentage","extra":1}`))
	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyReportsFieldDetails(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"ab","kind":"bonus"}`))
	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field detail map, got %T", typed.Details())
	}
	if details["title"] != "must be at least 3" {
		t.Fatalf("unexpected title message %q", details["title"])
	}
	if !strings.Contains(details["kind"], "must be one of") {
		t.Fatalf("unexpected kind message %q", details["kind"])
	}
}
