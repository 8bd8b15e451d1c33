package i18n

import (
	"errors"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
)

type form struct {
	Email string `json:"customer_email" validate:"required,email"`
}

func newCatalog(t *testing.T) (*Catalog, func(any) error) {
	t.Helper()
	v := NewValidator()
	c, err := New(v)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, v.Struct
}

func TestMessageByKey(t *testing.T) {
	c, _ := newCatalog(t)
	err := apperr.Conflict(apperr.KeySlotTaken)

	if got := c.Message(c.Translator("es-MX,es;q=0.9"), err); got != "Este horario ya no está disponible." {
		t.Fatalf("unexpected spanish message %q", got)
	}
	if got := c.Message(c.Translator("fr"), err); got != "This time is no longer available." {
		t.Fatalf("unexpected fallback message %q", got)
	}
	if got := c.Message(c.Translator(""), errors.New("db exploded")); strings.Contains(got, "db") {
		t.Fatalf("internal detail leaked: %q", got)
	}
}

func TestMessageValidation(t *testing.T) {
	c, validate := newCatalog(t)
	err := validate(form{Email: "nope"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	got := c.Message(c.Translator("en"), apperr.Validation(apperr.KeyInvalidRequest, err))
	if !strings.Contains(got, "customer_email") {
		t.Fatalf("expected field name in message, got %q", got)
	}
}

func TestCatalogsCoverSameKeys(t *testing.T) {
	for key := range messages["en"] {
		if _, ok := messages["es"][key]; !ok {
			t.Fatalf("missing spanish message for %s", key)
		}
	}
}
