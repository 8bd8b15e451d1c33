package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Conflict(KeySlotTaken))
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", KindOf(err))
	}
	if KeyOf(err) != KeySlotTaken {
		t.Fatalf("unexpected key %q", KeyOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal || KeyOf(errors.New("boom")) != KeyInternal {
		t.Fatal("foreign errors should be internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindNotFound:   http.StatusNotFound,
		KindConflict:   http.StatusConflict,
		KindRateLimit:  http.StatusTooManyRequests,
		KindForbidden:  http.StatusForbidden,
		KindTransient:  http.StatusServiceUnavailable,
		KindInternal:   http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := k.HTTPStatus(); got != want {
			t.Fatalf("%s: got %d, want %d", k, got, want)
		}
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
}
