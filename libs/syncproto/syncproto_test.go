package syncproto

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClampDays(t *testing.T) {
	cases := map[int]int{0: 14, -3: 14, 1: 1, 30: 30, 90: 90, 500: 90}
	for in, want := range cases {
		if got := ClampDays(in); got != want {
			t.Fatalf("ClampDays(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNewActionRejectsUnknownType(t *testing.T) {
	if _, err := NewAction("DELETE", CancelPayload{ID: "a"}, "k"); err == nil {
		t.Fatal("expected error for unknown action type")
	}
}

func TestUpdatePayloadOmitsUnsetFields(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a, err := NewAction(ActionUpdate, UpdatePayload{ID: "appt-1", StartAt: &start}, "k1")
	if err != nil {
		t.Fatalf("NewAction failed: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(a.Payload, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := fields["end_at"]; ok {
		t.Fatal("end_at should be omitted")
	}
	if fields["start_at"] != "2026-03-02T10:00:00Z" {
		t.Fatalf("unexpected start_at %v", fields["start_at"])
	}
}
