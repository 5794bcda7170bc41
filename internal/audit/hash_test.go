package audit

import (
	"regexp"
	"testing"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func sampleEvent() Event {
	return Event{
		OccurredAt: "2026-08-01T10:30:00Z",
		ActorID:    "patient-42",
		Action:     "appointment.create",
		ResourceID: "appt-1001",
		Details:    map[string]interface{}{"doctor": "dr-9", "slot": "10:30"},
	}
}

func mustHash(t *testing.T, e Event) string {
	t.Helper()
	d, err := HashEvent(e)
	if err != nil {
		t.Fatalf("hash event: %v", err)
	}
	return d
}

func TestHashEventDeterministic(t *testing.T) {
	e := sampleEvent()
	first := mustHash(t, e)
	for i := 0; i < 10; i++ {
		if got := mustHash(t, e); got != first {
			t.Fatalf("digest changed between calls: %s vs %s", got, first)
		}
	}
	if !hexDigest.MatchString(first) {
		t.Fatalf("digest is not lowercase 256-bit hex: %s", first)
	}
}

func TestHashEventIgnoresStoreFields(t *testing.T) {
	// ID и привязка к батчу не входят в каноническую форму: дайджест
	// должен быть воспроизводим до и после записи в хранилище
	e := sampleEvent()
	before := mustHash(t, e)

	e.ID = "some-store-id"
	e.BatchID = "b1"
	e.MerkleRoot = "deadbeef"
	e.AnchorRef = "ledger-entry-1"
	if got := mustHash(t, e); got != before {
		t.Fatalf("digest depends on store-assigned fields")
	}
}

func TestHashEventTamperSensitive(t *testing.T) {
	base := mustHash(t, sampleEvent())

	mutations := map[string]func(*Event){
		"occurred_at": func(e *Event) { e.OccurredAt = "2026-08-01T10:30:01Z" },
		"actor_id":    func(e *Event) { e.ActorID = "patient-43" },
		"action":      func(e *Event) { e.Action = "appointment.cancel" },
		"resource_id": func(e *Event) { e.ResourceID = "appt-1002" },
		"details":     func(e *Event) { e.Details["slot"] = "11:00" },
	}

	for name, mutate := range mutations {
		e := sampleEvent()
		mutate(&e)
		if got := mustHash(t, e); got == base {
			t.Errorf("mutation of %s did not change the digest", name)
		}
	}
}

func TestHashPairOrderSensitive(t *testing.T) {
	a := mustHash(t, sampleEvent())
	e2 := sampleEvent()
	e2.Action = "profile.update"
	b := mustHash(t, e2)

	if HashPair(a, b) == HashPair(b, a) {
		t.Fatal("hash pair is not order-sensitive")
	}
	if HashPair(a, b) != HashPair(a, b) {
		t.Fatal("hash pair is not deterministic")
	}
}
