package audit

import (
	"errors"
	"fmt"
	"testing"
	"testing/quick"
)

func makeEvents(n int) []Event {
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, Event{
			OccurredAt: fmt.Sprintf("2026-08-01T10:00:%02dZ", i),
			ActorID:    fmt.Sprintf("actor-%d", i),
			Action:     "appointment.create",
			ResourceID: fmt.Sprintf("res-%d", i),
			Details:    map[string]interface{}{"seq": float64(i)},
		})
	}
	return events
}

func leaves(t *testing.T, events []Event) []string {
	t.Helper()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = mustHash(t, e)
	}
	return out
}

func TestBuildRootEmptyInput(t *testing.T) {
	if _, err := BuildRoot(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestBuildRootSingleLeafIdentity(t *testing.T) {
	events := makeEvents(1)
	root, err := BuildRoot(events)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	if root != mustHash(t, events[0]) {
		t.Fatalf("single-event root must equal the event digest")
	}
}

func TestBuildRootOddCountPromotion(t *testing.T) {
	// Непарный третий лист поднимается выше как есть:
	// root == pair(pair(d1,d2), d3)
	events := makeEvents(3)
	d := leaves(t, events)

	root, err := BuildRoot(events)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	if want := HashPair(HashPair(d[0], d[1]), d[2]); root != want {
		t.Fatalf("odd-count promotion broken: got %s want %s", root, want)
	}
}

func TestBuildRootFourLeaves(t *testing.T) {
	events := makeEvents(4)
	d := leaves(t, events)

	root, err := BuildRoot(events)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	if want := HashPair(HashPair(d[0], d[1]), HashPair(d[2], d[3])); root != want {
		t.Fatalf("4-leaf reduction broken: got %s want %s", root, want)
	}
}

func TestBuildRootFiveLeaves(t *testing.T) {
	// Хвост поднимается через два уровня:
	// root == pair(pair(pair(d1,d2), pair(d3,d4)), d5)
	events := makeEvents(5)
	d := leaves(t, events)

	root, err := BuildRoot(events)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	want := HashPair(HashPair(HashPair(d[0], d[1]), HashPair(d[2], d[3])), d[4])
	if root != want {
		t.Fatalf("5-leaf promotion broken: got %s want %s", root, want)
	}
}

func TestBuildRootTamperSensitive(t *testing.T) {
	events := makeEvents(4)
	base, err := BuildRoot(events)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	tampered := makeEvents(4)
	tampered[2].Details["seq"] = float64(99)
	changed, err := BuildRoot(tampered)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	if changed == base {
		t.Fatal("changing one event did not change the root")
	}

	reordered := makeEvents(4)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	swapped, err := BuildRoot(reordered)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}
	if swapped == base {
		t.Fatal("reordering events did not change the root")
	}
}

func TestBuildRootProperty(t *testing.T) {
	f := func(n uint8) bool {
		count := int(n%16 + 1)
		events := makeEvents(count)

		first, err := BuildRoot(events)
		if err != nil || !hexDigest.MatchString(first) {
			return false
		}
		second, err := BuildRoot(events)
		return err == nil && second == first
	}

	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("property check failed: %v", err)
	}
}
