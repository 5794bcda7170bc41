package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/anchor"
)

// fakeCache — кэш с памятью вызовов для проверки интеграции.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]bool
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]bool)}
}

func (c *fakeCache) Get(ctx context.Context, eventID string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, hit := c.entries[eventID]
	if hit {
		c.hits++
	}
	return ok, hit
}

func (c *fakeCache) Set(ctx context.Context, eventID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[eventID] = ok
}

// sealOne прогоняет один батч и возвращает запечатанное событие.
func sealOne(t *testing.T, store *memStore, ledger *anchor.MockLedger) Event {
	t.Helper()
	e := newTestEngine(testConfig(), store, ledger)
	stored := logN(t, e, 1)[0]
	if err := e.ForceBatchNow(context.Background()); err != nil {
		t.Fatalf("force batch: %v", err)
	}
	linked, err := store.GetEvent(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("get sealed event: %v", err)
	}
	return linked
}

func TestVerifyConfirmedEvent(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ev := sealOne(t, store, ledger)

	v := NewVerifier(store, store, ledger, nil, zap.NewNop())
	ok, err := v.Verify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("confirmed anchored event must verify")
	}
}

func TestVerifyUnlinkedEvent(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ev, err := store.CreateEvent(context.Background(), Event{ActorID: "p", Action: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	v := NewVerifier(store, store, ledger, nil, zap.NewNop())
	ok, err := v.Verify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("unlinked event must not verify")
	}
}

func TestVerifyPlaceholderReference(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ledger.AnchorErr = anchor.ErrUnavailable
	ev := sealOne(t, store, ledger)

	// Батч запечатан в degraded mode: привязка есть, якоря нет
	ledger.AnchorErr = nil
	v := NewVerifier(store, store, ledger, nil, zap.NewNop())
	ok, err := v.Verify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("placeholder reference must not verify")
	}
}

func TestVerifyLedgerDisagrees(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ev := sealOne(t, store, ledger)

	// Ledger «забыл» дайджест — спот-проверка обязана это поймать
	empty := anchor.NewMockLedger()
	v := NewVerifier(store, store, empty, nil, zap.NewNop())
	ok, err := v.Verify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("event must not verify when the ledger has no such anchor")
	}
}

func TestVerifyRootMismatch(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ev := sealOne(t, store, ledger)

	// Подменяем корень на событии: несогласованность с батчем
	store.mu.Lock()
	tampered := store.events[ev.ID]
	tampered.MerkleRoot = HashPair(ev.MerkleRoot, ev.MerkleRoot)
	store.events[ev.ID] = tampered
	store.mu.Unlock()

	v := NewVerifier(store, store, ledger, nil, zap.NewNop())
	ok, err := v.Verify(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered linkage must not verify")
	}
}

func TestVerifyUnknownEvent(t *testing.T) {
	store := newMemStore()
	v := NewVerifier(store, store, anchor.NewMockLedger(), nil, zap.NewNop())

	_, err := v.Verify(context.Background(), "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyUsesCache(t *testing.T) {
	store := newMemStore()
	ledger := anchor.NewMockLedger()
	ev := sealOne(t, store, ledger)

	cache := newFakeCache()
	v := NewVerifier(store, store, ledger, cache, zap.NewNop())

	if ok, _ := v.Verify(context.Background(), ev.ID); !ok {
		t.Fatal("first verify failed")
	}
	if ok, _ := v.Verify(context.Background(), ev.ID); !ok {
		t.Fatal("cached verify failed")
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", cache.hits)
	}
}
