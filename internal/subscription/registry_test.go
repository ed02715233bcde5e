package subscription_test

import (
	"testing"

	"mdhub/internal/subscription"
)

// go test -v --run TestRegistrySubscribeIdempotent
func TestRegistrySubscribeIdempotent(t *testing.T) {
	r := subscription.NewRegistry()

	added := r.Subscribe("s1", []string{"A", "B"}, subscription.CategoryLTPC)
	if len(added) != 2 {
		t.Fatalf("added = %v, want 2 keys", added)
	}

	// Same keys again: nothing new.
	if added := r.Subscribe("s1", []string{"A", "B"}, subscription.CategoryLTPC); len(added) != 0 {
		t.Fatalf("repeat subscribe added %v", added)
	}

	if got := r.ClientsFor("A"); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("ClientsFor(A) = %v", got)
	}
	if got := r.InstrumentCount(); got != 2 {
		t.Fatalf("instrument count = %d, want 2", got)
	}
}

// go test -v --run TestRegistryUnsubscribeSubset
func TestRegistryUnsubscribeSubset(t *testing.T) {
	r := subscription.NewRegistry()
	r.Subscribe("s1", []string{"A", "B"}, subscription.CategoryLTPC)
	r.Subscribe("s2", []string{"A"}, subscription.CategoryFull)

	removed := r.Unsubscribe("s1", []string{"A"})
	if got := removed[subscription.CategoryLTPC]; len(got) != 1 || got[0] != "A" {
		t.Fatalf("removed = %v", removed)
	}

	// s2 still watches A; the reverse index keeps the instrument alive.
	if !r.HasSubscribers("A") {
		t.Fatal("A lost its remaining watcher")
	}
	if got := r.InstrumentsFor("s1", subscription.CategoryLTPC); len(got) != 1 || got[0] != "B" {
		t.Fatalf("InstrumentsFor(s1) = %v", got)
	}
}

// go test -v --run TestRegistryRemoveClient
func TestRegistryRemoveClient(t *testing.T) {
	r := subscription.NewRegistry()
	r.Subscribe("s1", []string{"A", "B"}, subscription.CategoryLTPC)
	r.Subscribe("s1", []string{"C"}, subscription.CategoryFull)

	removed := r.RemoveClient("s1")
	if len(removed[subscription.CategoryLTPC]) != 2 || len(removed[subscription.CategoryFull]) != 1 {
		t.Fatalf("removed = %v", removed)
	}

	if got := r.SessionCount(); got != 0 {
		t.Fatalf("session count = %d, want 0", got)
	}
	if got := r.InstrumentCount(); got != 0 {
		t.Fatalf("instrument count = %d, want 0", got)
	}

	// The transport can report a disconnect twice.
	if removed := r.RemoveClient("s1"); len(removed) != 0 {
		t.Fatalf("second removal removed %v", removed)
	}

	// Lookups after removal return empty, never nil.
	if got := r.ClientsFor("A"); got == nil || len(got) != 0 {
		t.Fatalf("ClientsFor after removal = %v", got)
	}
}
