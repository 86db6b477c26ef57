package quote

import (
	"testing"

	"github.com/rickgao/tradesim/internal/model"
)

func TestCache_Lifecycle(t *testing.T) {
	c := NewCache()

	if c.Update(model.Quote{Symbol: "A", LastPrice: 1}) {
		t.Error("expected Update of unsubscribed symbol to return false")
	}
	if !c.Subscribe("A") {
		t.Fatal("expected first Subscribe to return true")
	}
	if c.Subscribe("A") {
		t.Error("expected second Subscribe to return false")
	}
	if _, ok := c.Get("A"); ok {
		t.Error("expected no quote before the first update")
	}

	c.Update(model.Quote{Symbol: "A", LastPrice: 10, AskPrice: 11})
	c.Update(model.Quote{Symbol: "A", LastPrice: 12})

	q, ok := c.Get("A")
	if !ok {
		t.Fatal("expected a quote after update")
	}
	if q.LastPrice != 12 || q.AskPrice != 0 {
		t.Errorf("Get = %+v, want wholesale replacement with last 12 and no ask", q)
	}

	q.LastPrice = 99
	if again, _ := c.Get("A"); again.LastPrice != 12 {
		t.Errorf("Get returned shared state: LastPrice = %v, want 12", again.LastPrice)
	}
}

func TestCache_Symbols(t *testing.T) {
	c := NewCache()
	for _, s := range []string{"C", "A", "B"} {
		c.Subscribe(s)
	}

	got := c.Symbols()
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("Symbols() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if !c.Subscribed("B") || c.Subscribed("D") {
		t.Error("Subscribed() mismatch")
	}
}
