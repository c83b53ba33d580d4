package schema

import "testing"

func TestMulNotional(t *testing.T) {
	// 10.5 × 2 = 21 at scale.
	got, ok := MulNotional(Price(10_500_000), Quantity(2_000_000))
	if !ok || got != Notional(21_000_000) {
		t.Fatalf("got %d ok=%v", got, ok)
	}

	if got, ok := MulNotional(0, Quantity(5_000_000)); !ok || got != 0 {
		t.Fatalf("zero price: %d ok=%v", got, ok)
	}

	if _, ok := MulNotional(Price(1<<40), Quantity(1<<40)); ok {
		t.Fatalf("overflow not reported")
	}
}

func TestRuleMask(t *testing.T) {
	d := RiskDecision{Violations: RuleOrderValue | RuleRateLimit}
	if !d.Violated(RuleOrderValue) || !d.Violated(RuleRateLimit) {
		t.Fatalf("set bits not reported: %b", d.Violations)
	}
	if d.Violated(RulePositionLimit) {
		t.Fatalf("clear bit reported: %b", d.Violations)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(2)
	a, err := r.Add("ES")
	if err != nil || a != 1 {
		t.Fatalf("first add: id %d err %v", a, err)
	}
	b, err := r.Add("NQ")
	if err != nil || b != 2 {
		t.Fatalf("second add: id %d err %v", b, err)
	}

	if _, err := r.Add("ES"); err != ErrSymbolExists {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := r.Add(""); err != ErrEmptySymbol {
		t.Fatalf("empty: %v", err)
	}
	if _, err := r.Add("CL"); err != ErrRegistryFull {
		t.Fatalf("overfull: %v", err)
	}

	if id, ok := r.Lookup("NQ"); !ok || id != 2 {
		t.Fatalf("lookup: %d %v", id, ok)
	}
	if name, ok := r.Name(1); !ok || name != "ES" {
		t.Fatalf("name: %q %v", name, ok)
	}
	if _, ok := r.Name(0); ok {
		t.Fatalf("zero id resolved")
	}
	if r.Count() != 2 {
		t.Fatalf("count: %d", r.Count())
	}
}
