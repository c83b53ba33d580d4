package ring

import (
	"sync"
	"testing"
)

func TestMPSCSingleProducerFIFO(t *testing.T) {
	q := NewMPSC[int](8)
	for i := 0; i < 8; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d failed below capacity", i)
		}
	}
	if q.Push(8) {
		t.Fatalf("push accepted on full queue")
	}
	for i := 0; i < 8; i++ {
		var v int
		if !q.Pop(&v) || v != i {
			t.Fatalf("pop %d mismatch: got %d", i, v)
		}
	}
}

func TestMPSCConcurrentProducers(t *testing.T) {
	const (
		producers = 4
		perProd   = 50_000
	)
	q := NewMPSC[int](2048)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; {
				if q.Push(p*perProd + i) {
					i++
				}
			}
		}(p)
	}

	seen := make([]bool, producers*perProd)
	lastPerProd := make([]int, producers)
	for i := range lastPerProd {
		lastPerProd[i] = -1
	}
	got := 0
	var v int
	for got < producers*perProd {
		if !q.Pop(&v) {
			continue
		}
		if v < 0 || v >= len(seen) || seen[v] {
			t.Fatalf("duplicate or out-of-range value %d", v)
		}
		seen[v] = true
		// per-producer order must be preserved even though the global
		// interleaving is unspecified
		p, i := v/perProd, v%perProd
		if i <= lastPerProd[p] {
			t.Fatalf("producer %d order violated: %d after %d", p, i, lastPerProd[p])
		}
		lastPerProd[p] = i
		got++
	}
	wg.Wait()
}
