package aggregate

import (
	"math/big"
	"testing"

	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/model"
)

func push(t *testing.T, ring *history.Ring, f float64) {
	t.Helper()
	r, ok := model.RateFromFloat(f)
	if !ok {
		t.Fatalf("bad rate %v", f)
	}
	ring.Push(r)
}

func TestAggregateEmptyStoreReturnsFalse(t *testing.T) {
	store := history.NewStore([]string{"a", "b"}, 10)
	if _, ok := Aggregate(store); ok {
		t.Fatal("expected aggregate over empty store to return false")
	}
}

func TestAggregateSingleSourceNoDrift(t *testing.T) {
	// S1: one source returning 0.5 every pull for ten pull intervals.
	store := history.NewStore([]string{"only"}, 60)
	ring := store.Ring("only")
	for i := 0; i < 10; i++ {
		push(t, ring, 0.5)
	}
	rate, ok := Aggregate(store)
	if !ok {
		t.Fatal("expected aggregation to succeed")
	}
	want := big.NewRat(1, 2)
	if rate.Rat().Cmp(want) != 0 {
		t.Fatalf("got %v want %v", rate.Rat(), want)
	}
}

func TestAggregateOutlierAbsorption(t *testing.T) {
	// S2: three sources, each [1,1,1,1,1,5]; per-source medians are 1.0.
	store := history.NewStore([]string{"a", "b", "c"}, 60)
	for _, s := range []string{"a", "b", "c"} {
		ring := store.Ring(s)
		for i := 0; i < 5; i++ {
			push(t, ring, 1.0)
		}
		push(t, ring, 5.0)
	}
	rate, ok := Aggregate(store)
	if !ok {
		t.Fatal("expected aggregation to succeed")
	}
	if rate.Rat().Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("got %v want 1", rate.Rat())
	}
}

func TestAggregateEvenCountTieBreak(t *testing.T) {
	store := history.NewStore([]string{"a"}, 60)
	ring := store.Ring("a")
	push(t, ring, 1.0)
	push(t, ring, 2.0)
	rate, ok := Aggregate(store)
	if !ok {
		t.Fatal("expected aggregation to succeed")
	}
	if rate.Rat().Cmp(big.NewRat(3, 2)) != 0 {
		t.Fatalf("got %v want 3/2", rate.Rat())
	}
}

func TestAggregateIgnoresEmptySourcesButUsesOthers(t *testing.T) {
	// S6-adjacent: a source with no successful readings must not block
	// aggregation of the sources that do have data.
	store := history.NewStore([]string{"good", "empty"}, 60)
	push(t, store.Ring("good"), 2.0)
	rate, ok := Aggregate(store)
	if !ok {
		t.Fatal("expected aggregation over remaining sources to succeed")
	}
	if rate.Rat().Cmp(big.NewRat(2, 1)) != 0 {
		t.Fatalf("got %v want 2", rate.Rat())
	}
}

func TestAggregateIdempotentWithoutNewReadings(t *testing.T) {
	store := history.NewStore([]string{"a", "b"}, 60)
	push(t, store.Ring("a"), 1.1)
	push(t, store.Ring("b"), 0.9)
	first, ok1 := Aggregate(store)
	second, ok2 := Aggregate(store)
	if !ok1 || !ok2 {
		t.Fatal("expected both aggregations to succeed")
	}
	if first.Rat().Cmp(second.Rat()) != 0 {
		t.Fatalf("expected idempotent aggregation, got %v then %v", first.Rat(), second.Rat())
	}
}

func rat(n, d string) *big.Rat {
	r := new(big.Rat)
	num, _ := new(big.Int).SetString(n, 10)
	den, _ := new(big.Int).SetString(d, 10)
	r.SetFrac(num, den)
	return r
}

func TestReduceToFractionVectors(t *testing.T) {
	eps := DefaultEpsilon()
	cases := []struct {
		name       string
		num, den   string
		wantN      uint64
		wantD      uint64
	}{
		{"tiny-exact", "1", "101", 1, 101},
		{"already-reduced", "13902531941473", "12500000000000000000", 13902531941473, 12500000000000000000},
		{"already-reduced-flipped", "12500000000000000000", "13902531941473", 12500000000000000000, 13902531941473},
		{"half-exact", "1", "2", 1, 2},
		{"reduces-to-half", "100000000000000000000000000000000000", "200000000000000000000000000000000001", 1, 2},
		{"large-mediant-search", "6730672262010705765392518838235123", "12417307353238580889556877312", 444549438399, 820142},
		{"large-mediant-search-2", "78784731800983935460904371", "57712362587357708288", 865205507352, 633791},
		{"large-mediant-search-3", "96961673726254741664712289", "64926407910777421824", 2905555397391, 1945586},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			target := rat(c.num, c.den)
			got := ReduceToFraction(target, eps)
			if got.Numerator != c.wantN || got.Denominator != c.wantD {
				t.Fatalf("got %d/%d want %d/%d", got.Numerator, got.Denominator, c.wantN, c.wantD)
			}
		})
	}
}

func TestReduceToFractionZero(t *testing.T) {
	got := ReduceToFraction(big.NewRat(0, 1), DefaultEpsilon())
	if got.Numerator != 0 || got.Denominator != 1 {
		t.Fatalf("got %d/%d want 0/1", got.Numerator, got.Denominator)
	}
}

func TestReduceToFractionWithinEpsilon(t *testing.T) {
	target := big.NewRat(1, 3)
	got := ReduceToFraction(target, DefaultEpsilon())
	approx := new(big.Rat).SetFrac64(int64(got.Numerator), int64(got.Denominator))
	diff := new(big.Rat).Sub(approx, target)
	diff.Abs(diff)
	if diff.Cmp(DefaultEpsilon()) > 0 {
		t.Fatalf("reduced fraction %d/%d not within epsilon of 1/3", got.Numerator, got.Denominator)
	}
}

func TestRelativeDeviationPercent(t *testing.T) {
	// S3: prev = 1.0, candidate = 1.35 -> +35%
	got := RelativeDeviationPercent(big.NewRat(135, 100), big.NewRat(1, 1))
	if got.Cmp(big.NewRat(35, 1)) != 0 {
		t.Fatalf("got %v want 35", got)
	}
}

func TestRelativeDeviationPercentZeroPrevious(t *testing.T) {
	if got := RelativeDeviationPercent(big.NewRat(1, 1), big.NewRat(0, 1)); got != nil {
		t.Fatalf("expected nil deviation for zero previous rate, got %v", got)
	}
}
