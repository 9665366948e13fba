package metering

import (
	"testing"

	"pgregory.net/rapid"
)

// TestCalculateCostMicro_ConservationProperty is INV-001: for any
// non-negative tokens/price pair that does not overflow MaxSafeProduct,
// cost*1_000_000 + remainder must exactly reconstruct tokens*price, and
// neither cost nor remainder may ever be negative. Grounded on the
// hand-written conservation case in pricing_test.go, generalized across
// the input space with pgregory.net/rapid per SPEC_FULL §11.
func TestCalculateCostMicro_ConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.Int64Range(0, 1_000_000_000).Draw(t, "tokens")
		price := rapid.Int64Range(0, 10_000_000).Draw(t, "price")

		cost, remainder, err := CalculateCostMicro(tokens, price)
		if err != nil {
			// Only acceptable failure mode is a genuine overflow.
			if tokens != 0 && price != 0 && tokens <= MaxSafeProduct/price {
				t.Fatalf("unexpected error for non-overflowing inputs tokens=%d price=%d: %v", tokens, price, err)
			}
			return
		}

		if cost < 0 || remainder < 0 {
			t.Fatalf("negative result: cost=%d remainder=%d", cost, remainder)
		}
		if remainder >= 1_000_000 {
			t.Fatalf("remainder %d not reduced mod 1_000_000", remainder)
		}
		if reconstructed := cost*1_000_000 + remainder; reconstructed != tokens*price {
			t.Fatalf("conservation violated: tokens*price=%d reconstructed=%d", tokens*price, reconstructed)
		}
	})
}

// TestRemainderAccumulator_CarryConservation checks that repeatedly
// carrying remainders into an accumulator never loses or fabricates
// sub-micro-USD value: the sum of every extra whole micro-USD returned,
// scaled back up, plus whatever remains in the accumulator, always equals
// the sum of everything carried in.
func TestRemainderAccumulator_CarryConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "n")
		acc := NewRemainderAccumulator()

		var totalIn, totalOutMicro int64
		for i := 0; i < n; i++ {
			r := rapid.Int64Range(0, 999_999).Draw(t, "remainder")
			totalIn += r
			extra := acc.Carry("scope", r)
			totalOutMicro += extra * 1_000_000
		}
		totalOutMicro += acc.Get("scope")

		if totalOutMicro != totalIn {
			t.Fatalf("carry conservation violated: in=%d out=%d", totalIn, totalOutMicro)
		}
	})
}
