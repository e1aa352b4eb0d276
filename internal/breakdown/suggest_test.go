package breakdown

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAcosFromCpcCvr(t *testing.T) {
	got := AcosFromCpcCvr(dec(t, "100"), dec(t, "2"), dec(t, "0.02"))
	decEqual(t, "acos", got, "1")

	got = AcosFromCpcCvr(dec(t, "250"), dec(t, "1.5"), dec(t, "0.03"))
	decEqual(t, "acos", got, "0.2")

	if !AcosFromCpcCvr(decimal.Zero, dec(t, "2"), dec(t, "0.02")).IsZero() {
		t.Fatal("expected zero acos for zero sale price")
	}
	if !AcosFromCpcCvr(dec(t, "100"), dec(t, "2"), decimal.Zero).IsZero() {
		t.Fatal("expected zero acos for zero conversion rate")
	}
}

func TestCompute_SuggestedPriceReachesTargetMargin(t *testing.T) {
	target := dec(t, "0.20")
	in := Input{
		SalePriceIncVat: dec(t, "120"),
		SaleVatRate:     dec(t, "0.20"),
		Quantity:        1,
		Rules: []CostRule{
			{Name: "Alış Maliyeti", Rate: dec(t, "0.20"), Basis: FixedGross(dec(t, "50")), Creditable: true},
			{Name: "Komisyon", Rate: dec(t, "0.20"), Basis: PercentOfSale(dec(t, "0.15")), Creditable: true},
		},
		TargetMargin: target,
	}

	res, err := Compute(in)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if res.SuggestedSalePrice.Sign() <= 0 {
		t.Fatalf("expected a positive suggested price, got %s", res.SuggestedSalePrice)
	}

	// Replaying the scenario at the suggested price must land close to the
	// target margin: solver tolerance plus the final 2dp rounding.
	replay := in
	replay.SalePriceIncVat = res.SuggestedSalePrice
	replay.TargetMargin = decimal.Zero
	check, err := Compute(replay)
	if err != nil {
		t.Fatalf("replay Compute returned error: %v", err)
	}

	achieved := check.Margin.Div(decimal.NewFromInt(100))
	if achieved.Sub(target).Abs().Cmp(dec(t, "0.01")) > 0 {
		t.Fatalf("suggested price %s achieves margin %s, want about %s",
			res.SuggestedSalePrice, achieved, target)
	}
}

func TestCompute_SuggestedPriceZeroOutsideValidTarget(t *testing.T) {
	in := Input{
		SalePriceIncVat: dec(t, "120"),
		SaleVatRate:     dec(t, "0.20"),
		Quantity:        1,
		TargetMargin:    dec(t, "1.5"),
	}

	res, err := Compute(in)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if !res.SuggestedSalePrice.IsZero() {
		t.Fatalf("expected zero suggested price for target >= 1, got %s", res.SuggestedSalePrice)
	}
}
