package breakdown

import "github.com/shopspring/decimal"

// marginTolerance stops the suggested-price search once the achieved net
// margin is within a tenth of a percentage point of the target.
var marginTolerance = decimal.RequireFromString("0.001")

const maxSuggestRounds = 20

// AcosFromCpcCvr derives an advertising cost-of-sale fraction from a cost
// per click and a conversion rate: ACOS = CPC / (salePrice × CVR). Returns
// zero when the sale price or conversion rate make the formula meaningless.
func AcosFromCpcCvr(salePriceIncVat, cpc, cvr decimal.Decimal) decimal.Decimal {
	if salePriceIncVat.Sign() <= 0 || cvr.Sign() <= 0 {
		return decimal.Zero
	}
	return cpc.Div(salePriceIncVat.Mul(cvr))
}

// suggestedPrice searches for the VAT-inclusive sale price that reaches the
// scenario's target net margin. Percent-based rules scale with the candidate
// price while fixed costs stay put, so a closed form does not exist for
// every rule set; a short damped iteration converges for realistic inputs.
func suggestedPrice(in Input) decimal.Decimal {
	target := in.TargetMargin
	if target.Sign() <= 0 || target.Cmp(one) >= 0 {
		return decimal.Zero
	}

	guess := in.SalePriceIncVat
	if guess.Sign() <= 0 {
		guess = decimal.NewFromInt(100)
	}
	qty := decimal.NewFromInt(in.Quantity)

	for i := 0; i < maxSuggestRounds; i++ {
		trial := in
		trial.SalePriceIncVat = guess
		trial.TargetMargin = decimal.Zero

		res, err := Compute(trial)
		if err != nil {
			return decimal.Zero
		}

		revenue := guess.Mul(qty)
		if revenue.Sign() <= 0 {
			return decimal.Zero
		}
		margin := res.NetProfit.Div(revenue)
		if margin.Sub(target).Abs().Cmp(marginTolerance) < 0 {
			break
		}

		guess = guess.Mul(one.Add(target.Sub(margin)))
		if guess.Sign() <= 0 {
			return decimal.Zero
		}
	}

	return guess.Round(2)
}
