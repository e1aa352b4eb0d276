// Package breakdown decomposes a unit sale price into a waterfall of cost
// line items with VAT-inclusive and VAT-exclusive amounts, a net profit
// figure and a VAT ledger. All arithmetic is decimal; monetary values are
// rounded to 2 decimal places at the point of computation, never at display
// time, so totals are exact sums of their rounded parts.
package breakdown

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRate reports a VAT or cost-rule rate outside [0,1].
	ErrInvalidRate = errors.New("rate outside [0,1]")
	// ErrCircularBasis reports a cycle in the cost-rule basis references.
	ErrCircularBasis = errors.New("circular basis reference")
	// ErrUnknownBasis reports a basis reference to a rule that does not exist.
	ErrUnknownBasis = errors.New("unknown basis reference")
	// ErrInvalidInput reports a malformed scenario (negative price, zero
	// quantity, duplicate rule names).
	ErrInvalidInput = errors.New("invalid calculator input")
)

// BasisKind selects how a cost rule derives its VAT-exclusive amount.
type BasisKind string

const (
	// BasisFixedNet is a fixed amount already excluding VAT.
	BasisFixedNet BasisKind = "fixed_net"
	// BasisFixedGross is a fixed amount entered VAT-inclusive; the net is
	// derived with the rule's own rate. Purchase cost, shipping and cargo
	// are typically entered this way.
	BasisFixedGross BasisKind = "fixed_gross"
	// BasisPercentOfSale is a fraction of the sale price excluding VAT.
	BasisPercentOfSale BasisKind = "percent_of_sale"
	// BasisPercentOfSaleGross is a fraction of the VAT-inclusive sale
	// price; advertising spend (ACOS) works on the gross price.
	BasisPercentOfSaleGross BasisKind = "percent_of_sale_gross"
	// BasisPercentOfItem is a fraction of another rule's net amount,
	// referenced by name. Forward references are allowed.
	BasisPercentOfItem BasisKind = "percent_of_item"
)

// Basis describes the base a cost rule's net amount is computed from.
type Basis struct {
	Kind    BasisKind       `json:"kind"`
	Amount  decimal.Decimal `json:"amount,omitempty"`
	Percent decimal.Decimal `json:"percent,omitempty"`
	Ref     string          `json:"ref,omitempty"`
}

// FixedNet returns a basis for an amount that already excludes VAT.
func FixedNet(amount decimal.Decimal) Basis {
	return Basis{Kind: BasisFixedNet, Amount: amount}
}

// FixedGross returns a basis for an amount entered VAT-inclusive.
func FixedGross(amount decimal.Decimal) Basis {
	return Basis{Kind: BasisFixedGross, Amount: amount}
}

// PercentOfSale returns a basis proportional to the net sale price.
func PercentOfSale(fraction decimal.Decimal) Basis {
	return Basis{Kind: BasisPercentOfSale, Percent: fraction}
}

// PercentOfSaleGross returns a basis proportional to the gross sale price.
func PercentOfSaleGross(fraction decimal.Decimal) Basis {
	return Basis{Kind: BasisPercentOfSaleGross, Percent: fraction}
}

// PercentOfItem returns a basis proportional to another rule's net amount.
func PercentOfItem(ref string, fraction decimal.Decimal) Basis {
	return Basis{Kind: BasisPercentOfItem, Percent: fraction, Ref: ref}
}

// CostRule is one configurable cost component of a sale.
type CostRule struct {
	Name string `json:"name"`
	// Rate is the VAT rate applied to this item, as a fraction (0.20 = 20%).
	Rate  decimal.Decimal `json:"rate"`
	Basis Basis           `json:"basis"`
	// Creditable marks the item's VAT as reclaimable input VAT; creditable
	// items feed the ledger's deduction entries.
	Creditable bool `json:"creditable"`
}

// Input is one pricing scenario.
type Input struct {
	SalePriceIncVat decimal.Decimal `json:"salePriceIncVat"`
	// SaleVatRate is the product's VAT rate as a fraction.
	SaleVatRate decimal.Decimal `json:"saleVatRate"`
	Quantity    int64           `json:"quantity"`
	Rules       []CostRule      `json:"rules"`
	// IncomeTaxRate, if positive, taxes positive gross profit.
	IncomeTaxRate decimal.Decimal `json:"incomeTaxRate"`
	// TargetMargin, if in (0,1), requests a suggested sale price that
	// would reach that net margin.
	TargetMargin decimal.Decimal `json:"targetMargin"`
}

// CostLineItem is one computed cost component.
type CostLineItem struct {
	Name         string          `json:"name"`
	Rate         decimal.Decimal `json:"rate"`
	AmountExVat  decimal.Decimal `json:"amountExVat"`
	AmountIncVat decimal.Decimal `json:"amountIncVat"`
	TotalExVat   decimal.Decimal `json:"totalExVat"`
	TotalIncVat  decimal.Decimal `json:"totalIncVat"`
}

// VatItemKind tags ledger entries.
type VatItemKind string

const (
	VatGross     VatItemKind = "gross"
	VatDeduction VatItemKind = "deduction"
	VatNet       VatItemKind = "net"
)

// VatLineItem is one entry of the unit VAT ledger.
type VatLineItem struct {
	Name   string          `json:"name"`
	Kind   VatItemKind     `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

// VatLedger nets the VAT borne on the cost side of a unit sale: the gross
// expense across all cost items, minus the creditable portions.
type VatLedger struct {
	GrossExpense VatLineItem   `json:"grossExpense"`
	IncomeItems  []VatLineItem `json:"incomeItems"`
	NetExpense   VatLineItem   `json:"netExpense"`
}

// Result is the full breakdown for one scenario. It is never mutated after
// Compute returns; every input change produces a fresh Result.
type Result struct {
	SalePriceIncVat decimal.Decimal `json:"salePriceIncVat"`
	SalePriceExVat  decimal.Decimal `json:"salePriceExVat"`
	Quantity        int64           `json:"quantity"`
	// Costs preserves rule declaration order for waterfall display.
	Costs              []CostLineItem  `json:"costs"`
	TotalCostExVat     decimal.Decimal `json:"totalCostExVat"`
	GrossProfit        decimal.Decimal `json:"grossProfit"`
	IncomeTax          decimal.Decimal `json:"incomeTax"`
	NetProfit          decimal.Decimal `json:"netProfit"`
	Margin             decimal.Decimal `json:"margin"`
	ROI                decimal.Decimal `json:"roi"`
	SuggestedSalePrice decimal.Decimal `json:"suggestedSalePrice"`
	VatCalculation     VatLedger       `json:"vatCalculation"`
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Compute evaluates one scenario. It is a pure function: identical inputs
// yield structurally identical results, and no partial result is returned
// on error.
func Compute(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	order, index, err := evalOrder(in.Rules)
	if err != nil {
		return Result{}, err
	}

	qty := decimal.NewFromInt(in.Quantity)
	salePriceExVat := in.SalePriceIncVat.Div(one.Add(in.SaleVatRate)).Round(2)

	// Net amounts are resolved in topological order so percent-of-item
	// bases always see an already-rounded referent.
	netAmounts := make([]decimal.Decimal, len(in.Rules))
	for _, idx := range order {
		rule := in.Rules[idx]
		var net decimal.Decimal
		switch rule.Basis.Kind {
		case BasisFixedNet:
			net = rule.Basis.Amount
		case BasisFixedGross:
			net = rule.Basis.Amount.Div(one.Add(rule.Rate))
		case BasisPercentOfSale:
			net = salePriceExVat.Mul(rule.Basis.Percent)
		case BasisPercentOfSaleGross:
			net = in.SalePriceIncVat.Mul(rule.Basis.Percent).Div(one.Add(rule.Rate))
		case BasisPercentOfItem:
			net = netAmounts[index[rule.Basis.Ref]].Mul(rule.Basis.Percent)
		default:
			return Result{}, fmt.Errorf("%w: rule %q has basis kind %q", ErrInvalidInput, rule.Name, rule.Basis.Kind)
		}
		netAmounts[idx] = net.Round(2)
	}

	costs := make([]CostLineItem, len(in.Rules))
	totalCostExVat := decimal.Zero
	totalCostIncVat := decimal.Zero
	for i, rule := range in.Rules {
		amountExVat := netAmounts[i]
		amountIncVat := amountExVat.Mul(one.Add(rule.Rate)).Round(2)
		item := CostLineItem{
			Name:         rule.Name,
			Rate:         rule.Rate,
			AmountExVat:  amountExVat,
			AmountIncVat: amountIncVat,
			TotalExVat:   amountExVat.Mul(qty),
			TotalIncVat:  amountIncVat.Mul(qty),
		}
		costs[i] = item
		totalCostExVat = totalCostExVat.Add(item.TotalExVat)
		totalCostIncVat = totalCostIncVat.Add(item.TotalIncVat)
	}

	grossProfit := salePriceExVat.Mul(qty).Sub(totalCostExVat)
	incomeTax := decimal.Zero
	if grossProfit.Sign() > 0 && in.IncomeTaxRate.Sign() > 0 {
		incomeTax = grossProfit.Mul(in.IncomeTaxRate).Round(2)
	}
	netProfit := grossProfit.Sub(incomeTax)

	margin := decimal.Zero
	revenue := in.SalePriceIncVat.Mul(qty)
	if revenue.Sign() > 0 {
		margin = netProfit.Div(revenue).Mul(hundred).Round(2)
	}
	roi := decimal.Zero
	if totalCostIncVat.Sign() > 0 {
		roi = netProfit.Div(totalCostIncVat).Mul(hundred).Round(2)
	}

	result := Result{
		SalePriceIncVat: in.SalePriceIncVat.Round(2),
		SalePriceExVat:  salePriceExVat,
		Quantity:        in.Quantity,
		Costs:           costs,
		TotalCostExVat:  totalCostExVat,
		GrossProfit:     grossProfit,
		IncomeTax:       incomeTax,
		NetProfit:       netProfit,
		Margin:          margin,
		ROI:             roi,
		VatCalculation:  buildLedger(in, costs, qty),
	}

	if in.TargetMargin.Sign() > 0 {
		result.SuggestedSalePrice = suggestedPrice(in)
	}

	return result, nil
}

func buildLedger(in Input, costs []CostLineItem, qty decimal.Decimal) VatLedger {
	grossAmount := decimal.Zero
	grossTotal := decimal.Zero
	for _, item := range costs {
		grossAmount = grossAmount.Add(item.AmountIncVat)
		grossTotal = grossTotal.Add(item.TotalIncVat)
	}

	incomeItems := make([]VatLineItem, 0, len(costs))
	deducted := decimal.Zero
	deductedTotal := decimal.Zero
	for i, rule := range in.Rules {
		if !rule.Creditable {
			continue
		}
		vat := costs[i].AmountIncVat.Sub(costs[i].AmountExVat)
		incomeItems = append(incomeItems, VatLineItem{
			Name:   rule.Name,
			Kind:   VatDeduction,
			Rate:   rule.Rate,
			Amount: vat,
			Total:  vat.Mul(qty),
		})
		deducted = deducted.Add(vat)
		deductedTotal = deductedTotal.Add(vat.Mul(qty))
	}

	return VatLedger{
		GrossExpense: VatLineItem{
			Name:   "Gider KDV Toplamı",
			Kind:   VatGross,
			Rate:   in.SaleVatRate,
			Amount: grossAmount,
			Total:  grossTotal,
		},
		IncomeItems: incomeItems,
		NetExpense: VatLineItem{
			Name:   "Net KDV Gideri",
			Kind:   VatNet,
			Amount: grossAmount.Sub(deducted),
			Total:  grossTotal.Sub(deductedTotal),
		},
	}
}

func validate(in Input) error {
	if in.SalePriceIncVat.IsNegative() {
		return fmt.Errorf("%w: sale price must not be negative", ErrInvalidInput)
	}
	if in.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if !rateInRange(in.SaleVatRate) {
		return fmt.Errorf("%w: sale VAT rate %s", ErrInvalidRate, in.SaleVatRate)
	}
	if !rateInRange(in.IncomeTaxRate) {
		return fmt.Errorf("%w: income tax rate %s", ErrInvalidRate, in.IncomeTaxRate)
	}

	seen := make(map[string]struct{}, len(in.Rules))
	for _, rule := range in.Rules {
		if rule.Name == "" {
			return fmt.Errorf("%w: rule with empty name", ErrInvalidInput)
		}
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("%w: duplicate rule name %q", ErrInvalidInput, rule.Name)
		}
		seen[rule.Name] = struct{}{}
		if !rateInRange(rule.Rate) {
			return fmt.Errorf("%w: rule %q rate %s", ErrInvalidRate, rule.Name, rule.Rate)
		}
	}
	return nil
}

func rateInRange(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.Cmp(one) <= 0
}

// evalOrder resolves the basis reference graph into a topological evaluation
// order. Cycles and dangling references are detected up front so no line
// item is ever computed for a broken rule set.
func evalOrder(rules []CostRule) ([]int, map[string]int, error) {
	index := make(map[string]int, len(rules))
	for i, rule := range rules {
		index[rule.Name] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(rules))
	order := make([]int, 0, len(rules))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: rule %q", ErrCircularBasis, rules[i].Name)
		}
		state[i] = visiting
		if rules[i].Basis.Kind == BasisPercentOfItem {
			ref, ok := index[rules[i].Basis.Ref]
			if !ok {
				return fmt.Errorf("%w: rule %q references %q", ErrUnknownBasis, rules[i].Name, rules[i].Basis.Ref)
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[i] = done
		order = append(order, i)
		return nil
	}

	for i := range rules {
		if err := visit(i); err != nil {
			return nil, nil, err
		}
	}
	return order, index, nil
}
