// Package reconcile nets the VAT a seller collected on sales against the VAT
// paid across marketplace invoices, cost of goods sold and discretionary
// expenses, producing a single payable-or-refundable figure for a calendar
// month plus the itemized breakdown the dashboard renders.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esnafdesk/esnafdesk/internal/vatrates"
)

// Month identifies one calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// Contains reports whether t falls within the month, by calendar date.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// RateBucket is a per-rate slice of the sales VAT summary.
type RateBucket struct {
	VatRate     decimal.Decimal `json:"vatRate"`
	SalesAmount decimal.Decimal `json:"salesAmount"`
	VatAmount   decimal.Decimal `json:"vatAmount"`
	ItemCount   int64           `json:"itemCount"`
}

// SalesVatSummary is the month's pre-aggregated sales side: what the seller
// collected from customers.
type SalesVatSummary struct {
	TotalSalesAmount decimal.Decimal `json:"totalSalesAmount"`
	TotalVatAmount   decimal.Decimal `json:"totalVatAmount"`
	ItemsSold        int64           `json:"itemsSold"`
	ByRate           []RateBucket    `json:"byRate,omitempty"`
}

// CogsVatSummary carries the VAT embedded in the purchase cost of the units
// actually sold in the month, pre-filtered by the caller.
type CogsVatSummary struct {
	TotalCostIncVat    decimal.Decimal `json:"totalCostIncVat"`
	TotalCostVatAmount decimal.Decimal `json:"totalCostVatAmount"`
	ItemsSold          int64           `json:"itemsSold"`
	ItemsWithoutCost   int64           `json:"itemsWithoutCost"`
}

// InvoiceTypeAggregate is one marketplace invoice category rollup.
// TotalAmount is VAT-inclusive; VatRate is optional and display-only.
type InvoiceTypeAggregate struct {
	TypeCode       string           `json:"invoiceTypeCode"`
	TypeName       string           `json:"invoiceType"`
	Category       string           `json:"invoiceCategory,omitempty"`
	InvoiceCount   int64            `json:"invoiceCount"`
	TotalAmount    decimal.Decimal  `json:"totalAmount"`
	TotalVatAmount decimal.Decimal  `json:"totalVatAmount"`
	VatRate        *decimal.Decimal `json:"vatRate,omitempty"`
}

// ExpenseRecord is one discretionary expense. Amount excludes VAT; VatRate
// and VatAmount are nil when VAT was not tracked for the record.
type ExpenseRecord struct {
	ID           string           `json:"id"`
	Date         time.Time        `json:"date"`
	CategoryName string           `json:"categoryName"`
	Description  string           `json:"description,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	VatRate      *decimal.Decimal `json:"vatRate,omitempty"`
	VatAmount    *decimal.Decimal `json:"vatAmount,omitempty"`
}

// InvoiceLine is a filtered invoice aggregate annotated with the rate shown
// in the breakdown table. DisplayRate is the stored rate when present,
// otherwise snapped from the amounts; it never feeds the netting arithmetic.
type InvoiceLine struct {
	InvoiceTypeAggregate
	DisplayRate decimal.Decimal `json:"displayRate"`
}

// ExpenseLine is a filtered expense annotated with its VAT-inclusive total.
type ExpenseLine struct {
	ExpenseRecord
	GrossTotal decimal.Decimal `json:"grossTotal"`
}

// Summary is the month's reconciled VAT position. NetVat >= 0 means the
// seller owes the tax authority; a negative value is a carry-forward credit.
type Summary struct {
	Month             Month           `json:"month"`
	SalesVatCollected decimal.Decimal `json:"salesVatCollected"`
	InvoiceVatPaid    decimal.Decimal `json:"invoiceVatPaid"`
	CogsVatPaid       decimal.Decimal `json:"cogsVatPaid"`
	ExpenseVatPaid    decimal.Decimal `json:"expenseVatPaid"`
	TotalVatPaid      decimal.Decimal `json:"totalVatPaid"`
	NetVat            decimal.Decimal `json:"netVat"`
	Payable           bool            `json:"payable"`
	InvoiceLines      []InvoiceLine   `json:"invoiceLines"`
	Expenses          []ExpenseLine   `json:"expenses"`
}

// Reconcile nets VAT collected against VAT paid for one month. It never
// fails: records that don't qualify are filtered out before any summation
// and simply contribute zero, so one bad record cannot block the month.
// Summation is plain decimal addition, so the result does not depend on the
// iteration order of the input slices.
func Reconcile(
	month Month,
	salesVat SalesVatSummary,
	invoices []InvoiceTypeAggregate,
	cogsVat CogsVatSummary,
	expenses []ExpenseRecord,
	rates vatrates.Table,
) Summary {
	invoiceLines := make([]InvoiceLine, 0, len(invoices))
	invoiceVatPaid := decimal.Zero
	for _, inv := range invoices {
		if inv.TotalVatAmount.Sign() <= 0 {
			continue
		}
		line := InvoiceLine{InvoiceTypeAggregate: inv}
		if inv.VatRate != nil {
			line.DisplayRate = *inv.VatRate
		} else {
			line.DisplayRate = rates.Infer(inv.TotalAmount, inv.TotalVatAmount)
		}
		invoiceLines = append(invoiceLines, line)
		invoiceVatPaid = invoiceVatPaid.Add(inv.TotalVatAmount)
	}

	expenseLines := make([]ExpenseLine, 0, len(expenses))
	expenseVatPaid := decimal.Zero
	for _, exp := range expenses {
		if !month.Contains(exp.Date) {
			continue
		}
		if exp.VatRate == nil || exp.VatRate.Sign() <= 0 {
			continue
		}
		vat := decimal.Zero
		if exp.VatAmount != nil {
			vat = *exp.VatAmount
		}
		expenseLines = append(expenseLines, ExpenseLine{
			ExpenseRecord: exp,
			GrossTotal:    exp.Amount.Add(vat),
		})
		expenseVatPaid = expenseVatPaid.Add(vat)
	}
	sort.SliceStable(expenseLines, func(i, j int) bool {
		return expenseLines[i].GrossTotal.Cmp(expenseLines[j].GrossTotal) > 0
	})

	salesVatCollected := salesVat.TotalVatAmount
	cogsVatPaid := cogsVat.TotalCostVatAmount
	totalVatPaid := invoiceVatPaid.Add(cogsVatPaid).Add(expenseVatPaid)
	netVat := salesVatCollected.Sub(totalVatPaid)

	return Summary{
		Month:             month,
		SalesVatCollected: salesVatCollected,
		InvoiceVatPaid:    invoiceVatPaid,
		CogsVatPaid:       cogsVatPaid,
		ExpenseVatPaid:    expenseVatPaid,
		TotalVatPaid:      totalVatPaid,
		NetVat:            netVat,
		Payable:           !netVat.IsNegative(),
		InvoiceLines:      invoiceLines,
		Expenses:          expenseLines,
	}
}
