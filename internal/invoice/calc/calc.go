// Package calc holds the pure invoice calculation core. Both functions are
// synchronous, read only their inputs and are safe to call concurrently.
package calc

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/dojohq/dojobill/pkg/money"
	"github.com/shopspring/decimal"
)

var (
	oneHundred = decimal.NewFromInt(100)
)

// LineItemInput is one line item draft plus the tax-rate snapshot it is
// computed against. The snapshot must be fetched once per invoice operation
// so all lines see the same rates.
type LineItemInput struct {
	Quantity        int64
	UnitPrice       money.Money
	TaxRateIDs      []snowflake.ID
	DiscountPercent decimal.Decimal // 0-100
	Rates           []taxdomain.TaxRate
}

// TaxLine is one tax rate's contribution to a line item, captured with the
// rate's identity for snapshotting.
type TaxLine struct {
	TaxRateID   snowflake.ID
	Name        string
	Rate        decimal.Decimal
	Description *string
	Amount      money.Money
}

// LineItemCalculations are the derived amounts for one line item.
// Invariant: FinalAmount == LineTotal - DiscountAmount + TaxAmount, each
// value rounded exactly once from the exact decimal computation.
type LineItemCalculations struct {
	LineTotal      money.Money
	DiscountAmount money.Money
	TaxAmount      money.Money
	FinalAmount    money.Money
	TaxLines       []TaxLine
}

// InvoiceCalculations are invoice-level sums over already-final line items.
// Invariant: TotalAmount == Subtotal + TaxAmount - DiscountAmount.
type InvoiceCalculations struct {
	Subtotal       money.Money
	TaxAmount      money.Money
	DiscountAmount money.Money
	TotalAmount    money.Money
}

// LineItem computes one line's totals. Order matters:
//
//  1. line total = unit price x quantity
//  2. discount = line total x discount%/100
//  3. discounted subtotal = line total - discount
//  4. each tax rate applies to the DISCOUNTED subtotal
//  5. tax amount = sum over ALL applicable rates
//  6. final = discounted subtotal + tax amount
//
// All intermediates stay exact decimals; each returned Money value is
// rounded once at the end. An id in TaxRateIDs that is absent from Rates
// fails the whole computation: silently skipping it would understate tax.
func LineItem(in LineItemInput) (LineItemCalculations, error) {
	if in.Quantity < 1 {
		return LineItemCalculations{}, invoicedomain.ErrInvalidQuantity
	}
	if err := in.UnitPrice.Validate(); err != nil {
		return LineItemCalculations{}, err
	}
	if in.UnitPrice.IsNegative() {
		return LineItemCalculations{}, invoicedomain.ErrInvalidUnitPrice
	}
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(oneHundred) {
		return LineItemCalculations{}, invoicedomain.ErrInvalidDiscount
	}

	currency := in.UnitPrice.Currency

	lineTotal := in.UnitPrice.Decimal().Mul(decimal.NewFromInt(in.Quantity))
	discount := lineTotal.Mul(in.DiscountPercent).Div(oneHundred)
	discounted := lineTotal.Sub(discount)

	byID := make(map[snowflake.ID]taxdomain.TaxRate, len(in.Rates))
	for _, rate := range in.Rates {
		byID[rate.ID] = rate
	}

	// TaxRateIDs is an order-insensitive set; duplicates apply once.
	seen := make(map[snowflake.ID]struct{}, len(in.TaxRateIDs))
	taxTotal := decimal.Zero
	var taxLines []TaxLine
	for _, id := range in.TaxRateIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		rate, ok := byID[id]
		if !ok {
			return LineItemCalculations{}, fmt.Errorf("tax rate %s: %w", id, taxdomain.ErrUnknownTaxRate)
		}

		contribution := discounted.Mul(rate.Rate)
		taxTotal = taxTotal.Add(contribution)
		taxLines = append(taxLines, TaxLine{
			TaxRateID:   rate.ID,
			Name:        rate.Name,
			Rate:        rate.Rate,
			Description: rate.Description,
			Amount:      money.FromDecimal(contribution, currency),
		})
	}

	final := discounted.Add(taxTotal)

	return LineItemCalculations{
		LineTotal:      money.FromDecimal(lineTotal, currency),
		DiscountAmount: money.FromDecimal(discount, currency),
		TaxAmount:      money.FromDecimal(taxTotal, currency),
		FinalAmount:    money.FromDecimal(final, currency),
		TaxLines:       taxLines,
	}, nil
}

// InvoiceTotals sums already-computed line items into invoice-level totals.
// It is a pure reduction: per-line tax and discount are final and are never
// recomputed here. An empty line set yields all zeros.
func InvoiceTotals(items []invoicedomain.InvoiceLineItem, currency string) InvoiceCalculations {
	var subtotal, tax, discount int64
	for _, item := range items {
		subtotal += item.LineTotal
		tax += item.TaxAmount
		discount += item.DiscountAmount
	}
	return InvoiceCalculations{
		Subtotal:       money.New(subtotal, currency),
		TaxAmount:      money.New(tax, currency),
		DiscountAmount: money.New(discount, currency),
		TotalAmount:    money.New(subtotal+tax-discount, currency),
	}
}
