// Package cart implements cart pricing and the cart mutation operations.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/book"
)

// Pricing holds the store-wide constants used to value a cart.
type Pricing struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	ShippingCost          decimal.Decimal
}

// DefaultPricing returns 10% tax with free shipping from 50.00 and a flat
// 5.99 shipping charge below it.
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeShippingThreshold: decimal.RequireFromString("50.00"),
		ShippingCost:          decimal.RequireFromString("5.99"),
	}
}

// Validate rejects negative constants.
func (p Pricing) Validate() error {
	switch {
	case p.TaxRate.IsNegative():
		return errors.New("tax rate must not be negative")
	case p.FreeShippingThreshold.IsNegative():
		return errors.New("free shipping threshold must not be negative")
	case p.ShippingCost.IsNegative():
		return errors.New("shipping cost must not be negative")
	}
	return nil
}

// Price values lines against the given books. Lines whose book is missing or
// inactive are skipped and reported in Priced.Unavailable. An empty cart
// prices to all zeros, including shipping.
//
// Price is pure: the same lines and books always produce the same result.
func Price(lines []Line, books map[string]book.Book, p Pricing) Priced {
	out := Priced{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Total:    decimal.Zero,
	}

	for _, l := range lines {
		b, ok := books[l.BookID]
		if !ok || !b.IsActive {
			out.Unavailable = append(out.Unavailable, l.BookID)
			continue
		}
		lineSubtotal := b.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		out.Lines = append(out.Lines, PricedLine{
			BookID:       b.ID,
			Title:        b.Title,
			Quantity:     l.Quantity,
			UnitPrice:    b.Price,
			LineSubtotal: lineSubtotal,
		})
		out.ItemCount += l.Quantity
		out.Subtotal = out.Subtotal.Add(lineSubtotal)
	}

	if out.IsEmpty() {
		return out
	}

	out.Tax = out.Subtotal.Mul(p.TaxRate)
	if out.Subtotal.LessThan(p.FreeShippingThreshold) {
		out.Shipping = p.ShippingCost
	}
	out.Total = out.Subtotal.Add(out.Tax).Add(out.Shipping)
	return out
}
