package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the quantity of a single line, including the sum of
// merged adds.
const MaxLineQuantity = 9999

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrQuantityLimit   = errors.New("line quantity limit exceeded")
	ErrLineNotFound    = errors.New("line not found in cart")
)

// CartLine is one product/variation entry of a cart. PriceAtTime is the unit
// price captured when the line was created and is never refreshed.
type CartLine struct {
	ProductRef  string              `json:"productRef"`
	Category    string              `json:"category,omitempty"`
	Quantity    int                 `json:"quantity"`
	PriceAtTime decimal.NullDecimal `json:"priceAtTime"`
	Variation   *Variation          `json:"variation,omitempty"`
	Product     *Product            `json:"product,omitempty"`
	AddedAt     time.Time           `json:"addedAt,omitzero"`
}

// NewLine snapshots the product's current price and category.
func NewLine(p Product, quantity int, v *Variation, now time.Time) CartLine {
	return CartLine{
		ProductRef:  p.Ref,
		Category:    p.Category,
		Quantity:    quantity,
		PriceAtTime: decimal.NewNullDecimal(p.Price),
		Variation:   v,
		AddedAt:     now,
	}
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductRef: l.ProductRef, Category: l.Category, Variation: l.Variation}
}

// UnitPrice falls back to the embedded product's price when no snapshot was
// taken.
func (l CartLine) UnitPrice() decimal.Decimal {
	if l.PriceAtTime.Valid {
		return l.PriceAtTime.Decimal
	}
	if l.Product != nil {
		return l.Product.Price
	}
	return decimal.Zero
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Lines keeps insertion order. Mutating methods return a new slice and leave
// the receiver untouched.
type Lines []CartLine

func (ls Lines) Index(m Matcher, key LineKey) int {
	for i := range ls {
		if m.SameLine(ls[i].Key(), key) {
			return i
		}
	}
	return -1
}

// Add merges line into an existing matching line or appends it. A merge
// that would push the line past MaxLineQuantity leaves ls unchanged.
func (ls Lines) Add(m Matcher, line CartLine) (Lines, error) {
	if line.Quantity < 1 {
		return ls, ErrInvalidQuantity
	}
	if line.Quantity > MaxLineQuantity {
		return ls, ErrQuantityLimit
	}
	i := ls.Index(m, line.Key())
	if i >= 0 && ls[i].Quantity > MaxLineQuantity-line.Quantity {
		return ls, ErrQuantityLimit
	}
	out := ls.clone()
	if i >= 0 {
		out[i].Quantity += line.Quantity
		return out, nil
	}
	return append(out, line), nil
}

// SetQuantity rewrites the quantity of the matching line. A quantity of zero
// or less removes it.
func (ls Lines) SetQuantity(m Matcher, key LineKey, quantity int) (Lines, error) {
	if quantity <= 0 {
		return ls.Remove(m, key)
	}
	if quantity > MaxLineQuantity {
		return ls, ErrQuantityLimit
	}
	i := ls.Index(m, key)
	if i < 0 {
		return ls, ErrLineNotFound
	}
	out := ls.clone()
	out[i].Quantity = quantity
	return out, nil
}

// Remove drops the line matching key and keeps every other variation of the
// same product.
func (ls Lines) Remove(m Matcher, key LineKey) (Lines, error) {
	i := ls.Index(m, key)
	if i < 0 {
		return ls, ErrLineNotFound
	}
	out := make(Lines, 0, len(ls)-1)
	out = append(out, ls[:i]...)
	return append(out, ls[i+1:]...), nil
}

// RemoveProduct drops every line of the product regardless of variation.
func (ls Lines) RemoveProduct(ref string) (Lines, error) {
	out := make(Lines, 0, len(ls))
	for _, l := range ls {
		if l.ProductRef != ref {
			out = append(out, l)
		}
	}
	if len(out) == len(ls) {
		return ls, ErrLineNotFound
	}
	return out, nil
}

func (ls Lines) Count() int {
	n := 0
	for _, l := range ls {
		n += l.Quantity
	}
	return n
}

func (ls Lines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (ls Lines) clone() Lines {
	out := make(Lines, len(ls))
	copy(out, ls)
	return out
}
