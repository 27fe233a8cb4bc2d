// Package rebalance computes share-level trades that move a holding towards
// target weights. It works on an in-memory snapshot and never touches storage.
package rebalance

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/tropicaldog17/finledger/internal/errors"
)

// DefaultCashSymbol names the cash position inside an inventory
const DefaultCashSymbol = "_USD"

// Plan maps a symbol to a signed whole-share delta. Positive buys, negative sells.
type Plan map[string]int64

// Symbols returns the plan symbols in lexical order
func (p Plan) Symbols() []string {
	return slices.Sorted(maps.Keys(p))
}

// Dividend is a per-share cash distribution paid at a point in time
type Dividend struct {
	PaidAt   time.Time
	PerShare decimal.Decimal
}

// Option configures a Rebalancer
type Option func(*Rebalancer)

// WithCashSymbol sets the symbol under which cash is held
func WithCashSymbol(symbol string) Option {
	return func(r *Rebalancer) { r.cashSymbol = symbol }
}

// WithCashReserve holds a fixed cash amount out of the investable capital
func WithCashReserve(amount decimal.Decimal) Option {
	return func(r *Rebalancer) { r.cashReserve = amount }
}

// Rebalancer holds an inventory, a price snapshot and normalized target weights.
// Cash always counts at unit price.
type Rebalancer struct {
	inventory   map[string]decimal.Decimal
	prices      map[string]decimal.Decimal
	targets     map[string]decimal.Decimal
	cashSymbol  string
	cashReserve decimal.Decimal
}

// New copies its inputs and normalizes targets so they sum to one.
func New(inventory, prices, targets map[string]decimal.Decimal, opts ...Option) (*Rebalancer, error) {
	r := &Rebalancer{
		inventory:  maps.Clone(inventory),
		prices:     maps.Clone(prices),
		cashSymbol: DefaultCashSymbol,
	}
	if r.inventory == nil {
		r.inventory = make(map[string]decimal.Decimal)
	}
	if r.prices == nil {
		r.prices = make(map[string]decimal.Decimal)
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.cashReserve.IsNegative() {
		return nil, &apperrors.ErrValidation{Field: "cash_reserve", Message: "must be non-negative"}
	}
	for symbol, p := range r.prices {
		if p.IsNegative() {
			return nil, &apperrors.ErrValidation{Field: "prices", Message: fmt.Sprintf("negative price for %s", symbol)}
		}
	}

	total := decimal.Zero
	for symbol, w := range targets {
		if w.IsNegative() {
			return nil, &apperrors.ErrValidation{Field: "targets", Message: fmt.Sprintf("negative weight for %s", symbol)}
		}
		total = total.Add(w)
	}
	if !total.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "targets", Message: "weights must sum to a positive value"}
	}
	r.targets = make(map[string]decimal.Decimal, len(targets))
	for symbol, w := range targets {
		r.targets[symbol] = w.Div(total)
	}
	return r, nil
}

// Clone returns an independent copy: applying a plan to it leaves r untouched.
func (r *Rebalancer) Clone() *Rebalancer {
	c := *r
	c.inventory = maps.Clone(r.inventory)
	c.prices = maps.Clone(r.prices)
	c.targets = maps.Clone(r.targets)
	return &c
}

// CashSymbol returns the symbol cash is held under
func (r *Rebalancer) CashSymbol() string {
	return r.cashSymbol
}

// Inventory returns a copy of the current holdings
func (r *Rebalancer) Inventory() map[string]decimal.Decimal {
	return maps.Clone(r.inventory)
}

// Cash returns the cash position
func (r *Rebalancer) Cash() decimal.Decimal {
	return r.inventory[r.cashSymbol]
}

// TargetWeights returns a copy of the normalized targets
func (r *Rebalancer) TargetWeights() map[string]decimal.Decimal {
	return maps.Clone(r.targets)
}

func (r *Rebalancer) price(symbol string) (decimal.Decimal, bool) {
	if symbol == r.cashSymbol {
		return decimal.NewFromInt(1), true
	}
	p, ok := r.prices[symbol]
	if !ok || p.IsZero() {
		return decimal.Zero, false
	}
	return p, true
}

func priceUnavailable(symbol string) error {
	return fmt.Errorf("%s: %w", symbol, apperrors.ErrPriceUnavailable)
}

// AssetValues returns quantity × price for every held symbol
func (r *Rebalancer) AssetValues() (map[string]decimal.Decimal, error) {
	values := make(map[string]decimal.Decimal, len(r.inventory))
	for symbol, q := range r.inventory {
		if q.IsZero() {
			values[symbol] = decimal.Zero
			continue
		}
		p, ok := r.price(symbol)
		if !ok {
			return nil, priceUnavailable(symbol)
		}
		values[symbol] = q.Mul(p)
	}
	return values, nil
}

// NetAssetValue is the sum of all asset values minus the cash reserve
func (r *Rebalancer) NetAssetValue() (decimal.Decimal, error) {
	values, err := r.AssetValues()
	if err != nil {
		return decimal.Zero, err
	}
	nav := decimal.Zero
	for _, v := range values {
		nav = nav.Add(v)
	}
	return nav.Sub(r.cashReserve), nil
}

// CurrentWeights returns value / NAV for symbols with a nonzero value
func (r *Rebalancer) CurrentWeights() (map[string]decimal.Decimal, error) {
	values, err := r.AssetValues()
	if err != nil {
		return nil, err
	}
	nav, err := r.NetAssetValue()
	if err != nil {
		return nil, err
	}

	weights := make(map[string]decimal.Decimal, len(values))
	if !nav.IsPositive() {
		return weights, nil
	}
	for symbol, v := range values {
		if v.IsZero() {
			continue
		}
		weights[symbol] = v.Div(nav)
	}
	return weights, nil
}

// CalcDiff returns target − current weight over every symbol that is held or targeted
func (r *Rebalancer) CalcDiff() (map[string]decimal.Decimal, error) {
	current, err := r.CurrentWeights()
	if err != nil {
		return nil, err
	}
	diff := make(map[string]decimal.Decimal, len(current)+len(r.targets))
	for symbol, w := range current {
		diff[symbol] = r.targets[symbol].Sub(w)
	}
	for symbol, w := range r.targets {
		if _, ok := current[symbol]; !ok {
			diff[symbol] = w
		}
	}
	return diff, nil
}

// NeedsRebalancing reports whether any non-cash weight drifted further than threshold from its target
func (r *Rebalancer) NeedsRebalancing(threshold decimal.Decimal) (bool, error) {
	diff, err := r.CalcDiff()
	if err != nil {
		return false, err
	}
	for symbol, d := range diff {
		if symbol == r.cashSymbol {
			continue
		}
		if d.Abs().GreaterThan(threshold) {
			return true, nil
		}
	}
	return false, nil
}

// MakeRebalancingPlan converts weight differences into whole-share deltas,
// truncated toward zero so a plan never overshoots its target. Cash is not traded.
func (r *Rebalancer) MakeRebalancingPlan() (Plan, error) {
	diff, err := r.CalcDiff()
	if err != nil {
		return nil, err
	}
	nav, err := r.NetAssetValue()
	if err != nil {
		return nil, err
	}
	values, err := r.AssetValues()
	if err != nil {
		return nil, err
	}

	plan := make(Plan, len(diff))
	for symbol, d := range diff {
		if symbol == r.cashSymbol {
			continue
		}
		// target×NAV − value equals diff×NAV without the round trip through a ratio
		amount := r.targets[symbol].Mul(nav).Sub(values[symbol])
		if d.IsZero() || amount.IsZero() {
			plan[symbol] = 0
			continue
		}
		p, ok := r.price(symbol)
		if !ok {
			return nil, priceUnavailable(symbol)
		}
		plan[symbol] = amount.Div(p).Truncate(0).IntPart()
	}
	return plan, nil
}

// ApplyPlan trades the plan against cash at the snapshot prices. If the
// resulting cash would be negative, ErrInsufficientCash is returned and the
// inventory is left unchanged.
func (r *Rebalancer) ApplyPlan(plan Plan) error {
	next := maps.Clone(r.inventory)
	cash := next[r.cashSymbol]

	for _, symbol := range plan.Symbols() {
		delta := plan[symbol]
		if symbol == r.cashSymbol {
			return &apperrors.ErrValidation{Field: "plan", Message: "cash cannot be traded"}
		}
		if delta == 0 {
			continue
		}
		p, ok := r.price(symbol)
		if !ok {
			return priceUnavailable(symbol)
		}
		q := decimal.NewFromInt(delta)
		next[symbol] = next[symbol].Add(q)
		cash = cash.Sub(p.Mul(q))
		if next[symbol].IsZero() {
			delete(next, symbol)
		}
	}

	if cash.IsNegative() {
		return fmt.Errorf("cash would be %s: %w", cash.String(), apperrors.ErrInsufficientCash)
	}
	next[r.cashSymbol] = cash
	r.inventory = next
	return nil
}

// CollectDividends credits cash with every dividend paid within [from, to]
// on the current holdings and returns the amount credited.
func (r *Rebalancer) CollectDividends(from, to time.Time, dividends map[string][]Dividend) (decimal.Decimal, error) {
	total := decimal.Zero
	for symbol, q := range r.inventory {
		if symbol == r.cashSymbol {
			continue
		}
		for _, d := range dividends[symbol] {
			if d.PaidAt.Before(from) || d.PaidAt.After(to) {
				continue
			}
			if q.IsNegative() {
				return decimal.Zero, &apperrors.ErrValidation{Field: "inventory", Message: fmt.Sprintf("short position in %s", symbol)}
			}
			total = total.Add(d.PerShare.Mul(q))
		}
	}
	r.inventory[r.cashSymbol] = r.inventory[r.cashSymbol].Add(total)
	return total, nil
}
