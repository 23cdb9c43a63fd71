package pricing

import (
	"fmt"
	"sync/atomic"
)

// Plan identifies a subscription plan tier
type Plan string

const (
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Valid reports whether the plan is a known catalog entry
func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

// BillingCycle identifies how often a subscription renews
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether the cycle is a known billing cycle
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

// Paise is a monetary amount in 1/100 INR
type Paise int64

// Rupees returns the amount as rupees for wire and display use
func (p Paise) Rupees() float64 {
	return float64(p) / 100
}

// FromRupees converts a whole-rupee amount to paise
func FromRupees(r int64) Paise {
	return Paise(r * 100)
}

// TaxRateBasisPoints is the GST rate applied to every base amount (18%)
const TaxRateBasisPoints = 1800

// Breakdown is the tax-inclusive decomposition of a plan price
type Breakdown struct {
	Base  Paise `json:"base_amount"`
	Tax   Paise `json:"tax_amount"`
	Total Paise `json:"total_amount"`
}

// taxOf applies the GST rate with half-up rounding to the paise
func taxOf(base Paise) Paise {
	return (base*TaxRateBasisPoints + 5000) / 10000
}

// Calculator derives amount breakdowns from the active catalog. It is safe
// for concurrent use; Reload swaps the catalog atomically so an in-flight
// Breakdown sees either the old or the new catalog, never a mix.
type Calculator struct {
	catalog atomic.Pointer[Catalog]
}

// NewCalculator creates a calculator backed by the given catalog
func NewCalculator(catalog *Catalog) *Calculator {
	c := &Calculator{}
	c.catalog.Store(catalog)
	return c
}

// Reload replaces the active catalog
func (c *Calculator) Reload(catalog *Catalog) {
	c.catalog.Store(catalog)
}

// Breakdown computes the base, GST, and total amounts for a plan and cycle.
// It is re-evaluated on every call; nothing is cached across selections.
func (c *Calculator) Breakdown(plan Plan, cycle BillingCycle) (Breakdown, error) {
	if !plan.Valid() {
		return Breakdown{}, fmt.Errorf("unknown plan: %q", plan)
	}
	if !cycle.Valid() {
		return Breakdown{}, fmt.Errorf("unknown billing cycle: %q", cycle)
	}

	base, err := c.catalog.Load().Price(plan, cycle)
	if err != nil {
		return Breakdown{}, err
	}

	tax := taxOf(base)
	return Breakdown{
		Base:  base,
		Tax:   tax,
		Total: base + tax,
	}, nil
}
