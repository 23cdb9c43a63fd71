// Package policy decides which settlement methods a tenant may use for a
// subscription purchase, based on whether the tenant already holds a
// subscription.
package policy

// SettlementMethod is the mechanism by which a tenant pays
type SettlementMethod string

const (
	// MethodGatewayPrepaid pays immediately through the hosted gateway checkout
	MethodGatewayPrepaid SettlementMethod = "prepaid"
	// MethodCashOnDelivery settles in cash when the devices are delivered
	MethodCashOnDelivery SettlementMethod = "cod"
	// MethodDirectTransfer settles by manual bank/UPI transfer, reconciled out of band
	MethodDirectTransfer SettlementMethod = "direct"
)

// Valid reports whether the method is a known settlement method
func (m SettlementMethod) Valid() bool {
	switch m {
	case MethodGatewayPrepaid, MethodCashOnDelivery, MethodDirectTransfer:
		return true
	}
	return false
}

// SubscriptionState is the result of the existing-subscription lookup. A
// failed lookup is StateUnknown, never StateNew: collapsing an error into
// "new tenant" would offer renewal-restricted tenants first-time options.
type SubscriptionState int

const (
	// StateUnknown means the lookup failed or has not run
	StateUnknown SubscriptionState = iota
	// StateNew means the tenant holds no subscription
	StateNew
	// StateRenewal means the tenant already holds a subscription
	StateRenewal
)

func (s SubscriptionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRenewal:
		return "renewal"
	default:
		return "unknown"
	}
}

// TenantContext carries the billing identity of one tenant for the duration
// of a single orchestration run. It is immutable once the run begins.
type TenantContext struct {
	TenantID          string
	TenantName        string
	AdminEmail        string
	TaxRegistrationID string // optional GSTIN
	State             SubscriptionState
}

// AvailableMethods returns the settlement methods offered to the tenant.
// Renewals are restricted to direct transfer; new tenants get all three.
// An unknown subscription state yields no methods at all, which blocks the
// flow until the lookup resolves.
func AvailableMethods(ctx TenantContext) []SettlementMethod {
	switch ctx.State {
	case StateRenewal:
		return []SettlementMethod{MethodDirectTransfer}
	case StateNew:
		return []SettlementMethod{MethodGatewayPrepaid, MethodCashOnDelivery, MethodDirectTransfer}
	default:
		return nil
	}
}

// DefaultMethod returns the pre-selected method for the tenant, and false
// when the subscription state is unknown.
func DefaultMethod(ctx TenantContext) (SettlementMethod, bool) {
	switch ctx.State {
	case StateRenewal:
		return MethodDirectTransfer, true
	case StateNew:
		return MethodGatewayPrepaid, true
	default:
		return "", false
	}
}

// Allows reports whether the tenant may settle with the given method
func Allows(ctx TenantContext, method SettlementMethod) bool {
	for _, m := range AvailableMethods(ctx) {
		if m == method {
			return true
		}
	}
	return false
}
