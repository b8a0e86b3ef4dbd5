package domain

import "github.com/dejobratic/checkout/internal/money"

// RuleContext carries the cart facts a promotion rule may inspect.
type RuleContext struct {
	Subtotal   money.Money
	Categories map[string]struct{}
	Custom     map[string]any
}

// Rule is an eligibility predicate over a cart. The set of rules is closed;
// the unexported marker keeps external packages from adding variants.
type Rule interface {
	Eligible(ctx RuleContext) bool
	isRule()
}

// MinCartAmount is eligible when the running subtotal reaches a threshold.
type MinCartAmount struct {
	Threshold money.Money
}

func (r MinCartAmount) Eligible(ctx RuleContext) bool {
	if ctx.Subtotal.Currency() != r.Threshold.Currency() {
		return false
	}
	return !ctx.Subtotal.LessThan(r.Threshold)
}

func (MinCartAmount) isRule() {}

// CategoryContains is eligible when the cart holds at least one item of
// the given category.
type CategoryContains struct {
	Category string
}

func (r CategoryContains) Eligible(ctx RuleContext) bool {
	_, ok := ctx.Categories[r.Category]
	return ok
}

func (CategoryContains) isRule() {}

// And is eligible when every child rule is; it stops at the first false.
type And struct {
	Rules []Rule
}

func (r And) Eligible(ctx RuleContext) bool {
	for _, rule := range r.Rules {
		if !rule.Eligible(ctx) {
			return false
		}
	}
	return true
}

func (And) isRule() {}

// Or is eligible when any child rule is; it stops at the first true.
type Or struct {
	Rules []Rule
}

func (r Or) Eligible(ctx RuleContext) bool {
	for _, rule := range r.Rules {
		if rule.Eligible(ctx) {
			return true
		}
	}
	return false
}

func (Or) isRule() {}

// Not inverts a rule.
type Not struct {
	Rule Rule
}

func (r Not) Eligible(ctx RuleContext) bool {
	return !r.Rule.Eligible(ctx)
}

func (Not) isRule() {}

// Promotion binds a client-facing discount code to the rule that gates it
// and the discount it grants.
type Promotion struct {
	Code        string
	Description string
	Rule        Rule
	Discount    Discount
}
