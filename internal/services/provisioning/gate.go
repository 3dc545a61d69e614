package provisioning

import "github.com/benvon/membership-api/internal/models"

// Outcome is the result of checking whether a user may reach gated content.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeSignup    Outcome = "signup"
	OutcomePricing   Outcome = "pricing"
	OutcomeForbidden Outcome = "forbidden"
)

// Decision tells the caller whether to serve pro content or where to send the user instead.
type Decision struct {
	Outcome    Outcome `json:"outcome"`
	RedirectTo string  `json:"redirect_to,omitempty"`
}

// Allowed reports whether the user may proceed.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Gate decides access to pro-only content. It reads membership and status and never
// changes them.
type Gate struct {
	SignupURL  string
	PricingURL string
}

// Decide returns the decision for user; nil means the identity has no record.
func (g Gate) Decide(user *models.User) Decision {
	switch {
	case user == nil:
		return Decision{Outcome: OutcomeSignup, RedirectTo: g.SignupURL}
	case user.Status != models.UserStatusActive:
		return Decision{Outcome: OutcomeForbidden}
	case user.Membership != models.MembershipPro:
		return Decision{Outcome: OutcomePricing, RedirectTo: g.PricingURL}
	default:
		return Decision{Outcome: OutcomeAllowed}
	}
}
