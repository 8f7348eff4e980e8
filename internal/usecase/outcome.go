package usecase

import "github.com/arklim/identity-token-service/internal/core/domain"

// Outcome is the transient result of an authentication attempt. Its facets
// are deliberately independent booleans rather than mutually exclusive
// variants: an account can be locked out and two-factor-enabled at once,
// and the caller must surface the challenge before the lockout.
type Outcome struct {
	// Account is set only when the primary credential verified. It does not
	// by itself mean tokens may be minted; check Disposition.
	Account *domain.Account

	RequiresTwoFactor bool
	RequiresExternal  bool
	IsLockedOut       bool
}

// Disposition classifies an Outcome for response handling.
type Disposition int

const (
	// DispositionInvalid means credentials could not be verified. Callers
	// must not distinguish unknown account from wrong secret.
	DispositionInvalid Disposition = iota
	// DispositionChallenge means the primary credential verified but a
	// second factor or external account linking is still pending.
	DispositionChallenge
	// DispositionLockedOut means the credential verified with no pending
	// challenge, but the account is administratively locked.
	DispositionLockedOut
	// DispositionResolved means the account is fully authenticated and a
	// token pair may be minted.
	DispositionResolved
)

// Disposition orders challenge ahead of lockout: lockout is only disclosed
// once every pending step has been completed, and never before the primary
// credential has been proven correct.
func (o *Outcome) Disposition() Disposition {
	switch {
	case o == nil:
		return DispositionInvalid
	case o.RequiresTwoFactor || o.RequiresExternal:
		return DispositionChallenge
	case o.IsLockedOut:
		return DispositionLockedOut
	case o.Account != nil:
		return DispositionResolved
	default:
		return DispositionInvalid
	}
}
