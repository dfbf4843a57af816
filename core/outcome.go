package core

import "fmt"

// Outcome is the wire tag of a Resolution
type Outcome string

const (
	OutcomeSignin      Outcome = "signin"
	OutcomeSignup      Outcome = "signup"
	OutcomeLink        Outcome = "link"
	OutcomeNeedsSignup Outcome = "needs_signup"
)

// Resolution is the result of mapping a verified wallet to an account.
// The set of variants is closed: Signin, Signup, Link and NeedsSignup.
type Resolution interface {
	Outcome() Outcome
	resolution()
}

// Signin means the wallet was already linked to Account
type Signin struct {
	Account Account
	Wallet  WalletLink
}

// Signup means a new Account was created for the wallet
type Signup struct {
	Account Account
	Wallet  WalletLink
}

// Link means the wallet was linked to the already authenticated Account
type Link struct {
	Account Account
	Wallet  WalletLink
}

// NeedsSignup means the wallet is verified but account creation is deferred
type NeedsSignup struct {
	Address string
	ChainID int64
}

func (Signin) Outcome() Outcome      { return OutcomeSignin }
func (Signup) Outcome() Outcome      { return OutcomeSignup }
func (Link) Outcome() Outcome        { return OutcomeLink }
func (NeedsSignup) Outcome() Outcome { return OutcomeNeedsSignup }

func (Signin) resolution()      {}
func (Signup) resolution()      {}
func (Link) resolution()        {}
func (NeedsSignup) resolution() {}

// UnknownResolution is called from the default branch of a type switch over
// Resolution. Reaching it means a variant was added without updating a consumer.
func UnknownResolution(r Resolution) {
	panic(fmt.Sprintf("core: unhandled resolution %T", r))
}
