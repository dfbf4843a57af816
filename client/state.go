package client

// State is a step of the wallet sign-in sequence
type State int

const (
	Idle State = iota
	CheckingExistingSession
	FetchingNonce
	AwaitingSignature
	Verifying
	CompletingSignup
	Authenticated
	// Unauthenticated is retryable: the address guard has been cleared
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingExistingSession:
		return "checking_existing_session"
	case FetchingNonce:
		return "fetching_nonce"
	case AwaitingSignature:
		return "awaiting_signature"
	case Verifying:
		return "verifying"
	case CompletingSignup:
		return "completing_signup"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}
