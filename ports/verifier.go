package ports

import "context"

// SignatureVerifier checks that a sign-in message was signed by a wallet.
// A mismatch is reported as false; malformed input is reported as an error.
type SignatureVerifier interface {
	Verify(ctx context.Context, claimedAddress, rawMessage, signature string, chainID int64) (bool, error)
}
