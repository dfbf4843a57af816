package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Account is an application identity that owns wallet links
type Account struct {
	ID        string
	Username  string // Empty until assigned or backfilled
	Email     string
	CreatedAt time.Time
}

// WalletLink binds one wallet address on one chain to an account.
// (Address, ChainID) is unique across all accounts.
type WalletLink struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Address   string    `json:"walletAddress"`
	ChainID   int64     `json:"chainId"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is the public identity returned to clients
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
	ChainID       int64  `json:"chainId"`
}

// ActivityAction names an account event recorded in the activity log
type ActivityAction string

const (
	ActionSignin          ActivityAction = "signin"
	ActionSignup          ActivityAction = "signup"
	ActionLink            ActivityAction = "link"
	ActionSignout         ActivityAction = "signout"
	ActionWalletUnlinked  ActivityAction = "wallet_unlinked"
	ActionUsernameChanged ActivityAction = "username_changed"
	ActionTransferIn      ActivityAction = "transfer_in"
	ActionTransferOut     ActivityAction = "transfer_out"
	ActionNFTBalance      ActivityAction = "nft_balance"
	ActionApproval        ActivityAction = "approval"
)

// ActivityLogEntry is an append-only record of an account event
type ActivityLogEntry struct {
	ID        string         `json:"id"`
	AccountID string         `json:"accountId"`
	Action    ActivityAction `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NormalizeAddress validates a hex wallet address and returns it lowercased
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// ShortAddress renders 0x1234…abcd
func ShortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// AuthEvent is broadcast to other instances after an account event
type AuthEvent struct {
	Kind      ActivityAction `json:"kind"`
	AccountID string         `json:"account_id"`
	Address   string         `json:"address,omitempty"`
	ChainID   int64          `json:"chain_id,omitempty"`
	TokenID   string         `json:"token_id,omitempty"`
	At        time.Time      `json:"at"`
}
