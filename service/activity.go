package service

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/layer-3/walletauth/core"
	"github.com/shopspring/decimal"
)

const (
	DefaultActivityLimit  = 10
	FallbackActivityLimit = 20
	MaxActivityLimit      = 50

	// MaxActivityPage keeps the row offset well inside an int32
	MaxActivityPage = 100000

	defaultTokenDecimals = 18
	amountPrecision      = 6
)

// ActivityView is an activity log entry with a human readable summary
type ActivityView struct {
	core.ActivityLogEntry
	Summary string `json:"summary"`
}

// Summarize renders a one-line description of an activity entry
func Summarize(entry core.ActivityLogEntry) string {
	meta := entry.Metadata

	switch entry.Action {
	case core.ActionTransferIn:
		return "Received " + FormatAmount(meta)
	case core.ActionTransferOut:
		return "Sent " + FormatAmount(meta)
	case core.ActionNFTBalance:
		name := metaString(meta, "collectionName")
		if name == "" {
			name = metaString(meta, "contract")
		}
		return strings.TrimSpace("NFT balance updated for " + name)
	case core.ActionApproval:
		return strings.TrimSpace("Approval set for " + metaString(meta, "spender"))
	case core.ActionSignin:
		return "Signed in with " + walletOf(meta)
	case core.ActionSignup:
		return "Created account with " + walletOf(meta)
	case core.ActionLink:
		return "Linked wallet " + walletOf(meta)
	case core.ActionWalletUnlinked:
		return "Removed wallet " + walletOf(meta)
	case core.ActionUsernameChanged:
		return "Changed username to " + metaString(meta, "username")
	case core.ActionSignout:
		return "Signed out"
	}
	return string(entry.Action)
}

// FormatAmount renders a base-unit token amount scaled by its decimals,
// followed by the symbol when present
func FormatAmount(meta map[string]any) string {
	decimals := int32(defaultTokenDecimals)
	if d, ok := meta["decimals"].(float64); ok {
		decimals = int32(d)
	} else if d, ok := meta["decimals"].(int); ok {
		decimals = int32(d)
	}

	amount := decimal.Zero
	if raw := metaString(meta, "amount"); raw != "" {
		if v, ok := new(big.Int).SetString(raw, 10); ok {
			amount = decimal.NewFromBigInt(v, -decimals)
		}
	}

	return strings.TrimSpace(amount.Round(amountPrecision).String() + " " + metaString(meta, "symbol"))
}

// ActivityPage normalizes paging input: page is clamped to [1, MaxActivityPage],
// a missing limit becomes DefaultActivityLimit and an out of range one
// FallbackActivityLimit
func ActivityPage(page, limit int, limitSet bool) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > MaxActivityPage:
		page = MaxActivityPage
	}
	switch {
	case !limitSet:
		limit = DefaultActivityLimit
	case limit < 1 || limit > MaxActivityLimit:
		limit = FallbackActivityLimit
	}
	return page, limit
}

func walletOf(meta map[string]any) string {
	wallet := metaString(meta, "walletAddress")
	if wallet == "" {
		wallet = metaString(meta, "wallet")
	}
	return core.ShortAddress(wallet)
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return fmt.Sprint(v)
	}
}
