package verifier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const erc1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

// erc1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)"))
var erc1271MagicValue = []byte{0x16, 0x26, 0xba, 0x7e}

// ChainClient is the subset of ethclient.Client needed to validate contract wallets
type ChainClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthVerifier verifies EIP-191 personal signatures over sign-in messages.
// When a chain client is configured for the message's chain, signatures from
// smart-contract accounts are validated through EIP-1271.
type EthVerifier struct {
	clients map[int64]ChainClient
	erc1271 abi.ABI
	now     func() time.Time
	logger  *slog.Logger
}

var _ ports.SignatureVerifier = (*EthVerifier)(nil)

// NewEthVerifier creates a verifier. clients may be nil for EOA-only verification.
func NewEthVerifier(clients map[int64]ChainClient, logger *slog.Logger) *EthVerifier {
	parsed, err := abi.JSON(strings.NewReader(erc1271ABI))
	if err != nil {
		panic(fmt.Sprintf("verifier: invalid ERC-1271 ABI: %v", err))
	}
	if clients == nil {
		clients = make(map[int64]ChainClient)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EthVerifier{
		clients: clients,
		erc1271: parsed,
		now:     time.Now,
		logger:  logger,
	}
}

// Verify checks that signature over rawMessage was produced by claimedAddress on chainID
func (v *EthVerifier) Verify(ctx context.Context, claimedAddress, rawMessage, signature string, chainID int64) (bool, error) {
	msg, err := core.ParseSignInMessage(rawMessage)
	if err != nil {
		return false, err
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) == 0 {
		return false, fmt.Errorf("failed to decode signature: %w", core.ErrMalformedSignature)
	}

	if !common.IsHexAddress(claimedAddress) {
		return false, core.ErrInvalidAddress
	}
	if !strings.EqualFold(msg.Address, claimedAddress) || msg.ChainID != chainID {
		return false, nil
	}
	if !msg.ValidAt(v.now()) {
		return false, nil
	}

	expected := common.HexToAddress(claimedAddress)
	hash := accounts.TextHash([]byte(rawMessage))

	if len(sig) == crypto.SignatureLength {
		recovered, err := RecoverAddress(hash, sig)
		if err == nil && recovered == expected {
			return true, nil
		}
	}

	client, ok := v.clients[chainID]
	if !ok {
		return false, nil
	}

	return v.verifyContractWallet(ctx, client, expected, hash, sig)
}

func (v *EthVerifier) verifyContractWallet(ctx context.Context, client ChainClient, wallet common.Address, hash []byte, sig []byte) (bool, error) {
	code, err := client.CodeAt(ctx, wallet, nil)
	if err != nil {
		v.logger.WarnContext(ctx, "contract wallet code lookup failed", "address", wallet.Hex(), "error", err)
		return false, nil
	}
	if len(code) == 0 {
		return false, nil
	}

	var digest [32]byte
	copy(digest[:], hash)

	data, err := v.erc1271.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature call: %w", err)
	}

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: data}, nil)
	if err != nil {
		// Reverting wallets reject the signature
		v.logger.DebugContext(ctx, "isValidSignature call failed", "address", wallet.Hex(), "error", err)
		return false, nil
	}

	return len(out) >= 4 && bytes.Equal(out[:4], erc1271MagicValue), nil
}

// RecoverAddress recovers the signer of a 65-byte [R || S || V] signature over hash.
// V may be 0/1 or 27/28.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrMalformedSignature)
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
