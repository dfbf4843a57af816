package verifier

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// DialChains connects to the RPC endpoint of every configured chain.
// The returned close function releases all connections.
func DialChains(ctx context.Context, rpcURLs map[int64]string) (map[int64]ChainClient, func(), error) {
	clients := make(map[int64]ChainClient, len(rpcURLs))
	var opened []*ethclient.Client

	closeAll := func() {
		for _, c := range opened {
			c.Close()
		}
	}

	for chainID, url := range rpcURLs {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
		}
		opened = append(opened, c)
		clients[chainID] = c
	}

	return clients, closeAll, nil
}
