package rest

import (
	"github.com/gagliardetto/solana-go"

	"github.com/walletdigest/wdapi/internal/apperr"
)

// ValidateWallet enforces spec.md §4.10's wallet validation: a base58
// string of length [32,44] that also decodes to a valid public key. Shared
// with the SSE transport, which validates the same path parameter.
func ValidateWallet(wallet string) (solana.PublicKey, error) {
	if len(wallet) < 32 || len(wallet) > 44 {
		return solana.PublicKey{}, apperr.Validation("wallet address must be 32-44 characters, got %d", len(wallet))
	}
	pub, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return solana.PublicKey{}, apperr.Validation("wallet address is not a valid base58 public key: %v", err)
	}
	return pub, nil
}
