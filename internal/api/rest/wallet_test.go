package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrappedSolMint is a genuine, well-known base58-encoded Solana public key
// (43 characters), used here only to exercise decoding, not for its token
// identity.
const wrappedSolMint = "So11111111111111111111111111111111111111112"

func TestValidateWallet_AcceptsValidPublicKey(t *testing.T) {
	pub, err := ValidateWallet(wrappedSolMint)
	require.NoError(t, err)
	assert.Equal(t, wrappedSolMint, pub.String())
}

func TestValidateWallet_RejectsTooShort(t *testing.T) {
	_, err := ValidateWallet("short")
	require.Error(t, err)
}

func TestValidateWallet_RejectsTooLong(t *testing.T) {
	long := wrappedSolMint + "extra_padding_to_exceed_the_max_length"
	_, err := ValidateWallet(long)
	require.Error(t, err)
}

func TestValidateWallet_RejectsInvalidBase58(t *testing.T) {
	// "0", "O", "I", "l" are excluded from the base58 alphabet.
	_, err := ValidateWallet("0000000000000000000000000000000I")
	require.Error(t, err)
}
