package vault

import (
	"crypto/subtle"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrUnauthorized is returned when the presented secret does not match the
// stored ownership commitment.
var ErrUnauthorized = errors.New("vault engine: invalid ownership secret")

// commitmentDomain separates ownership commitments from other keccak usage.
const commitmentDomain = "ZKUSD_OWNER_V1"

// SecretCommitment derives the one-way commitment stored in the vault at
// deploy time. Presenting a preimage of this commitment is the sole
// authorization credential for mutating operations.
func SecretCommitment(secret []byte) [32]byte {
	var out [32]byte
	digest := ethcrypto.Keccak256([]byte(commitmentDomain), secret)
	copy(out[:], digest)
	return out
}

// CheckOwnership recomputes the commitment for the provided secret and
// compares it against the stored one in constant time.
func CheckOwnership(secret []byte, commitment [32]byte) error {
	candidate := SecretCommitment(secret)
	if subtle.ConstantTimeCompare(candidate[:], commitment[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}
