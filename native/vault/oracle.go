package vault

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"zkusd/crypto"
)

// PriceAttestationDomainV1 defines the domain separator signed into every
// oracle price attestation.
const PriceAttestationDomainV1 = "ZKUSD_ORACLE_V1"

var (
	// ErrOracleSignature rejects attestations that fail signature recovery or
	// recover to the wrong signer.
	ErrOracleSignature = errors.New("vault oracle: invalid attestation signature")
	// ErrOracleStale rejects attestations whose height differs from the
	// current chain height by any amount, past or future.
	ErrOracleStale = errors.New("vault oracle: attestation height does not match current height")
	// ErrOraclePrice rejects zero prices before they can reach the health
	// factor arithmetic.
	ErrOraclePrice = errors.New("vault oracle: price must be positive")
)

// PriceAttestation is the signed price quote supplied with every
// price-dependent vault operation. It is consumed per call and never
// persisted.
type PriceAttestation struct {
	// Price is the collateral/USD rate scaled by Precision.
	Price uint64
	// BlockHeight is the chain height the price was attested at. An
	// attestation is only valid for operations included at exactly this
	// height.
	BlockHeight uint64
	// Signature is a 65-byte recoverable secp256k1 signature over the
	// canonical message digest.
	Signature []byte
}

// CanonicalMessage renders the canonical string covered by the signature.
func (p *PriceAttestation) CanonicalMessage() string {
	builder := strings.Builder{}
	builder.WriteString(PriceAttestationDomainV1)
	builder.WriteString("|price=")
	builder.WriteString(strconv.FormatUint(p.Price, 10))
	builder.WriteString("|height=")
	builder.WriteString(strconv.FormatUint(p.BlockHeight, 10))
	return builder.String()
}

// Hash computes the keccak256 digest of the canonical message.
func (p *PriceAttestation) Hash() []byte {
	return ethcrypto.Keccak256([]byte(p.CanonicalMessage()))
}

// SignAttestation produces a signed attestation for the given price and
// height. Production feeds are signed off-process by the oracle operator; this
// helper backs the attester tool and tests.
func SignAttestation(key *crypto.PrivateKey, price, height uint64) (*PriceAttestation, error) {
	if key == nil {
		return nil, fmt.Errorf("vault oracle: signing key required")
	}
	att := &PriceAttestation{Price: price, BlockHeight: height}
	sig, err := ethcrypto.Sign(att.Hash(), key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("vault oracle: sign attestation: %w", err)
	}
	att.Signature = sig
	return att, nil
}

// Verifier validates attestation authenticity and freshness against the fixed
// oracle signer.
type Verifier struct {
	signer crypto.Address
}

// NewVerifier constructs a verifier bound to the protocol oracle address.
func NewVerifier(signer crypto.Address) *Verifier {
	return &Verifier{signer: signer}
}

// Verify checks the attestation signature against the oracle key and enforces
// the strict freshness rule: the attested height must equal the current chain
// height exactly. Any mismatch, past or future, is rejected.
func (v *Verifier) Verify(att *PriceAttestation, currentHeight uint64) error {
	if v == nil || v.signer.IsZero() {
		return fmt.Errorf("vault oracle: verifier not configured")
	}
	if att == nil {
		return ErrOracleSignature
	}
	if att.Price == 0 {
		return ErrOraclePrice
	}
	if len(att.Signature) != 65 {
		return ErrOracleSignature
	}
	pubKey, err := ethcrypto.SigToPub(att.Hash(), att.Signature)
	if err != nil {
		return ErrOracleSignature
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if recovered != ethcommon.BytesToAddress(v.signer.Bytes()) {
		return ErrOracleSignature
	}
	if att.BlockHeight != currentHeight {
		return ErrOracleStale
	}
	return nil
}
