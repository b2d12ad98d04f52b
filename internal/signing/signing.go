// Package signing produces domain-separated signatures over attestation
// payloads. The dev signer here derives a deterministic key from a seed;
// production deployments swap in a wallet-backed implementation of Signer.
package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"canopy/internal/attestation"
	dErrors "canopy/pkg/domain-errors"
)

// Domain carries the separation parameters mixed into every digest so a
// signature from one deployment can never be replayed against another.
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           uint64 `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// Signature is the result of signing an attestation payload.
type Signature struct {
	// Digest is the keccak-256 hash that was signed.
	Digest []byte
	// Bytes is the raw signature.
	Bytes []byte
	// Hex is the 0x-prefixed hex encoding of Bytes.
	Hex string
}

// Signer signs attestation payloads under a fixed domain.
type Signer interface {
	// Domain returns the separation parameters this signer signs under.
	Domain() Domain
	// Address returns the signer's address-shaped identity.
	Address() string
	// Sign hashes the payload under the domain and signs the digest.
	Sign(ctx context.Context, payload attestation.Payload) (Signature, error)
}

// DevSigner signs with an ed25519 key derived deterministically from a seed
// string. Suitable for development and tests only.
type DevSigner struct {
	domain  Domain
	priv    ed25519.PrivateKey
	address string
}

var _ Signer = (*DevSigner)(nil)

// NewDevSigner derives a signing key from seed. The same seed always yields
// the same key and address.
func NewDevSigner(seed string, domain Domain) (*DevSigner, error) {
	if seed == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signer seed cannot be empty")
	}
	key := ed25519.NewKeyFromSeed(keccak([]byte(seed)))
	pub := key.Public().(ed25519.PublicKey)
	// Address derivation follows the usual convention: last 20 bytes of the
	// public key hash, hex encoded with a 0x prefix.
	addr := keccak(pub)
	return &DevSigner{
		domain:  domain,
		priv:    key,
		address: "0x" + hex.EncodeToString(addr[12:]),
	}, nil
}

func (s *DevSigner) Domain() Domain {
	return s.domain
}

func (s *DevSigner) Address() string {
	return s.address
}

// Sign computes digest = keccak(0x19 0x01 || domainSeparator || structHash)
// over the payload's fields in declaration order and signs it.
func (s *DevSigner) Sign(ctx context.Context, payload attestation.Payload) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}

	digest := s.digest(payload)
	sig := ed25519.Sign(s.priv, digest)

	return Signature{
		Digest: digest,
		Bytes:  sig,
		Hex:    "0x" + hex.EncodeToString(sig),
	}, nil
}

func (s *DevSigner) digest(p attestation.Payload) []byte {
	structHash := keccak(
		keccak([]byte(p.ExternalProjectID)),
		keccak([]byte(p.ExternalSerial)),
		keccak([]byte(p.ContentID)),
		uint256(p.Amount),
		keccak([]byte(p.Recipient)),
		uint256(p.Nonce),
	)
	separator := keccak(
		keccak([]byte(s.domain.Name)),
		keccak([]byte(s.domain.Version)),
		uint256(s.domain.ChainID),
		keccak([]byte(s.domain.VerifyingContract)),
	)
	return keccak([]byte{0x19, 0x01}, separator, structHash)
}

// keccak hashes the concatenation of parts with legacy Keccak-256.
func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// uint256 encodes v as a 32-byte big-endian word.
func uint256(v uint64) []byte {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], v)
	return buf[:]
}
