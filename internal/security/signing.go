// Package security provides the threshold governance-key signing the
// chain submitter uses to authorize an update transaction, adapted
// from the project's original data-integrity service: the same
// ECDSA-over-Keccak256 signing primitive, repurposed from
// tamper-proofing an HTTP payload to authorizing a chain update.
package security

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs a chain-update payload hash with one governance key.
// KeyIndex is the index declared in the key file the signer was loaded
// from; it is informational only — ThresholdSign never trusts it, and
// instead derives the signer's real index by matching its public key
// against the chain's own level-2 key registry, exactly as the
// original implementation's get_signer does.
type Signer struct {
	KeyIndex   uint16
	privateKey *ecdsa.PrivateKey
}

// NewSigner parses a raw ECDSA private key (as loaded by
// internal/keys) into a Signer for the given governance key index.
func NewSigner(keyIndex uint16, rawPrivateKey []byte) (*Signer, error) {
	priv, err := crypto.ToECDSA(rawPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse governance private key for index %d: %w", keyIndex, err)
	}
	return &Signer{KeyIndex: keyIndex, privateKey: priv}, nil
}

// Sign hashes payload with Keccak256 and produces an Ethereum-style
// recoverable ECDSA signature over it.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	hash := crypto.Keccak256Hash(payload)
	sig, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign payload with key index %d: %w", s.KeyIndex, err)
	}
	return sig, nil
}

// PublicKeyBytes returns the uncompressed public key, matched against
// the chain's level-2 key registry to resolve this signer's real
// UpdateKeysIndex.
func (s *Signer) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(&s.privateKey.PublicKey)
}

// resolveIndex finds a signer's position in the chain's ordered
// level-2 key registry by comparing public keys, mirroring
// get_signer's `update_keys.iter().position(|public| public.public ==
// kp.public.into())`. A held key the chain does not recognize at all
// resolves to (0, false).
func resolveIndex(pub []byte, level2Keys [][]byte) (uint16, bool) {
	for i, k := range level2Keys {
		if bytes.Equal(pub, k) {
			return uint16(i), true
		}
	}
	return 0, false
}

// ThresholdSign produces signatures from every held signer whose
// public key both (a) appears in the chain's level-2 key registry and
// (b) resolves to an index present in authorizedIndices — spec.md
// 4.4 step 6's "submits all keys it holds that are authorized". A held
// key absent from the registry, or present but not authorized for
// this parameter, is silently skipped rather than failing the whole
// call; the call only fails if too few authorized signatures remain.
func ThresholdSign(signers []*Signer, level2Keys [][]byte, authorizedIndices map[uint16]bool, threshold int, payload []byte) (map[uint16][]byte, error) {
	sigs := make(map[uint16][]byte)
	for _, s := range signers {
		idx, ok := resolveIndex(s.PublicKeyBytes(), level2Keys)
		if !ok || !authorizedIndices[idx] {
			continue
		}
		sig, err := s.Sign(payload)
		if err != nil {
			return nil, err
		}
		sigs[idx] = sig
	}
	if len(sigs) < threshold {
		return nil, fmt.Errorf("held %d authorized signatures, need at least %d", len(sigs), threshold)
	}
	return sigs, nil
}
