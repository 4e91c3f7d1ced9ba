package security

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T, keyIndex uint16) *Signer {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := NewSigner(keyIndex, crypto.FromECDSA(priv))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func TestSignerSignProducesVerifiableSignature(t *testing.T) {
	s := newTestSigner(t, 3)
	payload := []byte("candidate chain update")

	sig, err := s.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	hash := crypto.Keccak256Hash(payload)
	recovered, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		t.Fatalf("recover public key: %v", err)
	}
	if string(crypto.FromECDSAPub(recovered)) != string(s.PublicKeyBytes()) {
		t.Fatal("recovered public key does not match signer's public key")
	}
}

// The authorized index ThresholdSign uses comes from a signer's
// position in the chain's level-2 key registry, not from whatever
// KeyIndex its key file declared — here both signers carry stale
// indices pointing the wrong way, and the registry position is what
// actually decides who is authorized.
func TestThresholdSignOnlyUsesAuthorizedKeys(t *testing.T) {
	filler := newTestSigner(t, 99)
	authorized := newTestSigner(t, 99)   // stale index, true registry position is 1
	unauthorized := newTestSigner(t, 99) // stale index, true registry position is 2

	level2Keys := [][]byte{filler.PublicKeyBytes(), authorized.PublicKeyBytes(), unauthorized.PublicKeyBytes()}

	sigs, err := ThresholdSign([]*Signer{authorized, unauthorized}, level2Keys, map[uint16]bool{1: true}, 1, []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected exactly one signature, got %d", len(sigs))
	}
	if _, ok := sigs[1]; !ok {
		t.Fatal("expected signature keyed by the signer's registry position, not its declared KeyIndex")
	}
}

// A held key the chain's level-2 registry does not recognize at all
// must be skipped, not treated as an error.
func TestThresholdSignSkipsUnregisteredKey(t *testing.T) {
	registered := newTestSigner(t, 0)
	unregistered := newTestSigner(t, 0)

	level2Keys := [][]byte{registered.PublicKeyBytes()}

	sigs, err := ThresholdSign([]*Signer{registered, unregistered}, level2Keys, map[uint16]bool{0: true}, 1, []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected exactly one signature from the registered key, got %d", len(sigs))
	}
}

func TestThresholdSignFailsBelowThreshold(t *testing.T) {
	s := newTestSigner(t, 5)
	level2Keys := [][]byte{s.PublicKeyBytes()}

	_, err := ThresholdSign([]*Signer{s}, level2Keys, map[uint16]bool{0: true}, 2, []byte("payload"))
	if err == nil {
		t.Fatal("expected error when held authorized signatures fall below threshold")
	}
}
