package chain

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/concordium/eur2ccd-service/internal/model"
)

func TestSigningPayloadDeterministic(t *testing.T) {
	rate, _ := model.NewRate(big.NewInt(1), big.NewInt(2))
	intent := model.ChainUpdateIntent{
		Rate:           rate,
		Fraction:       model.FractionPair{Numerator: 1, Denominator: 2},
		SequenceNumber: 42,
		EffectiveTime:  0,
		ExpiryTime:     time.Unix(1700000000, 0),
	}

	a := signingPayload(intent)
	b := signingPayload(intent)
	if !bytes.Equal(a, b) {
		t.Fatal("signingPayload must be deterministic for identical intents")
	}

	intent.SequenceNumber = 43
	c := signingPayload(intent)
	if bytes.Equal(a, c) {
		t.Fatal("signingPayload must change when the sequence number changes")
	}
}

func TestSigningPayloadVariesWithFraction(t *testing.T) {
	base := model.ChainUpdateIntent{
		Fraction:       model.FractionPair{Numerator: 1, Denominator: 2},
		SequenceNumber: 1,
		ExpiryTime:     time.Unix(1700000000, 0),
	}
	other := base
	other.Fraction = model.FractionPair{Numerator: 1, Denominator: 3}

	if bytes.Equal(signingPayload(base), signingPayload(other)) {
		t.Fatal("signingPayload must change when the fraction changes")
	}
}
