package chain

import (
	"encoding/binary"
	"math/big"

	"github.com/concordium/eur2ccd-service/internal/model"
)

// ratInt converts a uint64 into the big.Int the model.NewRate
// constructor expects.
func ratInt(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// signingPayload produces the deterministic byte sequence the
// governance keys sign over: sequence number, effective time, expiry
// time and the reduced fraction, in a fixed binary layout so that every
// signer over the same intent produces a signature over identical
// bytes.
func signingPayload(intent model.ChainUpdateIntent) []byte {
	buf := make([]byte, 0, 40)
	buf = binary.BigEndian.AppendUint64(buf, intent.SequenceNumber)
	buf = binary.BigEndian.AppendUint64(buf, intent.EffectiveTime)
	buf = binary.BigEndian.AppendUint64(buf, uint64(intent.ExpiryTime.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, intent.Fraction.Numerator)
	buf = binary.BigEndian.AppendUint64(buf, intent.Fraction.Denominator)
	return buf
}
