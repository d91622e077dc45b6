// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package message

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/ids"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Delegation is the structured message a config manager signs to
// pre-authorize a stake on a user's behalf. NetworkID and LedgerID
// domain-separate the signature so it cannot be replayed against another
// ledger or environment; Nonce lets the same manager authorize otherwise
// identical stakes.
type Delegation struct {
	NetworkID uint32      `serialize:"true" json:"networkID"`
	LedgerID  ids.ID      `serialize:"true" json:"ledgerID"`
	Owner     ids.ShortID `serialize:"true" json:"owner"`
	ConfigID  uint64      `serialize:"true" json:"configID"`
	Amount    uint64      `serialize:"true" json:"amount"`
	StartTime uint64      `serialize:"true" json:"startTime"`
	Nonce     uint64      `serialize:"true" json:"nonce"`
}

// Digest returns the hash the manager signs.
func (d *Delegation) Digest() (ids.ID, error) {
	bytes, err := Codec.Marshal(CodecVersion, d)
	if err != nil {
		return ids.Empty, err
	}
	return hash.ComputeHash256Array(bytes), nil
}

// Sign returns the delegation payload: the manager's recoverable signature
// over the message digest.
func Sign(d *Delegation, key *secp256k1.PrivateKey) ([]byte, error) {
	digest, err := d.Digest()
	if err != nil {
		return nil, err
	}
	return key.SignHash(digest[:])
}

// RecoverSigner returns the identity that signed [d]. Empty or malformed
// payloads fail with [ErrInvalidSignature]; recovery never resolves to the
// zero identity.
func RecoverSigner(d *Delegation, payload []byte) (ids.ShortID, error) {
	if len(payload) != secp256k1.SignatureLen {
		return ids.ShortEmpty, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidSignature, secp256k1.SignatureLen, len(payload))
	}
	digest, err := d.Digest()
	if err != nil {
		return ids.ShortEmpty, err
	}
	pk, err := secp256k1.RecoverPublicKeyFromHash(digest[:], payload)
	if err != nil {
		return ids.ShortEmpty, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return pk.Address(), nil
}

// PayloadDigest is the content digest recorded by the replay guard. It is
// computed over the raw payload bytes, so the same signature can never be
// committed twice regardless of who submits it.
func PayloadDigest(payload []byte) ids.ID {
	return hash.ComputeHash256Array(payload)
}
