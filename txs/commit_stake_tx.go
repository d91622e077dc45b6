// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"errors"
)

var (
	_ Tx = (*CommitStakeTx)(nil)

	ErrEmptyPayload = errors.New("payload is empty")
)

// CommitStakeTx stores a signed delegation payload under a freshly allocated
// position id, to be redeemed later by the owner the manager signed for.
type CommitStakeTx struct {
	Payload []byte `serialize:"true" json:"payload"`
}

func (tx *CommitStakeTx) SyntacticVerify() error {
	switch {
	case tx == nil:
		return ErrNilTx
	case len(tx.Payload) == 0:
		return ErrEmptyPayload
	}
	return nil
}

func (tx *CommitStakeTx) Visit(visitor Visitor) error {
	return visitor.CommitStakeTx(tx)
}
