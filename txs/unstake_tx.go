// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

var _ Tx = (*UnstakeTx)(nil)

// UnstakeTx finalizes a pending withdrawal once its cooldown has passed,
// releasing the snapshot value from the custodian to the owner.
type UnstakeTx struct {
	PositionID uint64 `serialize:"true" json:"positionID"`
}

func (tx *UnstakeTx) SyntacticVerify() error {
	if tx == nil {
		return ErrNilTx
	}
	return nil
}

func (tx *UnstakeTx) Visit(visitor Visitor) error {
	return visitor.UnstakeTx(tx)
}
