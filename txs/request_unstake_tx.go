// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

var _ Tx = (*RequestUnstakeTx)(nil)

// RequestUnstakeTx starts the withdrawal of a position. If its config has no
// cooldown the withdrawal finalizes immediately; otherwise a pending request
// is recorded.
type RequestUnstakeTx struct {
	PositionID uint64 `serialize:"true" json:"positionID"`
}

func (tx *RequestUnstakeTx) SyntacticVerify() error {
	if tx == nil {
		return ErrNilTx
	}
	return nil
}

func (tx *RequestUnstakeTx) Visit(visitor Visitor) error {
	return visitor.RequestUnstakeTx(tx)
}
