// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

var _ Tx = (*TopUpTx)(nil)

// TopUpTx adds funds to an open position. The position accrues first, then
// the maturity clock restarts on the combined value.
type TopUpTx struct {
	PositionID uint64 `serialize:"true" json:"positionID"`
	Amount     uint64 `serialize:"true" json:"amount"`
}

func (tx *TopUpTx) SyntacticVerify() error {
	switch {
	case tx == nil:
		return ErrNilTx
	case tx.Amount == 0:
		return ErrZeroAmount
	}
	return nil
}

func (tx *TopUpTx) Visit(visitor Visitor) error {
	return visitor.TopUpTx(tx)
}
