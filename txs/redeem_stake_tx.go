// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

var _ Tx = (*RedeemStakeTx)(nil)

// RedeemStakeTx consumes the commitment at PositionID, materializes the
// delegated position for the caller, and immediately hands it into the
// unstake flow. ConfigID, StartTime, Nonce and Amount must reproduce the
// message the config's manager signed.
type RedeemStakeTx struct {
	PositionID uint64 `serialize:"true" json:"positionID"`
	ConfigID   uint64 `serialize:"true" json:"configID"`
	StartTime  uint64 `serialize:"true" json:"startTime"`
	Nonce      uint64 `serialize:"true" json:"nonce"`
	Amount     uint64 `serialize:"true" json:"amount"`
}

func (tx *RedeemStakeTx) SyntacticVerify() error {
	switch {
	case tx == nil:
		return ErrNilTx
	case tx.Amount == 0:
		return ErrZeroAmount
	}
	return nil
}

func (tx *RedeemStakeTx) Visit(visitor Visitor) error {
	return visitor.RedeemStakeTx(tx)
}
