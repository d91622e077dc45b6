// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"github.com/luxfi/ids"
)

var _ Tx = (*StakeTx)(nil)

// StakeTx opens a position under ConfigID for Beneficiary, funded by the
// caller.
type StakeTx struct {
	ConfigID    uint64      `serialize:"true" json:"configID"`
	Beneficiary ids.ShortID `serialize:"true" json:"beneficiary"`
	Amount      uint64      `serialize:"true" json:"amount"`
}

func (tx *StakeTx) SyntacticVerify() error {
	switch {
	case tx == nil:
		return ErrNilTx
	case tx.Amount == 0:
		return ErrZeroAmount
	}
	return nil
}

func (tx *StakeTx) Visit(visitor Visitor) error {
	return visitor.StakeTx(tx)
}
