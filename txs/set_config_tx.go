// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"github.com/luxfi/stakevault/state"
)

var _ Tx = (*SetConfigTx)(nil)

// SetConfigTx creates or replaces the config at ConfigID. On creation the
// stored owner is the caller, regardless of the Config's Owner field; on
// update the owner is pinned to the stored one.
type SetConfigTx struct {
	ConfigID uint64       `serialize:"true" json:"configID"`
	Config   state.Config `serialize:"true" json:"config"`
}

func (tx *SetConfigTx) SyntacticVerify() error {
	if tx == nil {
		return ErrNilTx
	}
	return nil
}

func (tx *SetConfigTx) Visit(visitor Visitor) error {
	return visitor.SetConfigTx(tx)
}
