// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

// Allow the ledger to execute custom logic against the underlying operation
// types.
type Visitor interface {
	SetConfigTx(*SetConfigTx) error
	StakeTx(*StakeTx) error
	TopUpTx(*TopUpTx) error
	CommitStakeTx(*CommitStakeTx) error
	RequestUnstakeTx(*RequestUnstakeTx) error
	RedeemStakeTx(*RedeemStakeTx) error
	UnstakeTx(*UnstakeTx) error
}
