// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txs

import (
	"errors"
)

var (
	ErrNilTx      = errors.New("tx is nil")
	ErrZeroAmount = errors.New("amount must be non-zero")
)

// Tx is one ledger operation. Operations carry only their arguments; the
// caller identity is supplied by the executor running them.
type Tx interface {
	// SyntacticVerify returns nil iff the operation is well formed without
	// consulting any state.
	SyntacticVerify() error

	// Visit calls [visitor] with this operation's concrete type.
	Visit(visitor Visitor) error
}
