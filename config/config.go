// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"github.com/luxfi/ids"
)

// Context carries the ledger-wide parameters every operation needs. It is
// immutable after construction and injected wherever it is used.
type Context struct {
	// NetworkID and LedgerID domain-separate delegation signatures: a
	// commitment signed for one ledger instance or environment is invalid on
	// any other.
	NetworkID uint32
	LedgerID  ids.ID

	// LedgerAddress is the default custodian for configs that do not
	// designate one.
	LedgerAddress ids.ShortID

	// AuthorityRole is the credential a caller must hold to create configs.
	AuthorityRole ids.ID
}
