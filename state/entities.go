// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/ids"
)

// Config is the policy governing a class of positions. A Config with a zero
// Owner does not exist; every gate in the executor treats it as inactive.
type Config struct {
	// Owner is the authority that created the config. Only it may update the
	// config, and it never changes after creation.
	Owner ids.ShortID `serialize:"true" json:"owner"`
	// Manager may authorize delegated stakes by signing commitments.
	Manager ids.ShortID `serialize:"true" json:"manager"`
	// AssetID identifies the single asset custodied under this config.
	AssetID ids.ID `serialize:"true" json:"assetID"`
	// Custodian is the holder of record for all funds staked under this
	// config.
	Custodian ids.ShortID `serialize:"true" json:"custodian"`
	// Rate is the yield per year in millionths (reward.RateDenominator).
	Rate uint64 `serialize:"true" json:"rate"`
	// Duration is the maturity window in seconds. 0 means unbounded accrual
	// and immediate maturity.
	Duration uint64 `serialize:"true" json:"duration"`
	// Cooldown is the post-maturity wait in seconds before funds release.
	// 0 means unstaking finalizes immediately.
	Cooldown uint64 `serialize:"true" json:"cooldown"`
	// MinAggregate and MaxAggregate bound the per-owner aggregate stake.
	// Both bounds are exclusive: the aggregate must land strictly between
	// them.
	MinAggregate uint64 `serialize:"true" json:"minAggregate"`
	MaxAggregate uint64 `serialize:"true" json:"maxAggregate"`

	Active bool `serialize:"true" json:"active"`
	TopUp  bool `serialize:"true" json:"topUp"`
	Public bool `serialize:"true" json:"public"`
}

// Exists reports whether the config has been created. The empty owner is the
// non-existence marker, so a created config always has a nonzero owner.
func (c Config) Exists() bool {
	return c.Owner != ids.ShortEmpty
}

// Position is a single stake record. Principal and accrued yield are netted
// into Value; LastAccrued is the only accrual memo.
type Position struct {
	Owner    ids.ShortID `serialize:"true" json:"owner"`
	ConfigID uint64      `serialize:"true" json:"configID"`
	// Value is the current principal plus accrued yield.
	Value uint64 `serialize:"true" json:"value"`
	// LastAccrued is the unix time Value was last recomputed.
	LastAccrued uint64 `serialize:"true" json:"lastAccrued"`
	// StartTime anchors maturity. Top-ups reset it.
	StartTime uint64 `serialize:"true" json:"startTime"`
}

// Commitment is a pending signed delegation, stored under the position id it
// will materialize as. The payload is opaque until redeemed.
type Commitment struct {
	Payload []byte `serialize:"true" json:"payload"`
}

// UnstakeRequest is a withdrawal waiting out a cooldown. It holds the
// position snapshot taken (and accrued) at request time.
type UnstakeRequest struct {
	Position    Position `serialize:"true" json:"position"`
	RequestTime uint64   `serialize:"true" json:"requestTime"`
}

// AggregateKey identifies a per-(config, owner) running stake total.
type AggregateKey struct {
	ConfigID uint64
	Owner    ids.ShortID
}
