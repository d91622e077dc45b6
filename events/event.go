// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/pubsub"
)

// Operation names carried on published events.
const (
	ConfigCreated    = "config_created"
	ConfigUpdated    = "config_updated"
	Staked           = "staked"
	ToppedUp         = "topped_up"
	Committed        = "committed"
	RequestedUnstake = "requested_unstake"
	Unstaked         = "unstaked"
)

var _ pubsub.Filterer = (*Event)(nil)

// Event records one accepted state-changing operation: its name, the ids it
// touched, and the primary owner and amount involved.
type Event struct {
	Op         string      `json:"op"`
	ConfigID   uint64      `json:"configID"`
	PositionID uint64      `json:"positionID"`
	Owner      ids.ShortID `json:"owner"`
	Amount     uint64      `json:"amount"`
}

// Filter matches subscriptions against the event's owner address, so a
// client can follow just its own positions.
func (e *Event) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	for i, f := range filters {
		resp[i] = f.Check(e.Owner[:])
	}
	return resp, e
}
