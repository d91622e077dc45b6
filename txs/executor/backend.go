// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/stakevault/bank"
	"github.com/luxfi/stakevault/config"
	"github.com/luxfi/stakevault/reward"
	"github.com/luxfi/stakevault/utils/timer/mockable"
)

// Authority is the access-control collaborator consulted when a config is
// created.
type Authority interface {
	HasRole(identity ids.ShortID, role ids.ID) bool
}

type Backend struct {
	Ctx     *config.Context
	Clk     *mockable.Clock
	Bank    bank.Bank
	Auth    Authority
	Rewards reward.Calculator
	Log     log.Logger
}
