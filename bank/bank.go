// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bank abstracts the value-transfer collaborator: the component that
// actually holds balances and moves funds between identities. The ledger
// only ever asks it to move N units of one asset between two holders,
// atomically.
package bank

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/stakevault/utils/math"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")

	_ Bank = (*Memory)(nil)
)

type Bank interface {
	// Transfer moves [amount] units of [assetID] from [from] to [to]. It
	// must be atomic: on error no funds move at all. A Bank must never call
	// back into the ledger.
	Transfer(assetID ids.ID, from, to ids.ShortID, amount uint64) error
}

type account struct {
	assetID ids.ID
	holder  ids.ShortID
}

// Memory is an in-memory Bank for tests and embedders without an external
// settlement layer.
type Memory struct {
	mu       sync.Mutex
	balances map[account]uint64
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[account]uint64),
	}
}

// Mint credits [amount] units of [assetID] to [holder].
func (m *Memory) Mint(assetID ids.ID, holder ids.ShortID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := account{assetID: assetID, holder: holder}
	balance, err := safemath.Add(m.balances[key], amount)
	if err != nil {
		return err
	}
	m.balances[key] = balance
	return nil
}

// Balance returns [holder]'s balance of [assetID].
func (m *Memory) Balance(assetID ids.ID, holder ids.ShortID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account{assetID: assetID, holder: holder}]
}

func (m *Memory) Transfer(assetID ids.ID, from, to ids.ShortID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := account{assetID: assetID, holder: from}
	toKey := account{assetID: assetID, holder: to}

	fromBalance, err := safemath.Sub(m.balances[fromKey], amount)
	if err != nil {
		return ErrInsufficientFunds
	}
	toBalance, err := safemath.Add(m.balances[toKey], amount)
	if err != nil {
		return err
	}

	m.balances[fromKey] = fromBalance
	m.balances[toKey] = toBalance
	return nil
}
