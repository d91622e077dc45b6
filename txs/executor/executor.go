// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/stakevault/events"
	"github.com/luxfi/stakevault/message"
	"github.com/luxfi/stakevault/state"
	"github.com/luxfi/stakevault/txs"
	safemath "github.com/luxfi/stakevault/utils/math"
)

var (
	_ txs.Visitor = (*Executor)(nil)

	// ErrInactiveOrUnauthorized deliberately merges config-missing,
	// config-disabled, non-public, wrong-caller and feature-flag-off so a
	// probing caller cannot tell which gate rejected it.
	ErrInactiveOrUnauthorized = errors.New("inactive or unauthorized")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrMismatchedOwner        = errors.New("caller is not the owner")
	ErrEnded                  = errors.New("stake has ended")
	ErrNotEnded               = errors.New("stake has not ended")
	ErrCooldownNotPassed      = errors.New("cooldown has not passed")
	ErrStakeTooSmall          = errors.New("aggregate stake at or below minimum")
	ErrStakeTooLarge          = errors.New("aggregate stake at or above maximum")
	ErrSignatureReplayed      = errors.New("signature already committed")
)

// TransferOp is the single value movement an operation performs. The
// executor stages it while building the diff; the ledger invokes the bank
// only once every state mutation is staged, so a conforming bank can never
// observe half-applied state.
type TransferOp struct {
	AssetID ids.ID
	From    ids.ShortID
	To      ids.ShortID
	Amount  uint64
}

// Executor applies one operation, on behalf of Caller, against a staged
// state view.
type Executor struct {
	*Backend
	State  state.Chain
	Caller ids.ShortID

	// PositionID is the id allocated by StakeTx or CommitStakeTx.
	PositionID uint64
	// Transfer is the value movement to perform before the diff is applied,
	// if any.
	Transfer *TransferOp
	// Events are the operation's structured events, published after the
	// diff is applied.
	Events []events.Event
}

func (e *Executor) SetConfigTx(tx *txs.SetConfigTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	stored := e.State.GetConfig(tx.ConfigID)
	cfg := tx.Config
	op := events.ConfigUpdated
	if stored.Exists() {
		if stored.Owner != e.Caller {
			return ErrUnauthorized
		}
		// The creating authority is pinned for the config's lifetime.
		cfg.Owner = stored.Owner
	} else {
		if !e.Auth.HasRole(e.Caller, e.Ctx.AuthorityRole) {
			return ErrUnauthorized
		}
		cfg.Owner = e.Caller
		op = events.ConfigCreated
	}
	if cfg.Custodian == ids.ShortEmpty {
		cfg.Custodian = e.Ctx.LedgerAddress
	}

	e.State.PutConfig(tx.ConfigID, cfg)
	e.emit(events.Event{
		Op:       op,
		ConfigID: tx.ConfigID,
		Owner:    cfg.Owner,
	})
	return nil
}

func (e *Executor) StakeTx(tx *txs.StakeTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	cfg := e.State.GetConfig(tx.ConfigID)
	if !cfg.Active || !cfg.Public {
		return ErrInactiveOrUnauthorized
	}

	key := state.AggregateKey{ConfigID: tx.ConfigID, Owner: tx.Beneficiary}
	aggregate, err := safemath.Add(e.State.GetAggregate(key), tx.Amount)
	if err != nil {
		return err
	}
	if aggregate <= cfg.MinAggregate {
		return ErrStakeTooSmall
	}
	if aggregate >= cfg.MaxAggregate {
		return ErrStakeTooLarge
	}

	now := e.Clk.Unix()
	positionID := e.State.NewPositionID()
	e.State.PutPosition(positionID, state.Position{
		Owner:       tx.Beneficiary,
		ConfigID:    tx.ConfigID,
		Value:       tx.Amount,
		LastAccrued: now,
		StartTime:   now,
	})
	e.State.PutAggregate(key, aggregate)

	e.PositionID = positionID
	e.Transfer = &TransferOp{
		AssetID: cfg.AssetID,
		From:    e.Caller,
		To:      cfg.Custodian,
		Amount:  tx.Amount,
	}
	e.emit(events.Event{
		Op:         events.Staked,
		ConfigID:   tx.ConfigID,
		PositionID: positionID,
		Owner:      tx.Beneficiary,
		Amount:     tx.Amount,
	})
	return nil
}

func (e *Executor) TopUpTx(tx *txs.TopUpTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	// Missing position, wrong caller and disabled top-ups are merged into
	// one signal, like the config gates on staking.
	pos, err := e.State.GetPosition(tx.PositionID)
	if err != nil {
		return ErrInactiveOrUnauthorized
	}
	cfg := e.State.GetConfig(pos.ConfigID)
	if pos.Owner != e.Caller || !cfg.TopUp {
		return ErrInactiveOrUnauthorized
	}

	now := e.Clk.Unix()
	if matured(pos.StartTime, cfg.Duration, now) {
		return ErrEnded
	}

	accrued, err := e.accruedValue(pos, cfg, now)
	if err != nil {
		return err
	}
	newValue, err := safemath.Add(accrued, tx.Amount)
	if err != nil {
		return err
	}

	// The aggregate tracked the stored value; it grows by the accrual gain
	// plus the top-up amount.
	key := state.AggregateKey{ConfigID: pos.ConfigID, Owner: pos.Owner}
	aggregate, err := safemath.Add(e.State.GetAggregate(key), newValue-pos.Value)
	if err != nil {
		return err
	}
	if aggregate >= cfg.MaxAggregate {
		return ErrStakeTooLarge
	}

	// The maturity clock restarts on the combined value. Progress toward
	// maturity on the pre-existing balance is forfeited.
	e.State.PutPosition(tx.PositionID, state.Position{
		Owner:       pos.Owner,
		ConfigID:    pos.ConfigID,
		Value:       newValue,
		LastAccrued: now,
		StartTime:   now,
	})
	e.State.PutAggregate(key, aggregate)

	e.Transfer = &TransferOp{
		AssetID: cfg.AssetID,
		From:    e.Caller,
		To:      cfg.Custodian,
		Amount:  tx.Amount,
	}
	e.emit(events.Event{
		Op:         events.ToppedUp,
		ConfigID:   pos.ConfigID,
		PositionID: tx.PositionID,
		Owner:      pos.Owner,
		Amount:     tx.Amount,
	})
	return nil
}

func (e *Executor) CommitStakeTx(tx *txs.CommitStakeTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	digest := message.PayloadDigest(tx.Payload)
	if e.State.SeenPayload(digest) {
		return ErrSignatureReplayed
	}
	e.State.AddPayload(digest)

	positionID := e.State.NewPositionID()
	e.State.PutCommitment(positionID, state.Commitment{
		Payload: tx.Payload,
	})

	e.PositionID = positionID
	e.emit(events.Event{
		Op:         events.Committed,
		PositionID: positionID,
		Owner:      e.Caller,
	})
	return nil
}

func (e *Executor) RequestUnstakeTx(tx *txs.RequestUnstakeTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	pos, err := e.State.GetPosition(tx.PositionID)
	if err != nil {
		return err
	}
	if pos.Owner != e.Caller {
		return ErrMismatchedOwner
	}
	return e.requestUnstake(tx.PositionID, pos, e.Clk.Unix())
}

func (e *Executor) RedeemStakeTx(tx *txs.RedeemStakeTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	commitment, err := e.State.GetCommitment(tx.PositionID)
	if err != nil {
		return err
	}

	cfg := e.State.GetConfig(tx.ConfigID)
	signer, err := message.RecoverSigner(&message.Delegation{
		NetworkID: e.Ctx.NetworkID,
		LedgerID:  e.Ctx.LedgerID,
		Owner:     e.Caller,
		ConfigID:  tx.ConfigID,
		Amount:    tx.Amount,
		StartTime: tx.StartTime,
		Nonce:     tx.Nonce,
	}, commitment.Payload)
	if err != nil {
		return err
	}
	if signer != cfg.Manager {
		return ErrUnauthorized
	}

	e.State.DeleteCommitment(tx.PositionID)

	// The start time is caller-asserted but trusted: it is bound into the
	// signed message.
	pos := state.Position{
		Owner:       e.Caller,
		ConfigID:    tx.ConfigID,
		Value:       tx.Amount,
		LastAccrued: tx.StartTime,
		StartTime:   tx.StartTime,
	}
	e.State.PutPosition(tx.PositionID, pos)

	key := state.AggregateKey{ConfigID: tx.ConfigID, Owner: e.Caller}
	aggregate, err := safemath.Add(e.State.GetAggregate(key), tx.Amount)
	if err != nil {
		return err
	}
	e.State.PutAggregate(key, aggregate)

	return e.requestUnstake(tx.PositionID, pos, e.Clk.Unix())
}

func (e *Executor) UnstakeTx(tx *txs.UnstakeTx) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}

	request, err := e.State.GetUnstakeRequest(tx.PositionID)
	if err != nil {
		return err
	}
	if request.Position.Owner != e.Caller {
		return ErrMismatchedOwner
	}

	cfg := e.State.GetConfig(request.Position.ConfigID)
	now := e.Clk.Unix()
	release, err := safemath.Add(request.RequestTime, cfg.Cooldown)
	if err != nil {
		return err
	}
	if now < release {
		return ErrCooldownNotPassed
	}

	e.State.DeleteUnstakeRequest(tx.PositionID)
	return e.finalize(tx.PositionID, request.Position, cfg, now)
}

// requestUnstake accrues [pos] to the current instant and moves it out of
// the position arena: straight to finalization when the config has no
// cooldown, into a pending request otherwise.
func (e *Executor) requestUnstake(positionID uint64, pos state.Position, now uint64) error {
	cfg := e.State.GetConfig(pos.ConfigID)

	accrued, err := e.accruedValue(pos, cfg, now)
	if err != nil {
		return err
	}

	// Fold the accrual gain into the aggregate so the later decrement by the
	// snapshot value can never underflow.
	key := state.AggregateKey{ConfigID: pos.ConfigID, Owner: pos.Owner}
	aggregate, err := safemath.Add(e.State.GetAggregate(key), accrued-pos.Value)
	if err != nil {
		return err
	}
	e.State.PutAggregate(key, aggregate)

	pos.Value = accrued
	pos.LastAccrued = now
	e.State.DeletePosition(positionID)

	if cfg.Cooldown == 0 {
		return e.finalize(positionID, pos, cfg, now)
	}

	e.State.PutUnstakeRequest(positionID, state.UnstakeRequest{
		Position:    pos,
		RequestTime: now,
	})
	e.emit(events.Event{
		Op:         events.RequestedUnstake,
		ConfigID:   pos.ConfigID,
		PositionID: positionID,
		Owner:      pos.Owner,
		Amount:     pos.Value,
	})
	return nil
}

// finalize releases [pos]'s value from the custodian to its owner. Maturity
// is re-verified here, at the point of fund release, even on paths where it
// already held when the cooldown began.
func (e *Executor) finalize(positionID uint64, pos state.Position, cfg state.Config, now uint64) error {
	if !matured(pos.StartTime, cfg.Duration, now) {
		return ErrNotEnded
	}

	key := state.AggregateKey{ConfigID: pos.ConfigID, Owner: pos.Owner}
	aggregate, err := safemath.Sub(e.State.GetAggregate(key), pos.Value)
	if err != nil {
		// The aggregate always includes every live and pending position
		// value, so this indicates ledger corruption.
		return fmt.Errorf("aggregate underflow for position %d: %w", positionID, err)
	}
	e.State.PutAggregate(key, aggregate)

	e.Transfer = &TransferOp{
		AssetID: cfg.AssetID,
		From:    cfg.Custodian,
		To:      pos.Owner,
		Amount:  pos.Value,
	}
	e.emit(events.Event{
		Op:         events.Unstaked,
		ConfigID:   pos.ConfigID,
		PositionID: positionID,
		Owner:      pos.Owner,
		Amount:     pos.Value,
	})
	return nil
}

func (e *Executor) accruedValue(pos state.Position, cfg state.Config, now uint64) (uint64, error) {
	elapsed := e.Rewards.Elapsed(pos.LastAccrued, cfg.Duration, now)
	return e.Rewards.Value(pos.Value, cfg.Rate, elapsed)
}

func (e *Executor) emit(event events.Event) {
	e.Events = append(e.Events, event)
}

// matured reports whether the maturity window ending at startTime+duration
// has passed. A sum past the uint64 range is treated as unreachable time.
func matured(startTime, duration, now uint64) bool {
	end, err := safemath.Add(startTime, duration)
	if err != nil {
		return false
	}
	return end <= now
}
