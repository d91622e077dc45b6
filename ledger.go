// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stakevault implements a value-custody staking ledger: named
// configurations, continuously compounding positions, delegated stake
// commitments redeemed by signature, and a cooldown-gated unstake lifecycle.
package stakevault

import (
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/pubsub"

	"github.com/luxfi/stakevault/bank"
	"github.com/luxfi/stakevault/config"
	"github.com/luxfi/stakevault/metrics"
	"github.com/luxfi/stakevault/reward"
	"github.com/luxfi/stakevault/state"
	"github.com/luxfi/stakevault/txs"
	"github.com/luxfi/stakevault/txs/executor"
	"github.com/luxfi/stakevault/utils/timer/mockable"
)

// Ledger is the single entry point for all operations. Every state-changing
// call runs as one serialized, atomic transaction: it observes a consistent
// snapshot and either commits wholly or leaves no trace.
type Ledger struct {
	// lock serializes all ledger-mutating operations. The bank collaborator
	// must not call back into the ledger while a transfer is in flight.
	lock sync.Mutex

	baseState *state.State
	backend   *executor.Backend
	metrics   *metrics.Metrics
	events    *pubsub.Server
	log       log.Logger
	clk       *mockable.Clock
}

// New builds a ledger over [db], using [bnk] to move funds and [auth] to
// gate config creation. State already present in [db] is loaded.
func New(
	ctx *config.Context,
	db database.Database,
	bnk bank.Bank,
	auth executor.Authority,
	logger log.Logger,
	registerer metric.Registerer,
) (*Ledger, error) {
	baseState, err := state.New(db)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(registerer)
	if err != nil {
		return nil, err
	}

	clk := &mockable.Clock{}
	return &Ledger{
		baseState: baseState,
		backend: &executor.Backend{
			Ctx:     ctx,
			Clk:     clk,
			Bank:    bnk,
			Auth:    auth,
			Rewards: reward.NewCalculator(),
			Log:     logger,
		},
		metrics: m,
		events:  pubsub.New(logger),
		log:     logger,
		clk:     clk,
	}, nil
}

// Clock returns the ledger's clock. Tests fake it; production leaves it
// synced to global time.
func (l *Ledger) Clock() *mockable.Clock {
	return l.clk
}

// Events returns the pubsub server publishing one event per accepted
// operation, filterable by owner address.
func (l *Ledger) Events() *pubsub.Server {
	return l.events
}

// SetConfig creates the config at [configID] (caller must hold the
// authority role) or replaces it (caller must be its owner).
func (l *Ledger) SetConfig(caller ids.ShortID, configID uint64, cfg state.Config) error {
	_, err := l.apply(caller, &txs.SetConfigTx{
		ConfigID: configID,
		Config:   cfg,
	})
	return err
}

// Stake opens a position under [configID] for [beneficiary], funded by
// [caller], and returns the allocated position id.
func (l *Ledger) Stake(caller, beneficiary ids.ShortID, configID, amount uint64) (uint64, error) {
	return l.apply(caller, &txs.StakeTx{
		ConfigID:    configID,
		Beneficiary: beneficiary,
		Amount:      amount,
	})
}

// TopUp adds [amount] to an open position before maturity. The maturity
// clock restarts on the combined value.
func (l *Ledger) TopUp(caller ids.ShortID, positionID, amount uint64) error {
	_, err := l.apply(caller, &txs.TopUpTx{
		PositionID: positionID,
		Amount:     amount,
	})
	return err
}

// CommitStake records a signed delegation payload and returns the position
// id it will materialize as when redeemed.
func (l *Ledger) CommitStake(caller ids.ShortID, payload []byte) (uint64, error) {
	return l.apply(caller, &txs.CommitStakeTx{
		Payload: payload,
	})
}

// RequestUnstake starts withdrawing [positionID]. Without a cooldown the
// funds release immediately; otherwise a pending request is recorded.
func (l *Ledger) RequestUnstake(caller ids.ShortID, positionID uint64) error {
	_, err := l.apply(caller, &txs.RequestUnstakeTx{
		PositionID: positionID,
	})
	return err
}

// RedeemStake consumes the commitment at [positionID], materializes the
// delegated position for [caller], and hands it into the unstake flow. The
// arguments must reproduce the message the config's manager signed.
func (l *Ledger) RedeemStake(caller ids.ShortID, positionID, configID, startTime, nonce, amount uint64) error {
	_, err := l.apply(caller, &txs.RedeemStakeTx{
		PositionID: positionID,
		ConfigID:   configID,
		StartTime:  startTime,
		Nonce:      nonce,
		Amount:     amount,
	})
	return err
}

// Unstake finalizes a pending withdrawal once its cooldown has passed.
func (l *Ledger) Unstake(caller ids.ShortID, positionID uint64) error {
	_, err := l.apply(caller, &txs.UnstakeTx{
		PositionID: positionID,
	})
	return err
}

// GetConfig returns the config at [configID]. A missing id yields the zero
// config.
func (l *Ledger) GetConfig(configID uint64) state.Config {
	return l.baseState.GetConfig(configID)
}

// GetPosition returns the stored position; its value reflects the last
// accrual event, not the current instant.
func (l *Ledger) GetPosition(positionID uint64) (state.Position, error) {
	return l.baseState.GetPosition(positionID)
}

// CurrentValue accrues the position to the current instant, without writing
// anything back.
func (l *Ledger) CurrentValue(positionID uint64) (uint64, error) {
	pos, err := l.baseState.GetPosition(positionID)
	if err != nil {
		return 0, err
	}
	cfg := l.baseState.GetConfig(pos.ConfigID)
	now := l.clk.Unix()
	calc := l.backend.Rewards
	return calc.Value(pos.Value, cfg.Rate, calc.Elapsed(pos.LastAccrued, cfg.Duration, now))
}

// GetAggregate returns [owner]'s running stake total under [configID].
func (l *Ledger) GetAggregate(configID uint64, owner ids.ShortID) uint64 {
	return l.baseState.GetAggregate(state.AggregateKey{
		ConfigID: configID,
		Owner:    owner,
	})
}

// GetCommitment returns the pending commitment at [positionID].
func (l *Ledger) GetCommitment(positionID uint64) (state.Commitment, error) {
	return l.baseState.GetCommitment(positionID)
}

// GetUnstakeRequest returns the pending withdrawal at [positionID].
func (l *Ledger) GetUnstakeRequest(positionID uint64) (state.UnstakeRequest, error) {
	return l.baseState.GetUnstakeRequest(positionID)
}

// NextPositionID returns the id the next stake or commitment will be
// assigned.
func (l *Ledger) NextPositionID() uint64 {
	return l.baseState.NextPositionID()
}

// apply runs one operation: verify and stage against a diff, perform the
// staged transfer, then commit. Order matters: every state mutation is
// staged before the bank is invoked, and nothing is applied if the transfer
// fails.
func (l *Ledger) apply(caller ids.ShortID, tx txs.Tx) (uint64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	diff := state.NewDiff(l.baseState)
	e := &executor.Executor{
		Backend: l.backend,
		State:   diff,
		Caller:  caller,
	}
	if err := tx.Visit(e); err != nil {
		l.log.Debug("operation rejected",
			log.Stringer("caller", caller),
			log.Err(err),
		)
		return 0, err
	}

	if e.Transfer != nil {
		t := e.Transfer
		if err := l.backend.Bank.Transfer(t.AssetID, t.From, t.To, t.Amount); err != nil {
			l.log.Debug("transfer failed",
				log.Stringer("assetID", t.AssetID),
				log.Stringer("from", t.From),
				log.Stringer("to", t.To),
				log.Uint64("amount", t.Amount),
				log.Err(err),
			)
			return 0, err
		}
	}

	diff.Apply(l.baseState)
	if err := l.baseState.Commit(); err != nil {
		return 0, err
	}

	if err := tx.Visit(l.metrics); err != nil {
		return 0, err
	}
	for i := range e.Events {
		event := e.Events[i]
		l.events.Publish(&event)
		l.log.Info("operation accepted",
			log.String("op", event.Op),
			log.Uint64("configID", event.ConfigID),
			log.Uint64("positionID", event.PositionID),
			log.Stringer("owner", event.Owner),
			log.Uint64("amount", event.Amount),
		)
	}
	return e.PositionID, nil
}
