// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/stakevault/bank"
	"github.com/luxfi/stakevault/config"
	"github.com/luxfi/stakevault/events"
	"github.com/luxfi/stakevault/message"
	"github.com/luxfi/stakevault/reward"
	"github.com/luxfi/stakevault/state"
	"github.com/luxfi/stakevault/txs"
	"github.com/luxfi/stakevault/utils/timer/mockable"
)

var testStart = time.Unix(1_700_000_000, 0)

type testAuth struct {
	role    ids.ID
	holders set.Set[ids.ShortID]
}

func (a *testAuth) HasRole(identity ids.ShortID, role ids.ID) bool {
	return role == a.role && a.holders.Contains(identity)
}

type environment struct {
	ctx     *config.Context
	clk     *mockable.Clock
	bank    *bank.Memory
	auth    *testAuth
	state   *state.State
	backend *Backend

	admin      ids.ShortID
	staker     ids.ShortID
	assetID    ids.ID
	custodian  ids.ShortID
	managerKey *secp256k1.PrivateKey
}

func newEnvironment(t *testing.T) *environment {
	require := require.New(t)

	managerKey, err := secp256k1.NewPrivateKey()
	require.NoError(err)

	role := ids.GenerateTestID()
	admin := ids.GenerateTestShortID()
	auth := &testAuth{
		role:    role,
		holders: set.NewSet[ids.ShortID](1),
	}
	auth.holders.Add(admin)

	ctx := &config.Context{
		NetworkID:     5,
		LedgerID:      ids.GenerateTestID(),
		LedgerAddress: ids.GenerateTestShortID(),
		AuthorityRole: role,
	}

	baseState, err := state.New(memdb.New())
	require.NoError(err)

	clk := &mockable.Clock{}
	clk.Set(testStart)

	bnk := bank.NewMemory()
	env := &environment{
		ctx:   ctx,
		clk:   clk,
		bank:  bnk,
		auth:  auth,
		state: baseState,
		backend: &Backend{
			Ctx:     ctx,
			Clk:     clk,
			Bank:    bnk,
			Auth:    auth,
			Rewards: reward.NewCalculator(),
			Log:     log.NoLog{},
		},
		admin:      admin,
		staker:     ids.GenerateTestShortID(),
		assetID:    ids.GenerateTestID(),
		custodian:  ids.GenerateTestShortID(),
		managerKey: managerKey,
	}
	require.NoError(bnk.Mint(env.assetID, env.staker, 1_000_000))
	return env
}

// run executes [tx] the way the ledger does: stage against a diff, perform
// the staged transfer, apply only on full success.
func (env *environment) run(t *testing.T, caller ids.ShortID, tx txs.Tx) (*Executor, error) {
	t.Helper()

	diff := state.NewDiff(env.state)
	e := &Executor{
		Backend: env.backend,
		State:   diff,
		Caller:  caller,
	}
	if err := tx.Visit(e); err != nil {
		return e, err
	}
	if e.Transfer != nil {
		tr := e.Transfer
		if err := env.bank.Transfer(tr.AssetID, tr.From, tr.To, tr.Amount); err != nil {
			return e, err
		}
	}
	diff.Apply(env.state)
	return e, nil
}

func (env *environment) defaultConfig() state.Config {
	return state.Config{
		Manager:      env.managerKey.PublicKey().Address(),
		AssetID:      env.assetID,
		Custodian:    env.custodian,
		Rate:         0,
		Duration:     30,
		Cooldown:     0,
		MinAggregate: 0,
		MaxAggregate: 1_000_000_000,
		Active:       true,
		TopUp:        true,
		Public:       true,
	}
}

func (env *environment) createConfig(t *testing.T, configID uint64, cfg state.Config) {
	t.Helper()
	_, err := env.run(t, env.admin, &txs.SetConfigTx{
		ConfigID: configID,
		Config:   cfg,
	})
	require.NoError(t, err)
}

func (env *environment) advance(d time.Duration) {
	env.clk.Set(env.clk.Time().Add(d))
}

func TestSetConfigCreate(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()

	// Only a role holder may create.
	_, err := env.run(t, env.staker, &txs.SetConfigTx{ConfigID: 1, Config: cfg})
	require.ErrorIs(err, ErrUnauthorized)
	require.False(env.state.GetConfig(1).Exists())

	e, err := env.run(t, env.admin, &txs.SetConfigTx{ConfigID: 1, Config: cfg})
	require.NoError(err)

	stored := env.state.GetConfig(1)
	require.True(stored.Exists())
	require.Equal(env.admin, stored.Owner)

	require.Len(e.Events, 1)
	require.Equal(events.ConfigCreated, e.Events[0].Op)
}

func TestSetConfigCustodianDefaults(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.Custodian = ids.ShortEmpty
	env.createConfig(t, 1, cfg)

	require.Equal(env.ctx.LedgerAddress, env.state.GetConfig(1).Custodian)
}

func TestSetConfigUpdate(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	// Only the stored owner may update, role or not.
	other := ids.GenerateTestShortID()
	env.auth.holders.Add(other)
	updated := env.defaultConfig()
	updated.Active = false
	_, err := env.run(t, other, &txs.SetConfigTx{ConfigID: 1, Config: updated})
	require.ErrorIs(err, ErrUnauthorized)

	// The owner field in the submitted config is ignored on update.
	updated.Owner = other
	e, err := env.run(t, env.admin, &txs.SetConfigTx{ConfigID: 1, Config: updated})
	require.NoError(err)

	stored := env.state.GetConfig(1)
	require.Equal(env.admin, stored.Owner)
	require.False(stored.Active)

	require.Len(e.Events, 1)
	require.Equal(events.ConfigUpdated, e.Events[0].Op)
}

func TestStake(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	e, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)
	require.Equal(uint64(1), e.PositionID)

	now := env.clk.Unix()
	pos, err := env.state.GetPosition(1)
	require.NoError(err)
	require.Equal(state.Position{
		Owner:       env.staker,
		ConfigID:    1,
		Value:       1000,
		LastAccrued: now,
		StartTime:   now,
	}, pos)

	key := state.AggregateKey{ConfigID: 1, Owner: env.staker}
	require.Equal(uint64(1000), env.state.GetAggregate(key))

	// Funds moved caller -> custodian.
	require.Equal(uint64(999_000), env.bank.Balance(env.assetID, env.staker))
	require.Equal(uint64(1000), env.bank.Balance(env.assetID, env.custodian))

	require.Len(e.Events, 1)
	require.Equal(events.Staked, e.Events[0].Op)
	require.Equal(uint64(1000), e.Events[0].Amount)
}

func TestStakeGates(t *testing.T) {
	inactive := func(cfg *state.Config) { cfg.Active = false }
	private := func(cfg *state.Config) { cfg.Public = false }

	tests := []struct {
		name        string
		configID    uint64
		mutate      func(*state.Config)
		amount      uint64
		expectedErr error
	}{
		{
			name:        "nonexistent config",
			configID:    9,
			amount:      1000,
			expectedErr: ErrInactiveOrUnauthorized,
		},
		{
			name:        "inactive config",
			configID:    1,
			mutate:      inactive,
			amount:      1000,
			expectedErr: ErrInactiveOrUnauthorized,
		},
		{
			name:        "private config",
			configID:    1,
			mutate:      private,
			amount:      1000,
			expectedErr: ErrInactiveOrUnauthorized,
		},
		{
			name:        "zero amount",
			configID:    1,
			amount:      0,
			expectedErr: txs.ErrZeroAmount,
		},
		{
			name:     "aggregate at minimum",
			configID: 1,
			mutate: func(cfg *state.Config) {
				cfg.MinAggregate = 1000
			},
			amount:      1000,
			expectedErr: ErrStakeTooSmall,
		},
		{
			name:     "aggregate at maximum",
			configID: 1,
			mutate: func(cfg *state.Config) {
				cfg.MaxAggregate = 1000
			},
			amount:      1000,
			expectedErr: ErrStakeTooLarge,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			env := newEnvironment(t)

			cfg := env.defaultConfig()
			if test.mutate != nil {
				test.mutate(&cfg)
			}
			env.createConfig(t, 1, cfg)

			_, err := env.run(t, env.staker, &txs.StakeTx{
				ConfigID:    test.configID,
				Beneficiary: env.staker,
				Amount:      test.amount,
			})
			require.ErrorIs(err, test.expectedErr)

			// A rejected stake leaves no trace.
			_, err = env.state.GetPosition(1)
			require.ErrorIs(err, database.ErrNotFound)
			require.Zero(env.state.GetAggregate(state.AggregateKey{
				ConfigID: 1,
				Owner:    env.staker,
			}))
			require.Equal(uint64(1_000_000), env.bank.Balance(env.assetID, env.staker))
		})
	}
}

func TestStakeAggregateSpansPositions(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.MaxAggregate = 1500
	env.createConfig(t, 1, cfg)

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	// The cap is on the owner's running total, not the single position.
	_, err = env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      500,
	})
	require.ErrorIs(err, ErrStakeTooLarge)

	_, err = env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      499,
	})
	require.NoError(err)
	require.Equal(uint64(1499), env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
}

// Scenario: open 1000 at a positive rate, top up before maturity. The new
// value is the accrued balance plus the top-up, and the maturity clock
// restarts.
func TestTopUp(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.Rate = reward.RateDenominator // 100% APR
	cfg.Duration = 2 * reward.SecondsPerYear
	env.createConfig(t, 1, cfg)

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	env.advance(reward.SecondsPerYear * time.Second)
	_, err = env.run(t, env.staker, &txs.TopUpTx{PositionID: 1, Amount: 500})
	require.NoError(err)

	pos, err := env.state.GetPosition(1)
	require.NoError(err)

	// 1000 * e^1, floored, plus the 500 top-up.
	accrued, err := env.backend.Rewards.Value(1000, cfg.Rate, reward.SecondsPerYear)
	require.NoError(err)
	require.Equal(accrued+500, pos.Value)
	require.Greater(pos.Value, uint64(3000))

	now := env.clk.Unix()
	require.Equal(now, pos.StartTime)
	require.Equal(now, pos.LastAccrued)

	// The aggregate absorbed the accrual gain and the top-up.
	require.Equal(pos.Value, env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
}

func TestTopUpGates(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	env.createConfig(t, 1, cfg)

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	// Missing position and wrong caller are indistinguishable.
	_, err = env.run(t, env.staker, &txs.TopUpTx{PositionID: 9, Amount: 10})
	require.ErrorIs(err, ErrInactiveOrUnauthorized)
	_, err = env.run(t, ids.GenerateTestShortID(), &txs.TopUpTx{PositionID: 1, Amount: 10})
	require.ErrorIs(err, ErrInactiveOrUnauthorized)

	// So is a config with top-ups disabled.
	cfg.TopUp = false
	_, err = env.run(t, env.admin, &txs.SetConfigTx{ConfigID: 1, Config: cfg})
	require.NoError(err)
	_, err = env.run(t, env.staker, &txs.TopUpTx{PositionID: 1, Amount: 10})
	require.ErrorIs(err, ErrInactiveOrUnauthorized)

	// A matured position is its own, visible, failure.
	cfg.TopUp = true
	_, err = env.run(t, env.admin, &txs.SetConfigTx{ConfigID: 1, Config: cfg})
	require.NoError(err)
	env.advance(31 * time.Second)
	_, err = env.run(t, env.staker, &txs.TopUpTx{PositionID: 1, Amount: 10})
	require.ErrorIs(err, ErrEnded)
}

// Scenario: 1000 at rate 0, duration 30, cooldown 0. After 31 units the
// request pays out exactly 1000 and zeroes the aggregate.
func TestRequestUnstakeImmediate(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	env.advance(31 * time.Second)
	e, err := env.run(t, env.staker, &txs.RequestUnstakeTx{PositionID: 1})
	require.NoError(err)

	_, err = env.state.GetPosition(1)
	require.ErrorIs(err, database.ErrNotFound)
	_, err = env.state.GetUnstakeRequest(1)
	require.ErrorIs(err, database.ErrNotFound)

	require.Zero(env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
	require.Equal(uint64(1_000_000), env.bank.Balance(env.assetID, env.staker))
	require.Zero(env.bank.Balance(env.assetID, env.custodian))

	require.Len(e.Events, 1)
	require.Equal(events.Unstaked, e.Events[0].Op)
	require.Equal(uint64(1000), e.Events[0].Amount)
}

func TestRequestUnstakeBeforeMaturity(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	env.advance(29 * time.Second)
	_, err = env.run(t, env.staker, &txs.RequestUnstakeTx{PositionID: 1})
	require.ErrorIs(err, ErrNotEnded)

	// The failed request changed nothing: the position is still live.
	pos, err := env.state.GetPosition(1)
	require.NoError(err)
	require.Equal(uint64(1000), pos.Value)
	require.Equal(uint64(1000), env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
}

func TestRequestUnstakeAuth(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	_, err := env.run(t, env.staker, &txs.RequestUnstakeTx{PositionID: 1})
	require.ErrorIs(err, database.ErrNotFound)

	_, err = env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	_, err = env.run(t, ids.GenerateTestShortID(), &txs.RequestUnstakeTx{PositionID: 1})
	require.ErrorIs(err, ErrMismatchedOwner)
}

// Scenario: 1000 at rate 0, duration 30, cooldown 7. The request goes
// pending; finalizing early fails; at the release time it pays out exactly
// 1000.
func TestUnstakeCooldown(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.Cooldown = 7
	env.createConfig(t, 1, cfg)

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)

	env.advance(31 * time.Second)
	e, err := env.run(t, env.staker, &txs.RequestUnstakeTx{PositionID: 1})
	require.NoError(err)
	require.Len(e.Events, 1)
	require.Equal(events.RequestedUnstake, e.Events[0].Op)

	// The position moved into a pending request; the aggregate still counts
	// it until the funds release.
	_, err = env.state.GetPosition(1)
	require.ErrorIs(err, database.ErrNotFound)
	request, err := env.state.GetUnstakeRequest(1)
	require.NoError(err)
	require.Equal(uint64(1000), request.Position.Value)
	require.Equal(env.clk.Unix(), request.RequestTime)
	require.Equal(uint64(1000), env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))

	// Before the release time the cooldown gate holds.
	env.advance(6 * time.Second)
	_, err = env.run(t, env.staker, &txs.UnstakeTx{PositionID: 1})
	require.ErrorIs(err, ErrCooldownNotPassed)

	// The snapshot's owner, nobody else, may finalize.
	env.advance(1 * time.Second)
	_, err = env.run(t, ids.GenerateTestShortID(), &txs.UnstakeTx{PositionID: 1})
	require.ErrorIs(err, ErrMismatchedOwner)

	e, err = env.run(t, env.staker, &txs.UnstakeTx{PositionID: 1})
	require.NoError(err)

	_, err = env.state.GetUnstakeRequest(1)
	require.ErrorIs(err, database.ErrNotFound)
	require.Zero(env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
	require.Equal(uint64(1_000_000), env.bank.Balance(env.assetID, env.staker))

	require.Len(e.Events, 1)
	require.Equal(events.Unstaked, e.Events[0].Op)
	require.Equal(uint64(1000), e.Events[0].Amount)

	// The request is consumed.
	_, err = env.run(t, env.staker, &txs.UnstakeTx{PositionID: 1})
	require.ErrorIs(err, database.ErrNotFound)
}

// Scenario: a config id never set yields the zero config and stakes against
// it are indistinguishable from unauthorized ones.
func TestStakeAgainstZeroConfig(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.state.GetConfig(404)
	require.Equal(ids.ShortEmpty, cfg.Owner)
	require.False(cfg.Exists())

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    404,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.ErrorIs(err, ErrInactiveOrUnauthorized)
}

func TestCommitStakeReplayGuard(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	payload := []byte{1, 2, 3, 4}
	e, err := env.run(t, env.staker, &txs.CommitStakeTx{Payload: payload})
	require.NoError(err)
	require.Equal(uint64(1), e.PositionID)

	commitment, err := env.state.GetCommitment(1)
	require.NoError(err)
	require.Equal(payload, commitment.Payload)

	// The guard is global: any caller, any time, same payload.
	_, err = env.run(t, ids.GenerateTestShortID(), &txs.CommitStakeTx{Payload: payload})
	require.ErrorIs(err, ErrSignatureReplayed)

	// Even after the commitment is consumed the digest stays burned.
	env.state.DeleteCommitment(1)
	_, err = env.run(t, env.staker, &txs.CommitStakeTx{Payload: payload})
	require.ErrorIs(err, ErrSignatureReplayed)

	_, err = env.run(t, env.staker, &txs.CommitStakeTx{Payload: []byte{1, 2, 3, 5}})
	require.NoError(err)
}

func (env *environment) signDelegation(t *testing.T, d *message.Delegation) []byte {
	t.Helper()
	payload, err := message.Sign(d, env.managerKey)
	require.NoError(t, err)
	return payload
}

func TestRedeemStake(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.Cooldown = 7
	env.createConfig(t, 1, cfg)

	// The custodian already holds the delegated funds; redeeming only
	// releases them, it never pulls new money in.
	require.NoError(env.bank.Mint(env.assetID, env.custodian, 1000))

	startTime := env.clk.Unix()
	payload := env.signDelegation(t, &message.Delegation{
		NetworkID: env.ctx.NetworkID,
		LedgerID:  env.ctx.LedgerID,
		Owner:     env.staker,
		ConfigID:  1,
		Amount:    1000,
		StartTime: startTime,
		Nonce:     1,
	})

	e, err := env.run(t, env.admin, &txs.CommitStakeTx{Payload: payload})
	require.NoError(err)
	positionID := e.PositionID

	env.advance(31 * time.Second)
	e, err = env.run(t, env.staker, &txs.RedeemStakeTx{
		PositionID: positionID,
		ConfigID:   1,
		StartTime:  startTime,
		Nonce:      1,
		Amount:     1000,
	})
	require.NoError(err)

	// The commitment became a pending request with the accrued snapshot.
	_, err = env.state.GetCommitment(positionID)
	require.ErrorIs(err, database.ErrNotFound)
	request, err := env.state.GetUnstakeRequest(positionID)
	require.NoError(err)
	require.Equal(env.staker, request.Position.Owner)
	require.Equal(uint64(1000), request.Position.Value)
	require.Equal(uint64(1000), env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    env.staker,
	}))
	require.Len(e.Events, 1)
	require.Equal(events.RequestedUnstake, e.Events[0].Op)

	// Cooldown, then release.
	env.advance(7 * time.Second)
	_, err = env.run(t, env.staker, &txs.UnstakeTx{PositionID: positionID})
	require.NoError(err)
	require.Equal(uint64(1_001_000), env.bank.Balance(env.assetID, env.staker))
	require.Zero(env.bank.Balance(env.assetID, env.custodian))
}

func TestRedeemStakeRejections(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	env.createConfig(t, 1, cfg)
	require.NoError(env.bank.Mint(env.assetID, env.custodian, 1000))

	startTime := env.clk.Unix()
	d := message.Delegation{
		NetworkID: env.ctx.NetworkID,
		LedgerID:  env.ctx.LedgerID,
		Owner:     env.staker,
		ConfigID:  1,
		Amount:    1000,
		StartTime: startTime,
		Nonce:     1,
	}
	payload := env.signDelegation(t, &d)

	e, err := env.run(t, env.admin, &txs.CommitStakeTx{Payload: payload})
	require.NoError(err)
	positionID := e.PositionID

	redeem := txs.RedeemStakeTx{
		PositionID: positionID,
		ConfigID:   1,
		StartTime:  startTime,
		Nonce:      1,
		Amount:     1000,
	}

	env.advance(31 * time.Second)

	// No commitment at that id.
	missing := redeem
	missing.PositionID = 99
	_, err = env.run(t, env.staker, &missing)
	require.ErrorIs(err, database.ErrNotFound)

	// A different caller reconstructs a different message, so recovery does
	// not resolve to the manager.
	_, err = env.run(t, ids.GenerateTestShortID(), &redeem)
	require.Error(err)

	// Tampered amounts likewise break the signature binding.
	tampered := redeem
	tampered.Amount = 2000
	_, err = env.run(t, env.staker, &tampered)
	require.Error(err)

	// A payload signed by someone other than the config's manager recovers
	// cleanly but to the wrong identity.
	wrongKey, err := secp256k1.NewPrivateKey()
	require.NoError(err)
	d2 := d
	d2.Nonce = 2
	wrongPayload, err := message.Sign(&d2, wrongKey)
	require.NoError(err)
	e, err = env.run(t, env.admin, &txs.CommitStakeTx{Payload: wrongPayload})
	require.NoError(err)
	wrongRedeem := redeem
	wrongRedeem.PositionID = e.PositionID
	wrongRedeem.Nonce = 2
	_, err = env.run(t, env.staker, &wrongRedeem)
	require.ErrorIs(err, ErrUnauthorized)

	// The honest redeem still works, exactly once.
	_, err = env.run(t, env.staker, &redeem)
	require.NoError(err)
	_, err = env.run(t, env.staker, &redeem)
	require.ErrorIs(err, database.ErrNotFound)
}

// The bank's total supply is invariant across every operation: stake, top
// up, commit, redeem and unstake only move value between holders.
func TestValueConservation(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	cfg := env.defaultConfig()
	cfg.Cooldown = 7
	env.createConfig(t, 1, cfg)

	total := func() uint64 {
		return env.bank.Balance(env.assetID, env.staker) +
			env.bank.Balance(env.assetID, env.custodian)
	}
	supply := total()

	_, err := env.run(t, env.staker, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: env.staker,
		Amount:      1000,
	})
	require.NoError(err)
	require.Equal(supply, total())

	_, err = env.run(t, env.staker, &txs.TopUpTx{PositionID: 1, Amount: 250})
	require.NoError(err)
	require.Equal(supply, total())

	env.advance(31 * time.Second)
	_, err = env.run(t, env.staker, &txs.RequestUnstakeTx{PositionID: 1})
	require.NoError(err)
	require.Equal(supply, total())

	env.advance(7 * time.Second)
	_, err = env.run(t, env.staker, &txs.UnstakeTx{PositionID: 1})
	require.NoError(err)
	require.Equal(supply, total())
	require.Equal(uint64(1_000_000), env.bank.Balance(env.assetID, env.staker))
}

// A failed transfer drops the whole operation: the staged state never lands.
func TestFailedTransferDropsDiff(t *testing.T) {
	require := require.New(t)
	env := newEnvironment(t)

	env.createConfig(t, 1, env.defaultConfig())

	pauper := ids.GenerateTestShortID()
	_, err := env.run(t, pauper, &txs.StakeTx{
		ConfigID:    1,
		Beneficiary: pauper,
		Amount:      1000,
	})
	require.ErrorIs(err, bank.ErrInsufficientFunds)

	_, err = env.state.GetPosition(1)
	require.ErrorIs(err, database.ErrNotFound)
	require.Zero(env.state.GetAggregate(state.AggregateKey{
		ConfigID: 1,
		Owner:    pauper,
	}))
	require.Equal(uint64(1), env.state.NextPositionID())
}
