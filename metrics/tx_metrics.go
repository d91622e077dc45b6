// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/luxfi/metric"

	"github.com/luxfi/stakevault/txs"
)

const opLabel = "op"

var (
	_ txs.Visitor = (*Metrics)(nil)

	opLabels = []string{opLabel}
)

// Metrics counts accepted operations by name. It is a txs.Visitor so new
// operation types cannot be added without deciding how to count them.
type Metrics struct {
	numOps metric.CounterVec
}

func New(registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		numOps: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "ops_accepted",
				Help: "number of operations accepted",
			},
			opLabels,
		),
	}
	return m, nil
}

func (m *Metrics) SetConfigTx(*txs.SetConfigTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "set_config",
	}).Inc()
	return nil
}

func (m *Metrics) StakeTx(*txs.StakeTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "stake",
	}).Inc()
	return nil
}

func (m *Metrics) TopUpTx(*txs.TopUpTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "top_up",
	}).Inc()
	return nil
}

func (m *Metrics) CommitStakeTx(*txs.CommitStakeTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "commit_stake",
	}).Inc()
	return nil
}

func (m *Metrics) RequestUnstakeTx(*txs.RequestUnstakeTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "request_unstake",
	}).Inc()
	return nil
}

func (m *Metrics) RedeemStakeTx(*txs.RedeemStakeTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "redeem_stake",
	}).Inc()
	return nil
}

func (m *Metrics) UnstakeTx(*txs.UnstakeTx) error {
	m.numOps.With(metric.Labels{
		opLabel: "unstake",
	}).Inc()
	return nil
}
