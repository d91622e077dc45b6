// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var _ Chain = (*Diff)(nil)

// Diff stages the mutations of a single operation on top of a parent Chain.
// Reads fall through to the parent for anything not staged. Nothing reaches
// the parent until Apply, so a failed operation is discarded wholesale by
// dropping the diff.
type Diff struct {
	parent Chain

	configs map[uint64]Config

	positions        map[uint64]Position
	deletedPositions set.Set[uint64]

	aggregates map[AggregateKey]uint64

	commitments        map[uint64]Commitment
	deletedCommitments set.Set[uint64]

	addedPayloads set.Set[ids.ID]

	requests        map[uint64]UnstakeRequest
	deletedRequests set.Set[uint64]

	// nextPositionID is nil until the diff allocates or sets an id.
	nextPositionID *uint64
}

func NewDiff(parent Chain) *Diff {
	return &Diff{
		parent:             parent,
		configs:            make(map[uint64]Config),
		positions:          make(map[uint64]Position),
		deletedPositions:   set.NewSet[uint64](0),
		aggregates:         make(map[AggregateKey]uint64),
		commitments:        make(map[uint64]Commitment),
		deletedCommitments: set.NewSet[uint64](0),
		addedPayloads:      set.NewSet[ids.ID](0),
		requests:           make(map[uint64]UnstakeRequest),
		deletedRequests:    set.NewSet[uint64](0),
	}
}

func (d *Diff) GetConfig(id uint64) Config {
	if cfg, ok := d.configs[id]; ok {
		return cfg
	}
	return d.parent.GetConfig(id)
}

func (d *Diff) PutConfig(id uint64, cfg Config) {
	d.configs[id] = cfg
}

func (d *Diff) GetPosition(id uint64) (Position, error) {
	if d.deletedPositions.Contains(id) {
		return Position{}, database.ErrNotFound
	}
	if pos, ok := d.positions[id]; ok {
		return pos, nil
	}
	return d.parent.GetPosition(id)
}

func (d *Diff) PutPosition(id uint64, pos Position) {
	d.deletedPositions.Remove(id)
	d.positions[id] = pos
}

func (d *Diff) DeletePosition(id uint64) {
	delete(d.positions, id)
	d.deletedPositions.Add(id)
}

func (d *Diff) GetAggregate(key AggregateKey) uint64 {
	if amount, ok := d.aggregates[key]; ok {
		return amount
	}
	return d.parent.GetAggregate(key)
}

func (d *Diff) PutAggregate(key AggregateKey, amount uint64) {
	d.aggregates[key] = amount
}

func (d *Diff) GetCommitment(id uint64) (Commitment, error) {
	if d.deletedCommitments.Contains(id) {
		return Commitment{}, database.ErrNotFound
	}
	if c, ok := d.commitments[id]; ok {
		return c, nil
	}
	return d.parent.GetCommitment(id)
}

func (d *Diff) PutCommitment(id uint64, c Commitment) {
	d.deletedCommitments.Remove(id)
	d.commitments[id] = c
}

func (d *Diff) DeleteCommitment(id uint64) {
	delete(d.commitments, id)
	d.deletedCommitments.Add(id)
}

func (d *Diff) SeenPayload(digest ids.ID) bool {
	return d.addedPayloads.Contains(digest) || d.parent.SeenPayload(digest)
}

func (d *Diff) AddPayload(digest ids.ID) {
	d.addedPayloads.Add(digest)
}

func (d *Diff) GetUnstakeRequest(id uint64) (UnstakeRequest, error) {
	if d.deletedRequests.Contains(id) {
		return UnstakeRequest{}, database.ErrNotFound
	}
	if r, ok := d.requests[id]; ok {
		return r, nil
	}
	return d.parent.GetUnstakeRequest(id)
}

func (d *Diff) PutUnstakeRequest(id uint64, r UnstakeRequest) {
	d.deletedRequests.Remove(id)
	d.requests[id] = r
}

func (d *Diff) DeleteUnstakeRequest(id uint64) {
	delete(d.requests, id)
	d.deletedRequests.Add(id)
}

func (d *Diff) NextPositionID() uint64 {
	if d.nextPositionID != nil {
		return *d.nextPositionID
	}
	return d.parent.NextPositionID()
}

func (d *Diff) NewPositionID() uint64 {
	id := d.NextPositionID()
	next := id + 1
	d.nextPositionID = &next
	return id
}

func (d *Diff) SetNextPositionID(id uint64) {
	d.nextPositionID = &id
}

// Apply commits every staged mutation to [target]. Apply never fails; the
// target's maps absorb the writes unconditionally.
func (d *Diff) Apply(target Chain) {
	for id, cfg := range d.configs {
		target.PutConfig(id, cfg)
	}
	for id, pos := range d.positions {
		target.PutPosition(id, pos)
	}
	for id := range d.deletedPositions {
		target.DeletePosition(id)
	}
	for key, amount := range d.aggregates {
		target.PutAggregate(key, amount)
	}
	for id, c := range d.commitments {
		target.PutCommitment(id, c)
	}
	for id := range d.deletedCommitments {
		target.DeleteCommitment(id)
	}
	for digest := range d.addedPayloads {
		target.AddPayload(digest)
	}
	for id, r := range d.requests {
		target.PutUnstakeRequest(id, r)
	}
	for id := range d.deletedRequests {
		target.DeleteUnstakeRequest(id)
	}
	if d.nextPositionID != nil {
		target.SetNextPositionID(*d.nextPositionID)
	}
}
