// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var (
	configPrefix     = []byte("config")
	positionPrefix   = []byte("position")
	aggregatePrefix  = []byte("aggregate")
	commitmentPrefix = []byte("commitment")
	payloadPrefix    = []byte("payload")
	requestPrefix    = []byte("request")
	singletonPrefix  = []byte("singleton")

	nextPositionIDKey = []byte("nextPositionID")

	_ Chain = (*State)(nil)
)

// Chain is the mutable view of the ledger's arenas. Both the base [State] and
// a [Diff] staged on top of it implement Chain; executors only ever see this
// interface.
//
// Entities are value types. Cross-entity relations are id lookups re-resolved
// on every access; no entity holds a live reference to another.
type Chain interface {
	// GetConfig returns the config at [id]. A missing id yields the zero
	// Config, whose Exists() is false; callers must treat it as inactive.
	GetConfig(id uint64) Config
	PutConfig(id uint64, cfg Config)

	// GetPosition returns [database.ErrNotFound] if no live position is
	// stored at [id].
	GetPosition(id uint64) (Position, error)
	PutPosition(id uint64, pos Position)
	DeletePosition(id uint64)

	// GetAggregate returns the running stake total for [key], or 0 if the
	// owner has no live stake under that config.
	GetAggregate(key AggregateKey) uint64
	PutAggregate(key AggregateKey, amount uint64)

	// GetCommitment returns [database.ErrNotFound] if no pending commitment
	// is stored at [id].
	GetCommitment(id uint64) (Commitment, error)
	PutCommitment(id uint64, c Commitment)
	DeleteCommitment(id uint64)

	// SeenPayload reports whether [digest] was ever committed. The replay
	// guard is global and append-only.
	SeenPayload(digest ids.ID) bool
	AddPayload(digest ids.ID)

	// GetUnstakeRequest returns [database.ErrNotFound] if no pending request
	// is stored at [id].
	GetUnstakeRequest(id uint64) (UnstakeRequest, error)
	PutUnstakeRequest(id uint64, r UnstakeRequest)
	DeleteUnstakeRequest(id uint64)

	// NextPositionID peeks at the next id to be allocated.
	NextPositionID() uint64
	// NewPositionID allocates and returns the next position id.
	NewPositionID() uint64
	SetNextPositionID(id uint64)
}

// State is the base arena store. All entities are exclusively owned by it;
// mutations normally arrive through [Diff.Apply] under the ledger's
// operation lock. Reads are safe for concurrent use.
//
// Every mutation is tracked as dirty and persisted on Commit through
// prefixed buckets of the backing database.
type State struct {
	mu sync.RWMutex

	configs     map[uint64]Config
	positions   map[uint64]Position
	aggregates  map[AggregateKey]uint64
	commitments map[uint64]Commitment
	payloads    set.Set[ids.ID]
	requests    map[uint64]UnstakeRequest

	nextPositionID uint64

	configDB     database.Database
	positionDB   database.Database
	aggregateDB  database.Database
	commitmentDB database.Database
	payloadDB    database.Database
	requestDB    database.Database
	singletonDB  database.Database

	dirtyConfigs     set.Set[uint64]
	dirtyPositions   set.Set[uint64]
	dirtyAggregates  set.Set[AggregateKey]
	dirtyCommitments set.Set[uint64]
	addedPayloads    set.Set[ids.ID]
	dirtyRequests    set.Set[uint64]
	dirtyNextID      bool
}

// New loads the state stored in [db], or initializes an empty state if the
// database is fresh. Position ids start at 1; id 0 is never allocated.
func New(db database.Database) (*State, error) {
	s := &State{
		configs:     make(map[uint64]Config),
		positions:   make(map[uint64]Position),
		aggregates:  make(map[AggregateKey]uint64),
		commitments: make(map[uint64]Commitment),
		payloads:    set.NewSet[ids.ID](0),
		requests:    make(map[uint64]UnstakeRequest),

		nextPositionID: 1,

		configDB:     prefixdb.New(configPrefix, db),
		positionDB:   prefixdb.New(positionPrefix, db),
		aggregateDB:  prefixdb.New(aggregatePrefix, db),
		commitmentDB: prefixdb.New(commitmentPrefix, db),
		payloadDB:    prefixdb.New(payloadPrefix, db),
		requestDB:    prefixdb.New(requestPrefix, db),
		singletonDB:  prefixdb.New(singletonPrefix, db),

		dirtyConfigs:     set.NewSet[uint64](0),
		dirtyPositions:   set.NewSet[uint64](0),
		dirtyAggregates:  set.NewSet[AggregateKey](0),
		dirtyCommitments: set.NewSet[uint64](0),
		addedPayloads:    set.NewSet[ids.ID](0),
		dirtyRequests:    set.NewSet[uint64](0),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) load() error {
	configIt := s.configDB.NewIterator()
	defer configIt.Release()
	for configIt.Next() {
		id, err := unpackUint64(configIt.Key())
		if err != nil {
			return err
		}
		var cfg Config
		if _, err := Codec.Unmarshal(configIt.Value(), &cfg); err != nil {
			return fmt.Errorf("failed to load config %d: %w", id, err)
		}
		s.configs[id] = cfg
	}
	if err := configIt.Error(); err != nil {
		return err
	}

	positionIt := s.positionDB.NewIterator()
	defer positionIt.Release()
	for positionIt.Next() {
		id, err := unpackUint64(positionIt.Key())
		if err != nil {
			return err
		}
		var pos Position
		if _, err := Codec.Unmarshal(positionIt.Value(), &pos); err != nil {
			return fmt.Errorf("failed to load position %d: %w", id, err)
		}
		s.positions[id] = pos
	}
	if err := positionIt.Error(); err != nil {
		return err
	}

	aggregateIt := s.aggregateDB.NewIterator()
	defer aggregateIt.Release()
	for aggregateIt.Next() {
		key, err := unpackAggregateKey(aggregateIt.Key())
		if err != nil {
			return err
		}
		amount, err := unpackUint64(aggregateIt.Value())
		if err != nil {
			return err
		}
		s.aggregates[key] = amount
	}
	if err := aggregateIt.Error(); err != nil {
		return err
	}

	commitmentIt := s.commitmentDB.NewIterator()
	defer commitmentIt.Release()
	for commitmentIt.Next() {
		id, err := unpackUint64(commitmentIt.Key())
		if err != nil {
			return err
		}
		var c Commitment
		if _, err := Codec.Unmarshal(commitmentIt.Value(), &c); err != nil {
			return fmt.Errorf("failed to load commitment %d: %w", id, err)
		}
		s.commitments[id] = c
	}
	if err := commitmentIt.Error(); err != nil {
		return err
	}

	payloadIt := s.payloadDB.NewIterator()
	defer payloadIt.Release()
	for payloadIt.Next() {
		digest, err := ids.ToID(payloadIt.Key())
		if err != nil {
			return err
		}
		s.payloads.Add(digest)
	}
	if err := payloadIt.Error(); err != nil {
		return err
	}

	requestIt := s.requestDB.NewIterator()
	defer requestIt.Release()
	for requestIt.Next() {
		id, err := unpackUint64(requestIt.Key())
		if err != nil {
			return err
		}
		var r UnstakeRequest
		if _, err := Codec.Unmarshal(requestIt.Value(), &r); err != nil {
			return fmt.Errorf("failed to load unstake request %d: %w", id, err)
		}
		s.requests[id] = r
	}
	if err := requestIt.Error(); err != nil {
		return err
	}

	switch nextID, err := s.singletonDB.Get(nextPositionIDKey); err {
	case nil:
		s.nextPositionID, err = unpackUint64(nextID)
		if err != nil {
			return err
		}
	case database.ErrNotFound:
	default:
		return err
	}
	return nil
}

func (s *State) GetConfig(id uint64) Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[id]
}

func (s *State) PutConfig(id uint64, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[id] = cfg
	s.dirtyConfigs.Add(id)
}

func (s *State) GetPosition(id uint64) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return Position{}, database.ErrNotFound
	}
	return pos, nil
}

func (s *State) PutPosition(id uint64, pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = pos
	s.dirtyPositions.Add(id)
}

func (s *State) DeletePosition(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	s.dirtyPositions.Add(id)
}

func (s *State) GetAggregate(key AggregateKey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregates[key]
}

func (s *State) PutAggregate(key AggregateKey, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[key] = amount
	s.dirtyAggregates.Add(key)
}

func (s *State) GetCommitment(id uint64) (Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commitments[id]
	if !ok {
		return Commitment{}, database.ErrNotFound
	}
	return c, nil
}

func (s *State) PutCommitment(id uint64, c Commitment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitments[id] = c
	s.dirtyCommitments.Add(id)
}

func (s *State) DeleteCommitment(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.commitments, id)
	s.dirtyCommitments.Add(id)
}

func (s *State) SeenPayload(digest ids.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payloads.Contains(digest)
}

func (s *State) AddPayload(digest ids.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads.Add(digest)
	s.addedPayloads.Add(digest)
}

func (s *State) GetUnstakeRequest(id uint64) (UnstakeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return UnstakeRequest{}, database.ErrNotFound
	}
	return r, nil
}

func (s *State) PutUnstakeRequest(id uint64, r UnstakeRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[id] = r
	s.dirtyRequests.Add(id)
}

func (s *State) DeleteUnstakeRequest(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	s.dirtyRequests.Add(id)
}

func (s *State) NextPositionID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextPositionID
}

func (s *State) NewPositionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextPositionID
	s.nextPositionID++
	s.dirtyNextID = true
	return id
}

func (s *State) SetNextPositionID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPositionID = id
	s.dirtyNextID = true
}

// Commit persists every dirty entry to the backing database and clears the
// dirty sets.
func (s *State) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.dirtyConfigs {
		cfg := s.configs[id]
		bytes, err := Codec.Marshal(CodecVersion, &cfg)
		if err != nil {
			return fmt.Errorf("failed to write config %d: %w", id, err)
		}
		if err := s.configDB.Put(packUint64(id), bytes); err != nil {
			return err
		}
	}
	s.dirtyConfigs.Clear()

	for id := range s.dirtyPositions {
		key := packUint64(id)
		pos, ok := s.positions[id]
		if !ok {
			if err := s.positionDB.Delete(key); err != nil {
				return err
			}
			continue
		}
		bytes, err := Codec.Marshal(CodecVersion, &pos)
		if err != nil {
			return fmt.Errorf("failed to write position %d: %w", id, err)
		}
		if err := s.positionDB.Put(key, bytes); err != nil {
			return err
		}
	}
	s.dirtyPositions.Clear()

	for key := range s.dirtyAggregates {
		amount := s.aggregates[key]
		if err := s.aggregateDB.Put(packAggregateKey(key), packUint64(amount)); err != nil {
			return err
		}
	}
	s.dirtyAggregates.Clear()

	for id := range s.dirtyCommitments {
		key := packUint64(id)
		c, ok := s.commitments[id]
		if !ok {
			if err := s.commitmentDB.Delete(key); err != nil {
				return err
			}
			continue
		}
		bytes, err := Codec.Marshal(CodecVersion, &c)
		if err != nil {
			return fmt.Errorf("failed to write commitment %d: %w", id, err)
		}
		if err := s.commitmentDB.Put(key, bytes); err != nil {
			return err
		}
	}
	s.dirtyCommitments.Clear()

	for digest := range s.addedPayloads {
		if err := s.payloadDB.Put(digest[:], nil); err != nil {
			return err
		}
	}
	s.addedPayloads.Clear()

	for id := range s.dirtyRequests {
		key := packUint64(id)
		r, ok := s.requests[id]
		if !ok {
			if err := s.requestDB.Delete(key); err != nil {
				return err
			}
			continue
		}
		bytes, err := Codec.Marshal(CodecVersion, &r)
		if err != nil {
			return fmt.Errorf("failed to write unstake request %d: %w", id, err)
		}
		if err := s.requestDB.Put(key, bytes); err != nil {
			return err
		}
	}
	s.dirtyRequests.Clear()

	if s.dirtyNextID {
		if err := s.singletonDB.Put(nextPositionIDKey, packUint64(s.nextPositionID)); err != nil {
			return err
		}
		s.dirtyNextID = false
	}
	return nil
}

func packUint64(v uint64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, v)
	return bytes
}

func unpackUint64(bytes []byte) (uint64, error) {
	if len(bytes) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(bytes))
	}
	return binary.BigEndian.Uint64(bytes), nil
}

func packAggregateKey(key AggregateKey) []byte {
	bytes := make([]byte, 8+ids.ShortIDLen)
	binary.BigEndian.PutUint64(bytes, key.ConfigID)
	copy(bytes[8:], key.Owner[:])
	return bytes
}

func unpackAggregateKey(bytes []byte) (AggregateKey, error) {
	if len(bytes) != 8+ids.ShortIDLen {
		return AggregateKey{}, fmt.Errorf("expected %d bytes, got %d", 8+ids.ShortIDLen, len(bytes))
	}
	key := AggregateKey{
		ConfigID: binary.BigEndian.Uint64(bytes),
	}
	copy(key.Owner[:], bytes[8:])
	return key, nil
}
