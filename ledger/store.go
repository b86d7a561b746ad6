// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger stores the host ledger state the anchoring service consumes:
// the committed height, block hashes and the versioned configuration.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
)

var (
	ErrNoConfiguration  = errors.New("no actual configuration")
	ErrFollowingExists  = errors.New("a following configuration is already scheduled")
	ErrStaleActivation  = errors.New("configuration activates at or below the committed height")
	ErrUnknownBlockHash = errors.New("unknown block hash")

	ledgerPrefix = []byte("ledger")
	blockPrefix  = []byte("block")
	configPrefix = []byte("config")

	heightKey      = []byte("height")
	configCountKey = []byte("count")
)

// Configuration is one version of the host ledger's configuration. Service
// payloads are kept opaque here and decoded by the services owning them.
type Configuration struct {
	ActualFrom uint64                     `json:"actual_from"`
	Services   map[string]json.RawMessage `json:"services"`
}

// Service returns the payload stored under name.
func (c *Configuration) Service(name string) (json.RawMessage, bool) {
	payload, ok := c.Services[name]
	return payload, ok && len(payload) != 0
}

// Store reads and writes ledger state through the given database view.
type Store struct {
	db      database.Database
	blocks  database.Database
	configs database.Database
}

func New(db database.Database) *Store {
	root := prefixdb.New(ledgerPrefix, db)
	return &Store{
		db:      root,
		blocks:  prefixdb.New(blockPrefix, root),
		configs: prefixdb.New(configPrefix, root),
	}
}

// Height returns the height of the last committed block.
func (s *Store) Height() (uint64, error) {
	height, err := database.GetUInt64(s.db, heightKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return height, err
}

func (s *Store) SetHeight(height uint64) error {
	return database.PutUInt64(s.db, heightKey, height)
}

func (s *Store) PutBlockHash(height uint64, blkID ids.ID) error {
	return database.PutID(s.blocks, database.PackUInt64(height), blkID)
}

func (s *Store) BlockHash(height uint64) (ids.ID, error) {
	blkID, err := database.GetID(s.blocks, database.PackUInt64(height))
	if errors.Is(err, database.ErrNotFound) {
		return ids.Empty, fmt.Errorf("%w: height %d", ErrUnknownBlockHash, height)
	}
	return blkID, err
}

// CommitConfiguration schedules cfg. Activation heights strictly increase
// and at most one configuration may be pending at a time. The genesis
// configuration is the only one allowed to activate at the committed height.
func (s *Store) CommitConfiguration(cfg *Configuration) error {
	count, err := s.configCount()
	if err != nil {
		return err
	}
	if count > 0 {
		height, err := s.Height()
		if err != nil {
			return err
		}
		if cfg.ActualFrom <= height {
			return fmt.Errorf("%w: actual from %d, height %d", ErrStaleActivation, cfg.ActualFrom, height)
		}
		following, err := s.FollowingConfiguration()
		if err != nil {
			return err
		}
		if following != nil {
			return fmt.Errorf("%w: actual from %d", ErrFollowingExists, following.ActualFrom)
		}
	}

	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.configs.Put(database.PackUInt64(count), b); err != nil {
		return err
	}
	return database.PutUInt64(s.configs, configCountKey, count+1)
}

// ActualConfiguration returns the configuration in force at the committed
// height.
func (s *Store) ActualConfiguration() (*Configuration, error) {
	height, err := s.Height()
	if err != nil {
		return nil, err
	}
	return s.ConfigurationByHeight(height)
}

// FollowingConfiguration returns the scheduled configuration, or nil.
func (s *Store) FollowingConfiguration() (*Configuration, error) {
	height, err := s.Height()
	if err != nil {
		return nil, err
	}
	configs, err := s.configurations()
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.ActualFrom > height {
			return cfg, nil
		}
	}
	return nil, nil
}

// PreviousConfiguration returns the configuration that was actual before the
// current one, or nil.
func (s *Store) PreviousConfiguration() (*Configuration, error) {
	height, err := s.Height()
	if err != nil {
		return nil, err
	}
	configs, err := s.configurations()
	if err != nil {
		return nil, err
	}
	i := actualIndex(configs, height)
	if i < 1 {
		return nil, nil
	}
	return configs[i-1], nil
}

// ConfigurationByHeight returns the configuration that was actual at height.
func (s *Store) ConfigurationByHeight(height uint64) (*Configuration, error) {
	configs, err := s.configurations()
	if err != nil {
		return nil, err
	}
	i := actualIndex(configs, height)
	if i < 0 {
		return nil, fmt.Errorf("%w: height %d", ErrNoConfiguration, height)
	}
	return configs[i], nil
}

func actualIndex(configs []*Configuration, height uint64) int {
	for i := len(configs) - 1; i >= 0; i-- {
		if configs[i].ActualFrom <= height {
			return i
		}
	}
	return -1
}

func (s *Store) configCount() (uint64, error) {
	count, err := database.GetUInt64(s.configs, configCountKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return count, err
}

func (s *Store) configurations() ([]*Configuration, error) {
	count, err := s.configCount()
	if err != nil {
		return nil, err
	}
	configs := make([]*Configuration, count)
	for i := range configs {
		b, err := s.configs.Get(database.PackUInt64(uint64(i)))
		if err != nil {
			return nil, err
		}
		cfg := &Configuration{}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
		configs[i] = cfg
	}
	return configs, nil
}
